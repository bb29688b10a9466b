// Package store persists period-state snapshots and the round transition
// log, so a restarted agent can resume from its last committed height and
// round outcomes can be audited after the fact.
package store

import (
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	leveldb "github.com/tendermint/tm-db/goleveldb"

	"github.com/kongzii/open-autonomy/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	latestHeightKey     = "snapshot/latest"
	transitionCountKey  = "transition/count"
	snapshotKeyFormat   = "snapshot/%020d"
	transitionKeyFormat = "transition/%020d"
)

// TransitionEntry is one audit record: the graph left a round.
type TransitionEntry struct {
	Time    time.Time   `json:"time"`
	Height  int64       `json:"height"`
	Period  int64       `json:"period"`
	Round   string      `json:"round"`
	Event   types.Event `json:"event"`
	Entered string      `json:"entered"`
}

func NewStore(name, dir string, logger log.Logger) (*Store, error) {
	db, err := leveldb.NewDB(name, dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open period store")
	}
	return NewStoreWithDB(db, logger), nil
}

func NewStoreWithDB(db tmdb.DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Store is the on-disk side of the synchronized state. The bridge is its
// only writer: snapshots at commit, transition entries on round exit.
type Store struct {
	db     tmdb.DB
	logger log.Logger
}

// SaveSnapshot stores the serialized period state for a committed height.
func (s *Store) SaveSnapshot(height int64, data []byte) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(snapshotKey(height), data); err != nil {
		return err
	}
	if err := batch.Set([]byte(latestHeightKey), int64ToBytes(height)); err != nil {
		return err
	}
	return batch.WriteSync()
}

// LatestSnapshot returns the most recently committed snapshot and its
// height. A fresh store returns height zero and no data.
func (s *Store) LatestSnapshot() (int64, []byte, error) {
	raw, err := s.db.Get([]byte(latestHeightKey))
	if err != nil {
		return 0, nil, err
	}
	if len(raw) == 0 {
		return 0, nil, nil
	}
	height := bytesToInt64(raw)
	data, err := s.db.Get(snapshotKey(height))
	if err != nil {
		return 0, nil, err
	}
	return height, data, nil
}

// LoadSnapshot returns the snapshot committed at the given height.
func (s *Store) LoadSnapshot(height int64) ([]byte, error) {
	data, err := s.db.Get(snapshotKey(height))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.Errorf("no snapshot for height %d", height)
	}
	return data, nil
}

// SaveTransition appends one entry to the transition log.
func (s *Store) SaveTransition(entry TransitionEntry) error {
	seq, err := s.transitionCount()
	if err != nil {
		return err
	}
	bz, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(transitionKey(seq), bz); err != nil {
		return err
	}
	if err := batch.Set([]byte(transitionCountKey), int64ToBytes(seq+1)); err != nil {
		return err
	}
	return batch.Write()
}

// Transitions returns the audit log in append order.
func (s *Store) Transitions() ([]TransitionEntry, error) {
	count, err := s.transitionCount()
	if err != nil {
		return nil, err
	}
	entries := make([]TransitionEntry, 0, count)
	for seq := int64(0); seq < count; seq++ {
		bz, err := s.db.Get(transitionKey(seq))
		if err != nil {
			return nil, err
		}
		var entry TransitionEntry
		if err := json.Unmarshal(bz, &entry); err != nil {
			return nil, errors.Wrapf(err, "corrupt transition entry %d", seq)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) transitionCount() (int64, error) {
	raw, err := s.db.Get([]byte(transitionCountKey))
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, nil
	}
	return bytesToInt64(raw), nil
}

func snapshotKey(height int64) []byte {
	return []byte(fmt.Sprintf(snapshotKeyFormat, height))
}

func transitionKey(seq int64) []byte {
	return []byte(fmt.Sprintf(transitionKeyFormat, seq))
}

func int64ToBytes(v int64) []byte {
	return []byte(strconv.FormatInt(v, 10))
}

func bytesToInt64(bz []byte) int64 {
	v, _ := strconv.ParseInt(string(bz), 10, 64)
	return v
}
