// Package state holds the key/value document shared by all rounds of a
// period. Snapshots are immutable: Update layers new keys over the old
// snapshot and returns a fresh one, so a round holding an older snapshot
// never observes later writes.
package state

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/kongzii/open-autonomy/types"
)

// Keys the framework itself reads and writes. They are always carried across
// period resets, on top of whatever keys the application declares persisted.
const (
	ParticipantsKey    = "participants"
	AllParticipantsKey = "all_participants"
	PeriodCountKey     = "period_count"
)

// KeyNotFoundError reports a read of an unset key.
type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found in period state", e.Key)
}

// DB declares the shape of the period state: the data seeded before the
// first round, the defaults ephemeral keys revert to on a period reset, and
// the keys that survive a reset verbatim.
type DB struct {
	initialData   map[string]interface{}
	defaults      map[string]interface{}
	persistedKeys []string

	version int64 // snapshot counter, monotonically increasing
}

type DBOption func(*DB)

// WithPersistedKeys declares application keys carried verbatim into the next
// period's initial state.
func WithPersistedKeys(keys ...string) DBOption {
	return func(db *DB) {
		db.persistedKeys = append(db.persistedKeys, keys...)
	}
}

// WithDefaults declares the values ephemeral keys revert to when a period
// restarts.
func WithDefaults(defaults map[string]interface{}) DBOption {
	return func(db *DB) {
		for k, v := range defaults {
			db.defaults[k] = v
		}
	}
}

func NewDB(initialData map[string]interface{}, options ...DBOption) *DB {
	db := &DB{
		initialData:   make(map[string]interface{}),
		defaults:      make(map[string]interface{}),
		persistedKeys: []string{ParticipantsKey, AllParticipantsKey, PeriodCountKey},
	}
	for k, v := range initialData {
		db.initialData[k] = v
	}
	for _, option := range options {
		option(db)
	}
	return db
}

// InitialData returns a copy of the values seeded before the first round.
func (db *DB) InitialData() map[string]interface{} {
	out := make(map[string]interface{}, len(db.initialData))
	for k, v := range db.initialData {
		out[k] = v
	}
	return out
}

// SeedInitialData merges kvs into the initial data. Used by the startup
// behaviour before the chain is initialized; never called once a period runs.
func (db *DB) SeedInitialData(kvs map[string]interface{}) {
	for k, v := range kvs {
		db.initialData[k] = v
	}
}

// PersistedKeys returns the cross-period persisted key list.
func (db *DB) PersistedKeys() []string {
	out := make([]string, len(db.persistedKeys))
	copy(out, db.persistedKeys)
	return out
}

func (db *DB) isPersisted(key string) bool {
	for _, k := range db.persistedKeys {
		if k == key {
			return true
		}
	}
	return false
}

func (db *DB) nextVersion() int64 {
	return atomic.AddInt64(&db.version, 1)
}

// PeriodState is one immutable snapshot of the period state.
type PeriodState struct {
	db      *DB
	data    map[string]interface{}
	version int64
}

// NewPeriodState builds the first snapshot of a period from the DB's initial
// data.
func NewPeriodState(db *DB) *PeriodState {
	return &PeriodState{
		db:      db,
		data:    db.InitialData(),
		version: db.nextVersion(),
	}
}

// Get returns the value stored under key, or KeyNotFoundError if unset.
func (ps *PeriodState) Get(key string) (interface{}, error) {
	v, ok := ps.data[key]
	if !ok {
		return nil, &KeyNotFoundError{Key: key}
	}
	return v, nil
}

// GetStrict is Get for keys whose absence indicates a broken invariant
// rather than a merely unset value.
func (ps *PeriodState) GetStrict(key string) (interface{}, error) {
	v, err := ps.Get(key)
	if err != nil {
		return nil, errors.Wrap(err, "internal error")
	}
	return v, nil
}

// GetDefault returns the value stored under key, or def if unset.
func (ps *PeriodState) GetDefault(key string, def interface{}) interface{} {
	if v, ok := ps.data[key]; ok {
		return v
	}
	return def
}

// GetAll returns a copy of every key currently set.
func (ps *PeriodState) GetAll() map[string]interface{} {
	out := make(map[string]interface{}, len(ps.data))
	for k, v := range ps.data {
		out[k] = v
	}
	return out
}

// Update returns a new snapshot layering kvs over this one. The receiver is
// left untouched.
func (ps *PeriodState) Update(kvs map[string]interface{}) *PeriodState {
	data := make(map[string]interface{}, len(ps.data)+len(kvs))
	for k, v := range ps.data {
		data[k] = v
	}
	for k, v := range kvs {
		data[k] = v
	}
	return &PeriodState{
		db:      ps.db,
		data:    data,
		version: ps.db.nextVersion(),
	}
}

// ResetPeriod builds the initial snapshot of the next period: persisted keys
// keep their current values, every other key reverts to its declared default
// (or disappears if it has none).
func (ps *PeriodState) ResetPeriod() *PeriodState {
	data := make(map[string]interface{})
	for k, v := range ps.db.defaults {
		data[k] = v
	}
	for _, k := range ps.db.persistedKeys {
		if v, ok := ps.data[k]; ok {
			data[k] = v
		}
	}
	return &PeriodState{
		db:      ps.db,
		data:    data,
		version: ps.db.nextVersion(),
	}
}

// Version identifies this snapshot; later snapshots have larger versions.
func (ps *PeriodState) Version() int64 {
	return ps.version
}

// DB returns the state declaration this snapshot belongs to.
func (ps *PeriodState) DB() *DB {
	return ps.db
}

// Participants returns the agents eligible to submit payloads this period,
// sorted by address.
func (ps *PeriodState) Participants() []types.Address {
	return addressList(ps.GetDefault(ParticipantsKey, nil))
}

// AllParticipants returns the full registered agent set.
func (ps *PeriodState) AllParticipants() []types.Address {
	return addressList(ps.GetDefault(AllParticipantsKey, nil))
}

// NbParticipants is the size of the active participant set.
func (ps *PeriodState) NbParticipants() int {
	return len(ps.Participants())
}

// PeriodCount returns the number of completed graph cycles.
func (ps *PeriodState) PeriodCount() int64 {
	switch v := ps.GetDefault(PeriodCountKey, int64(0)).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64: // numbers decoded from genesis JSON
		return int64(v)
	default:
		return 0
	}
}

// Validate checks the participant invariants every round relies on:
// both sets populated and participants contained in all_participants.
func (ps *PeriodState) Validate() error {
	participants := ps.Participants()
	all := ps.AllParticipants()
	if len(participants) == 0 {
		return errors.New("participant set is empty")
	}
	if len(all) == 0 {
		return errors.New("all_participants set is empty")
	}
	for _, p := range participants {
		if !types.ContainsAddress(all, p) {
			return errors.Errorf("participant %v not in all_participants", p)
		}
	}
	return nil
}

// addressList normalizes the stored participant value. Values written by Go
// code are []types.Address; values seeded from genesis JSON arrive as
// []interface{} of strings.
func addressList(v interface{}) []types.Address {
	switch val := v.(type) {
	case []types.Address:
		return types.SortAddresses(val)
	case []string:
		out := make([]types.Address, len(val))
		for i, s := range val {
			out[i] = types.Address(s)
		}
		return types.SortAddresses(out)
	case []interface{}:
		out := make([]types.Address, 0, len(val))
		for _, e := range val {
			if s, ok := e.(string); ok {
				out = append(out, types.Address(s))
			}
		}
		return types.SortAddresses(out)
	default:
		return nil
	}
}
