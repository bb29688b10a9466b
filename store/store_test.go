package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	memdb "github.com/tendermint/tm-db/memdb"
)

func newTestStore() *Store {
	return NewStoreWithDB(memdb.NewDB(), log.TestingLogger())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	require.NoError(t, s.SaveSnapshot(1, []byte(`{"period_count":0}`)))
	require.NoError(t, s.SaveSnapshot(2, []byte(`{"period_count":1}`)))

	height, data, err := s.LatestSnapshot()
	require.NoError(t, err)
	assert.EqualValues(t, 2, height)
	assert.Equal(t, []byte(`{"period_count":1}`), data)

	data, err = s.LoadSnapshot(1)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"period_count":0}`), data)
}

func TestLoadSnapshotMissingHeight(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	_, err := s.LoadSnapshot(42)
	assert.Error(t, err)
}

func TestTransitionLogAppendOrder(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	entries := []TransitionEntry{
		{Time: time.Unix(100, 0).UTC(), Height: 1, Period: 0, Round: "registration_startup", Event: "done", Entered: "reset_and_pause"},
		{Time: time.Unix(101, 0).UTC(), Height: 2, Period: 0, Round: "reset_and_pause", Event: "done", Entered: "finished_reset_pause"},
		{Time: time.Unix(102, 0).UTC(), Height: 3, Period: 1, Round: "registration", Event: "no_majority", Entered: "registration"},
	}
	for _, e := range entries {
		require.NoError(t, s.SaveTransition(e))
	}

	got, err := s.Transitions()
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestTransitionsEmpty(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	got, err := s.Transitions()
	require.NoError(t, err)
	assert.Empty(t, got)
}
