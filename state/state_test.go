package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kongzii/open-autonomy/types"
)

func testParticipants() []types.Address {
	return []types.Address{"agent_a", "agent_b", "agent_c", "agent_d"}
}

func newTestDB(options ...DBOption) *DB {
	return NewDB(map[string]interface{}{
		ParticipantsKey:    testParticipants(),
		AllParticipantsKey: testParticipants(),
	}, options...)
}

func TestPeriodStateCopyOnWrite(t *testing.T) {
	ps := NewPeriodState(newTestDB())

	next := ps.Update(map[string]interface{}{"estimate": 42})

	// the older snapshot never observes the write
	_, err := ps.Get("estimate")
	assert.Error(t, err)
	assert.IsType(t, &KeyNotFoundError{}, err)

	v, err := next.Get("estimate")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	assert.True(t, next.Version() > ps.Version(), "versions should increase monotonically")
}

func TestPeriodStateGetDefault(t *testing.T) {
	ps := NewPeriodState(newTestDB())

	assert.Equal(t, "fallback", ps.GetDefault("missing", "fallback"))

	ps = ps.Update(map[string]interface{}{"missing": "set"})
	assert.Equal(t, "set", ps.GetDefault("missing", "fallback"))
}

func TestResetPeriodRevertsEphemeralKeys(t *testing.T) {
	db := newTestDB(WithDefaults(map[string]interface{}{"mode": "idle"}))
	ps := NewPeriodState(db)

	ps = ps.Update(map[string]interface{}{
		"mode":     "active",
		"estimate": 42,
	})

	next := ps.ResetPeriod()

	assert.Equal(t, "idle", next.GetDefault("mode", nil), "ephemeral key should revert to its default")
	_, err := next.Get("estimate")
	assert.Error(t, err, "undeclared key should disappear on reset")
}

func TestResetPeriodCarriesPersistedKeys(t *testing.T) {
	db := newTestDB(WithPersistedKeys("safe_contract_address"))
	ps := NewPeriodState(db)

	ps = ps.Update(map[string]interface{}{
		"safe_contract_address": "0xdeadbeef",
		PeriodCountKey:          int64(3),
	})

	next := ps.ResetPeriod()

	v, err := next.Get("safe_contract_address")
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", v)
	assert.EqualValues(t, 3, next.PeriodCount())

	// the framework keys persist without being declared
	assert.Equal(t, testParticipants(), next.Participants())
	assert.Equal(t, testParticipants(), next.AllParticipants())
}

func TestPeriodCountCoercion(t *testing.T) {
	testCases := []struct {
		value    interface{}
		expected int64
	}{
		{int64(7), 7},
		{7, 7},
		{float64(7), 7}, // genesis JSON numbers
		{"junk", 0},
		{nil, 0},
	}

	for _, tc := range testCases {
		ps := NewPeriodState(newTestDB())
		if tc.value != nil {
			ps = ps.Update(map[string]interface{}{PeriodCountKey: tc.value})
		}
		assert.Equal(t, tc.expected, ps.PeriodCount(), "value %v", tc.value)
	}
}

func TestParticipantsFromGenesisJSON(t *testing.T) {
	// genesis app state arrives as []interface{} of strings
	db := NewDB(map[string]interface{}{
		ParticipantsKey:    []interface{}{"agent_b", "agent_a"},
		AllParticipantsKey: []interface{}{"agent_b", "agent_a"},
	})
	ps := NewPeriodState(db)

	assert.Equal(t, []types.Address{"agent_a", "agent_b"}, ps.Participants(), "participants should be sorted")
	assert.Equal(t, 2, ps.NbParticipants())
	assert.NoError(t, ps.Validate())
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name         string
		participants interface{}
		all          interface{}
		wantErr      bool
	}{
		{"valid", testParticipants(), testParticipants(), false},
		{"empty participants", []types.Address{}, testParticipants(), true},
		{"empty all_participants", testParticipants(), []types.Address{}, true},
		{"participant outside roster", []types.Address{"stranger"}, testParticipants(), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db := NewDB(map[string]interface{}{
				ParticipantsKey:    tc.participants,
				AllParticipantsKey: tc.all,
			})
			err := NewPeriodState(db).Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSeedInitialData(t *testing.T) {
	db := newTestDB()
	db.SeedInitialData(map[string]interface{}{"oracle_address": "0xabc"})

	ps := NewPeriodState(db)
	v, err := ps.Get("oracle_address")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", v)
}
