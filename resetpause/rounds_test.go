package resetpause

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/types"
)

func testAddrs(n int) []types.Address {
	names := []types.Address{"agent_a", "agent_b", "agent_c", "agent_d"}
	return names[:n]
}

func newTestState(n int, options ...state.DBOption) *state.PeriodState {
	addrs := testAddrs(n)
	db := state.NewDB(map[string]interface{}{
		state.ParticipantsKey:    addrs,
		state.AllParticipantsKey: addrs,
	}, options...)
	return state.NewPeriodState(db)
}

func TestResetRoundAgreesOnPeriodCount(t *testing.T) {
	r := NewResetRound(newTestState(4))

	require.NoError(t, r.ProcessPayload(NewPayload("agent_a", ResetRoundID, 1)))
	require.NoError(t, r.ProcessPayload(NewPayload("agent_b", ResetRoundID, 1)))
	_, _, done := r.EndBlock()
	require.False(t, done)

	require.NoError(t, r.ProcessPayload(NewPayload("agent_c", ResetRoundID, 1)))
	next, event, done := r.EndBlock()
	require.True(t, done)
	assert.Equal(t, EventDone, event)
	assert.EqualValues(t, 1, next.PeriodCount())
}

func TestResetRoundNoMajority(t *testing.T) {
	r := NewResetRound(newTestState(4))

	require.NoError(t, r.ProcessPayload(NewPayload("agent_a", ResetRoundID, 1)))
	require.NoError(t, r.ProcessPayload(NewPayload("agent_b", ResetRoundID, 2)))
	require.NoError(t, r.ProcessPayload(NewPayload("agent_c", ResetRoundID, 3)))

	next, event, done := r.EndBlock()
	require.True(t, done)
	assert.Equal(t, EventNoMajority, event)
	assert.EqualValues(t, 0, next.PeriodCount(), "a failed round must not bump the period count")
}

func TestResetAndPauseCarriesPersistedKeys(t *testing.T) {
	ps := newTestState(4, state.WithPersistedKeys("safe_contract_address"))
	ps = ps.Update(map[string]interface{}{"safe_contract_address": "0xdeadbeef"})

	r := NewResetAndPauseRound(ps)
	for _, sender := range testAddrs(3) {
		require.NoError(t, r.ProcessPayload(NewPayload(sender, ResetAndPauseRoundID, 1)))
	}

	next, event, done := r.EndBlock()
	require.True(t, done)
	assert.Equal(t, EventDone, event)
	assert.EqualValues(t, 1, next.PeriodCount())

	// the persisted key survives the period boundary
	fresh := next.ResetPeriod()
	v, err := fresh.Get("safe_contract_address")
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", v)
	assert.EqualValues(t, 1, fresh.PeriodCount())
}

func TestAppSpecValid(t *testing.T) {
	spec := NewAppSpec()
	require.NoError(t, spec.Validate())
	assert.Equal(t, RoundTimeout, spec.EventToTimeout[EventRoundTimeout])
	assert.Equal(t, ResetTimeout, spec.EventToTimeout[EventResetTimeout])
}
