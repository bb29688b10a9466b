package fsm

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/kongzii/open-autonomy/round"
	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/types"
)

// scriptedRound decides whatever the test tells it to.
type scriptedRound struct {
	id    string
	ps    *state.PeriodState
	event types.Event
	next  *state.PeriodState
	fire  bool
}

func (r *scriptedRound) ID() string                      { return r.id }
func (r *scriptedRound) AllowedTxType() string           { return "scripted" }
func (r *scriptedRound) PeriodState() *state.PeriodState { return r.ps }
func (r *scriptedRound) CheckPayload(types.Payload) error {
	return round.ErrTransactionNotValid
}
func (r *scriptedRound) ProcessPayload(types.Payload) error {
	return round.ErrInternal
}
func (r *scriptedRound) EndBlock() (*state.PeriodState, types.Event, bool) {
	if !r.fire {
		return nil, "", false
	}
	next := r.next
	if next == nil {
		next = r.ps
	}
	return next, r.event, true
}

func testState() *state.PeriodState {
	addrs := []types.Address{"agent_a", "agent_b", "agent_c", "agent_d"}
	db := state.NewDB(map[string]interface{}{
		state.ParticipantsKey:    addrs,
		state.AllParticipantsKey: addrs,
	})
	return state.NewPeriodState(db)
}

// twoRoundSpec: work --done--> end, work --timeout--> work
func twoRoundSpec(rounds map[string]*scriptedRound) AppSpec {
	return AppSpec{
		InitialRound:  "work",
		InitialStates: []string{"work"},
		TransitionFunction: map[string]map[types.Event]string{
			"work": {
				"done":    "end",
				"timeout": "work",
			},
		},
		FinalStates: []string{"end"},
		EventToTimeout: map[types.Event]time.Duration{
			"timeout": 30 * time.Second,
		},
		RoundFactories: map[string]RoundFactory{
			"work": func(ps *state.PeriodState) round.Round {
				r := rounds["work"]
				r.ps = ps
				return r
			},
			"end": func(ps *state.PeriodState) round.Round {
				return round.NewDegenerate("end", ps)
			},
		},
	}
}

func TestSpecValidate(t *testing.T) {
	valid := twoRoundSpec(map[string]*scriptedRound{"work": {id: "work"}})
	require.NoError(t, valid.Validate())

	testCases := []struct {
		name   string
		mutate func(*AppSpec)
	}{
		{"no initial round", func(s *AppSpec) { s.InitialRound = "" }},
		{"initial not in initial states", func(s *AppSpec) { s.InitialStates = []string{"other"} }},
		{"unknown destination", func(s *AppSpec) {
			s.TransitionFunction["work"]["done"] = "nowhere"
		}},
		{"final state with outgoing edge", func(s *AppSpec) {
			s.TransitionFunction["end"] = map[types.Event]string{"done": "work"}
		}},
		{"missing factory", func(s *AppSpec) { delete(s.RoundFactories, "end") }},
		{"unknown initial state", func(s *AppSpec) {
			s.InitialStates = append(s.InitialStates, "ghost")
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			spec := twoRoundSpec(map[string]*scriptedRound{"work": {id: "work"}})
			tc.mutate(&spec)
			assert.Error(t, spec.Validate())
		})
	}
}

func TestAppSetupAndProcessEvent(t *testing.T) {
	work := &scriptedRound{id: "work"}
	app, err := NewApp(twoRoundSpec(map[string]*scriptedRound{"work": work}), log.TestingLogger())
	require.NoError(t, err)

	require.NoError(t, app.Setup(testState()))
	assert.Equal(t, "work", app.CurrentRoundID())
	assert.False(t, app.Finished())

	require.NoError(t, app.ProcessEvent(app.PeriodState(), "done"))
	assert.Equal(t, "end", app.CurrentRoundID())
	assert.True(t, app.Finished())
}

func TestProcessEventUnmappedEventFails(t *testing.T) {
	work := &scriptedRound{id: "work"}
	app, err := NewApp(twoRoundSpec(map[string]*scriptedRound{"work": work}), log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, app.Setup(testState()))

	assert.Error(t, app.ProcessEvent(app.PeriodState(), "unheard_of"))
}

func TestTimeoutSynthesizedFromBlockTime(t *testing.T) {
	entries := 0
	spec := twoRoundSpec(map[string]*scriptedRound{"work": {id: "work"}})
	spec.RoundFactories["work"] = func(ps *state.PeriodState) round.Round {
		entries++
		return &scriptedRound{id: "work", ps: ps}
	}

	app, err := NewApp(spec, log.TestingLogger())
	require.NoError(t, err)

	genesis := time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)
	app.SetBlockTime(genesis)
	require.NoError(t, app.Setup(testState()))
	require.Equal(t, 1, entries)

	// block before the 30s deadline: nothing fires
	require.NoError(t, app.CheckTimeouts(genesis.Add(29*time.Second)))
	assert.Equal(t, 1, entries)

	// block past the deadline: the timeout edge re-enters the round
	require.NoError(t, app.CheckTimeouts(genesis.Add(31*time.Second)))
	assert.Equal(t, "work", app.CurrentRoundID())
	assert.Equal(t, 2, entries, "the round is rebuilt on re-entry")
}

func TestTimeoutCancelledByTransition(t *testing.T) {
	work := &scriptedRound{id: "work"}
	app, err := NewApp(twoRoundSpec(map[string]*scriptedRound{"work": work}), log.TestingLogger())
	require.NoError(t, err)

	genesis := time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)
	app.SetBlockTime(genesis)
	require.NoError(t, app.Setup(testState()))

	// the round decides before its deadline
	require.NoError(t, app.ProcessEvent(app.PeriodState(), "done"))
	assert.True(t, app.Finished())

	// the stale timeout from the exited round must not fire into the final state
	require.NoError(t, app.CheckTimeouts(genesis.Add(5*time.Minute)))
	assert.Equal(t, "end", app.CurrentRoundID())
}

func TestGenerationAdvancesOnSelfTransition(t *testing.T) {
	work := &scriptedRound{id: "work"}
	app, err := NewApp(twoRoundSpec(map[string]*scriptedRound{"work": work}), log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, app.Setup(testState()))

	before := app.Generation()
	require.NoError(t, app.ProcessEvent(app.PeriodState(), "timeout"))
	assert.Equal(t, "work", app.CurrentRoundID())
	assert.Equal(t, before+1, app.Generation(), "re-entering the same round type is a new instance")
}

func TestRoundMarkersAreParseable(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewTMLogger(&buf)

	work := &scriptedRound{id: "work"}
	app, err := NewApp(twoRoundSpec(map[string]*scriptedRound{"work": work}), logger)
	require.NoError(t, err)
	require.NoError(t, app.Setup(testState()))
	require.NoError(t, app.ProcessEvent(app.PeriodState(), "done"))

	out := buf.String()
	assert.Contains(t, out, "Entered round work in period 0")
	assert.Contains(t, out, "work exited with event done")
}

func TestResetPeriodBumpsCountWhenUnchanged(t *testing.T) {
	work := &scriptedRound{id: "work"}
	app, err := NewApp(twoRoundSpec(map[string]*scriptedRound{"work": work}), log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, app.Setup(testState()))
	require.NoError(t, app.ProcessEvent(app.PeriodState(), "done"))
	require.True(t, app.Finished())

	require.NoError(t, app.ResetPeriod())
	assert.EqualValues(t, 1, app.PeriodCount(), "an unchanged count is bumped on reset")
	assert.Equal(t, "work", app.CurrentRoundID())
	assert.False(t, app.Finished())
}

func TestResetPeriodKeepsAgreedCount(t *testing.T) {
	work := &scriptedRound{id: "work"}
	app, err := NewApp(twoRoundSpec(map[string]*scriptedRound{"work": work}), log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, app.Setup(testState()))

	agreed := app.PeriodState().Update(map[string]interface{}{
		state.PeriodCountKey: int64(7),
	})
	require.NoError(t, app.ProcessEvent(agreed, "done"))
	require.NoError(t, app.ResetPeriod())

	assert.EqualValues(t, 7, app.PeriodCount(), "a count agreed during the period is kept")
}

func TestRoundExitEventFired(t *testing.T) {
	evsw := events.NewEventSwitch()
	require.NoError(t, evsw.Start())
	defer evsw.Stop()

	transitionsCh := make(chan RoundTransition, 2)
	require.NoError(t, evsw.AddListenerForEvent("test", EventRoundExit, func(data events.EventData) {
		transitionsCh <- data.(RoundTransition)
	}))

	work := &scriptedRound{id: "work"}
	app, err := NewApp(twoRoundSpec(map[string]*scriptedRound{"work": work}),
		log.TestingLogger(), SetEventSwitch(evsw))
	require.NoError(t, err)
	require.NoError(t, app.Setup(testState()))
	require.NoError(t, app.ProcessEvent(app.PeriodState(), "done"))

	select {
	case tr := <-transitionsCh:
		assert.Equal(t, "work", tr.Exited)
		assert.Equal(t, types.Event("done"), tr.Event)
		assert.Equal(t, "end", tr.Entered)
		assert.Equal(t, app.Generation(), tr.Generation)
	case <-time.After(time.Second):
		t.Fatal("expected a round exit notification")
	}
}
