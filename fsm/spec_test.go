package fsm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/kongzii/open-autonomy/round"
	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/types"
)

func degenerateFactory(id string) RoundFactory {
	return func(ps *state.PeriodState) round.Round {
		return round.NewDegenerate(id, ps)
	}
}

func firstSpec() AppSpec {
	return AppSpec{
		InitialRound:  "alpha",
		InitialStates: []string{"alpha"},
		TransitionFunction: map[string]map[types.Event]string{
			"alpha": {"done": "alpha_end"},
		},
		FinalStates: []string{"alpha_end"},
		EventToTimeout: map[types.Event]time.Duration{
			"timeout": 10 * time.Second,
		},
		RoundFactories: map[string]RoundFactory{
			"alpha":     func(ps *state.PeriodState) round.Round { return &scriptedRound{id: "alpha", ps: ps} },
			"alpha_end": degenerateFactory("alpha_end"),
		},
	}
}

func secondSpec() AppSpec {
	return AppSpec{
		InitialRound:  "beta",
		InitialStates: []string{"beta"},
		TransitionFunction: map[string]map[types.Event]string{
			"beta": {"done": "beta_end"},
		},
		FinalStates: []string{"beta_end"},
		EventToTimeout: map[types.Event]time.Duration{
			"timeout": 20 * time.Second,
		},
		RoundFactories: map[string]RoundFactory{
			"beta":     func(ps *state.PeriodState) round.Round { return &scriptedRound{id: "beta", ps: ps} },
			"beta_end": degenerateFactory("beta_end"),
		},
	}
}

func TestChain(t *testing.T) {
	combined, err := Chain(firstSpec(), secondSpec(), map[string]string{"alpha_end": "beta"})
	require.NoError(t, err)

	assert.Equal(t, "alpha", combined.InitialRound)
	assert.Equal(t, "beta", combined.TransitionFunction["alpha"]["done"], "glued final is rewired to the second app")
	assert.Equal(t, []string{"beta_end"}, combined.FinalStates, "glued finals are no longer final")

	// second spec's timeouts win on conflict
	assert.Equal(t, 20*time.Second, combined.EventToTimeout["timeout"])

	_, hasGluedFactory := combined.RoundFactories["alpha_end"]
	assert.False(t, hasGluedFactory, "glued rounds need no factory")

	require.NoError(t, combined.Validate())
}

func TestChainRunsThroughBothStages(t *testing.T) {
	combined, err := Chain(firstSpec(), secondSpec(), map[string]string{"alpha_end": "beta"})
	require.NoError(t, err)

	app, err := NewApp(combined, log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, app.Setup(testState()))

	require.NoError(t, app.ProcessEvent(app.PeriodState(), "done"))
	assert.Equal(t, "beta", app.CurrentRoundID())
	assert.False(t, app.Finished())

	require.NoError(t, app.ProcessEvent(app.PeriodState(), "done"))
	assert.Equal(t, "beta_end", app.CurrentRoundID())
	assert.True(t, app.Finished())
}

func TestChainRejectsBadGlue(t *testing.T) {
	_, err := Chain(firstSpec(), secondSpec(), map[string]string{"alpha": "beta"})
	assert.Error(t, err, "only final states of the first app can be glued")

	_, err = Chain(firstSpec(), secondSpec(), map[string]string{"alpha_end": "nowhere"})
	assert.Error(t, err, "glue must target a round of the second app")
}
