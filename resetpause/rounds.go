// Package resetpause implements the recycling stage: agents agree on the
// next period count and the framework resets the period, optionally pausing
// first so the service idles between runs.
package resetpause

import (
	"time"

	"github.com/kongzii/open-autonomy/fsm"
	"github.com/kongzii/open-autonomy/round"
	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/types"
)

const (
	ResetRoundID         = "reset"
	ResetAndPauseRoundID = "reset_and_pause"

	FinishedResetRoundID         = "finished_reset"
	FinishedResetAndPauseRoundID = "finished_reset_pause"
)

const (
	EventDone         types.Event = "done"
	EventNoMajority   types.Event = "no_majority"
	EventRoundTimeout types.Event = "round_timeout"
	EventResetTimeout types.Event = "reset_timeout"
)

const (
	RoundTimeout = 30 * time.Second
	ResetTimeout = 30 * time.Second
)

// TxType tags reset payloads on the wire.
const TxType = "reset"

// Payload votes for the period count the next period should carry.
type Payload struct {
	types.BasePayload
	PeriodCount int64 `json:"period_count"`
}

var _ types.Payload = (*Payload)(nil)

func (p *Payload) TxType() string { return TxType }

func NewPayload(sender types.Address, roundID string, periodCount int64) *Payload {
	return &Payload{
		BasePayload: types.BasePayload{PayloadSender: sender, PayloadRoundID: roundID},
		PeriodCount: periodCount,
	}
}

func init() {
	types.RegisterPayload(TxType, func() types.Payload { return &Payload{} })
}

func selectPeriodCount(p types.Payload) interface{} { return p.(*Payload).PeriodCount }

// NewResetRound agrees on the next period count mid-run, without ending the
// service. The winning count lands in the period state under the standard
// key.
func NewResetRound(ps *state.PeriodState) round.Round {
	return round.NewCollectSameUntilThreshold(
		ResetRoundID, TxType, ps, selectPeriodCount,
		round.WithDoneEvent(EventDone),
		round.WithNoMajorityEvent(EventNoMajority),
		round.WithStateKey(state.PeriodCountKey),
	)
}

// NewResetAndPauseRound is the final-stage variant: besides the agreed
// period count it carries every cross-period persisted key into the state
// the next period starts from.
func NewResetAndPauseRound(ps *state.PeriodState) round.Round {
	return round.NewCollectSameUntilThreshold(
		ResetAndPauseRoundID, TxType, ps, selectPeriodCount,
		round.WithDoneEvent(EventDone),
		round.WithNoMajorityEvent(EventNoMajority),
		round.WithStateKey(state.PeriodCountKey),
		round.WithCarryPersistedKeys(),
	)
}

// NewAppSpec is the transition graph of the recycling stage. Timeouts and
// failed majorities restart the same round; only an agreed count moves on.
func NewAppSpec() fsm.AppSpec {
	return fsm.AppSpec{
		InitialRound:  ResetAndPauseRoundID,
		InitialStates: []string{ResetRoundID, ResetAndPauseRoundID},
		TransitionFunction: map[string]map[types.Event]string{
			ResetAndPauseRoundID: {
				EventDone:         FinishedResetAndPauseRoundID,
				EventResetTimeout: ResetAndPauseRoundID,
				EventNoMajority:   ResetAndPauseRoundID,
			},
			ResetRoundID: {
				EventDone:         FinishedResetRoundID,
				EventResetTimeout: ResetRoundID,
				EventNoMajority:   ResetRoundID,
			},
		},
		FinalStates: []string{FinishedResetRoundID, FinishedResetAndPauseRoundID},
		EventToTimeout: map[types.Event]time.Duration{
			EventRoundTimeout: RoundTimeout,
			EventResetTimeout: ResetTimeout,
		},
		RoundFactories: map[string]fsm.RoundFactory{
			ResetRoundID:         NewResetRound,
			ResetAndPauseRoundID: NewResetAndPauseRound,
			FinishedResetRoundID: func(ps *state.PeriodState) round.Round {
				return round.NewDegenerate(FinishedResetRoundID, ps)
			},
			FinishedResetAndPauseRoundID: func(ps *state.PeriodState) round.Round {
				return round.NewDegenerate(FinishedResetAndPauseRoundID, ps)
			},
		},
	}
}
