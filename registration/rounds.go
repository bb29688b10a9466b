package registration

import (
	"github.com/pkg/errors"

	"github.com/kongzii/open-autonomy/fsm"
	"github.com/kongzii/open-autonomy/round"
	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/types"
)

const (
	StartupRoundID = "registration_startup"
	RoundID        = "registration"

	FinishedRoundID            = "finished_registration"
	FinishedFastForwardRoundID = "finished_registration_ffw"
)

const (
	EventDone       types.Event = "done"
	EventNoMajority types.Event = "no_majority"
)

// StartupRound waits for every known agent to announce itself. Unlike the
// threshold rounds it demands the full set: bootstrap without a complete
// roster would bake an incomplete participant list into the first period.
type StartupRound struct {
	periodState *state.PeriodState
	collection  map[types.Address]types.Payload
}

var _ round.Round = (*StartupRound)(nil)

func NewStartupRound(ps *state.PeriodState) *StartupRound {
	return &StartupRound{
		periodState: ps,
		collection:  make(map[types.Address]types.Payload),
	}
}

func (r *StartupRound) ID() string { return StartupRoundID }

func (r *StartupRound) AllowedTxType() string { return TxType }

func (r *StartupRound) PeriodState() *state.PeriodState { return r.periodState }

func (r *StartupRound) CheckPayload(p types.Payload) error {
	if p.TxType() != TxType {
		return errors.Wrapf(round.ErrTransactionNotValid,
			"round %s does not allow transactions of type %q", StartupRoundID, p.TxType())
	}
	sender := p.Sender()
	if !types.ContainsAddress(r.periodState.AllParticipants(), sender) {
		return errors.Wrapf(round.ErrTransactionNotValid,
			"%v not in list of participants", sender)
	}
	if _, ok := r.collection[sender]; ok {
		return errors.Wrapf(round.ErrTransactionNotValid,
			"sender %v has already registered", sender)
	}
	return nil
}

func (r *StartupRound) ProcessPayload(p types.Payload) error {
	if err := r.CheckPayload(p); err != nil {
		return errors.Wrap(round.ErrInternal, err.Error())
	}
	r.collection[p.Sender()] = p
	return nil
}

// EndBlock completes once every agent has registered; the collected senders
// become the participant set of the period.
func (r *StartupRound) EndBlock() (*state.PeriodState, types.Event, bool) {
	if len(r.collection) < len(r.periodState.AllParticipants()) {
		return nil, "", false
	}
	participants := make([]types.Address, 0, len(r.collection))
	for sender := range r.collection {
		participants = append(participants, sender)
	}
	participants = types.SortAddresses(participants)
	next := r.periodState.Update(map[string]interface{}{
		state.ParticipantsKey: participants,
	})
	return next, EventDone, true
}

// Round re-registers agents for periods after the first. A quorum agreeing
// on the same initialisation is enough; stragglers catch up from state sync.
type Round struct {
	*round.CollectSameUntilThreshold
}

var _ round.Round = (*Round)(nil)

func NewRound(ps *state.PeriodState) *Round {
	return &Round{
		CollectSameUntilThreshold: round.NewCollectSameUntilThreshold(
			RoundID, TxType, ps,
			func(p types.Payload) interface{} { return p.(*Payload).Initialisation },
			round.WithDoneEvent(EventDone),
			round.WithNoMajorityEvent(EventNoMajority),
		),
	}
}

// EndBlock shadows the default policy: the winning group, not the whole
// roster, becomes the new participant set.
func (r *Round) EndBlock() (*state.PeriodState, types.Event, bool) {
	if !r.ThresholdReached() {
		if !r.IsMajorityPossible(r.Collection(), r.PeriodState().NbParticipants()) {
			return r.PeriodState(), EventNoMajority, true
		}
		return nil, "", false
	}
	winner, err := r.MostVotedPayload()
	if err != nil {
		panic(err)
	}
	participants := make([]types.Address, 0)
	for sender, p := range r.Collection() {
		if p.(*Payload).Initialisation == winner.(string) {
			participants = append(participants, sender)
		}
	}
	participants = types.SortAddresses(participants)
	next := r.PeriodState().Update(map[string]interface{}{
		state.ParticipantsKey: participants,
	})
	return next, EventDone, true
}

// NewAppSpec is the transition graph of the registration stage. Both finished
// rounds are final so a composed application can glue fresh starts and
// re-registrations to different continuation rounds.
func NewAppSpec() fsm.AppSpec {
	return fsm.AppSpec{
		InitialRound:  StartupRoundID,
		InitialStates: []string{StartupRoundID, RoundID},
		TransitionFunction: map[string]map[types.Event]string{
			StartupRoundID: {
				EventDone: FinishedRoundID,
			},
			RoundID: {
				EventDone:       FinishedFastForwardRoundID,
				EventNoMajority: RoundID,
			},
		},
		FinalStates: []string{FinishedRoundID, FinishedFastForwardRoundID},
		RoundFactories: map[string]fsm.RoundFactory{
			StartupRoundID: func(ps *state.PeriodState) round.Round { return NewStartupRound(ps) },
			RoundID:        func(ps *state.PeriodState) round.Round { return NewRound(ps) },
			FinishedRoundID: func(ps *state.PeriodState) round.Round {
				return round.NewDegenerate(FinishedRoundID, ps)
			},
			FinishedFastForwardRoundID: func(ps *state.PeriodState) round.Round {
				return round.NewDegenerate(FinishedFastForwardRoundID, ps)
			},
		},
	}
}
