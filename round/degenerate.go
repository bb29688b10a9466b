package round

import (
	"github.com/pkg/errors"

	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/types"
)

// Degenerate is a terminal sink in the transition graph. It collects nothing
// and never decides; entering it ends the period.
type Degenerate struct {
	roundID     string
	periodState *state.PeriodState
}

var _ Round = (*Degenerate)(nil)

func NewDegenerate(roundID string, periodState *state.PeriodState) *Degenerate {
	return &Degenerate{roundID: roundID, periodState: periodState}
}

func (r *Degenerate) ID() string { return r.roundID }

func (r *Degenerate) AllowedTxType() string { return "" }

func (r *Degenerate) PeriodState() *state.PeriodState { return r.periodState }

func (r *Degenerate) CheckPayload(p types.Payload) error {
	return errors.Wrapf(ErrTransactionNotValid,
		"round %s is degenerate and accepts no transactions", r.roundID)
}

func (r *Degenerate) ProcessPayload(p types.Payload) error {
	return errors.Wrapf(ErrInternal,
		"round %s is degenerate and accepts no transactions", r.roundID)
}

func (r *Degenerate) EndBlock() (*state.PeriodState, types.Event, bool) {
	return nil, "", false
}
