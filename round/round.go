// Package round implements one unit of agreement: payload collection from
// the participant set and the deterministic rule that turns the collected
// payloads into a single outcome at block-commit time.
package round

import (
	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/types"
)

// Round is one step of the application state machine. The protocol bridge is
// the only caller of the mutating methods; it invokes them in the total order
// the consensus engine imposes, so implementations need no locking.
type Round interface {
	// ID names the round instance; payloads carry it so the bridge can
	// discard submissions addressed to a round that is no longer active.
	ID() string

	// AllowedTxType is the only payload type this round admits.
	AllowedTxType() string

	// PeriodState is the snapshot this round was entered with.
	PeriodState() *state.PeriodState

	// CheckPayload validates a payload before it is ordered. It must not
	// mutate any state; failures are ErrTransactionNotValid.
	CheckPayload(p types.Payload) error

	// ProcessPayload applies an ordered payload to the collection. The same
	// conditions CheckPayload rejects are ErrInternal here.
	ProcessPayload(p types.Payload) error

	// EndBlock evaluates the collection at the end of a block. It is a pure
	// function of the collection and period state: ok is false while no
	// decision has been reached, otherwise next is the proposed period state
	// and ev the outcome event. Repeated evaluation without new payloads
	// returns the same result.
	EndBlock() (next *state.PeriodState, ev types.Event, ok bool)
}

// ConsensusThreshold is the BFT quorum: the smallest count strictly greater
// than two thirds of nbParticipants. With n = 3f+1 this tolerates f
// Byzantine participants, matching the engine's own quorum arithmetic.
func ConsensusThreshold(nbParticipants int) int {
	return nbParticipants - (nbParticipants-1)/3
}
