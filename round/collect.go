package round

import (
	"github.com/pkg/errors"

	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/types"
)

// PayloadKeyFunc selects the attribute payloads are grouped by when counting
// votes. It must return a comparable value and depend only on payload
// content, never on arrival order.
type PayloadKeyFunc func(types.Payload) interface{}

// CollectSameUntilThreshold collects at most one payload per participant and
// decides once some payload value is shared by a quorum of senders.
//
// Application rounds embed it and either configure the default EndBlock
// policy or shadow EndBlock with their own state merging.
type CollectSameUntilThreshold struct {
	roundID   string
	txType    string
	selectKey PayloadKeyFunc

	// DoneEvent is emitted when the threshold is reached, NoMajorityEvent
	// once no value can reach it anymore.
	DoneEvent       types.Event
	NoMajorityEvent types.Event

	// StateKey is the period-state key that receives the winning value.
	StateKey string

	// CarryPersistedKeys marks a final-stage round: its decision carries
	// every cross-period persisted key verbatim into the proposed state.
	CarryPersistedKeys bool

	periodState *state.PeriodState
	collection  map[types.Address]types.Payload
}

type CollectOption func(*CollectSameUntilThreshold)

func WithDoneEvent(ev types.Event) CollectOption {
	return func(r *CollectSameUntilThreshold) { r.DoneEvent = ev }
}

func WithNoMajorityEvent(ev types.Event) CollectOption {
	return func(r *CollectSameUntilThreshold) { r.NoMajorityEvent = ev }
}

func WithStateKey(key string) CollectOption {
	return func(r *CollectSameUntilThreshold) { r.StateKey = key }
}

func WithCarryPersistedKeys() CollectOption {
	return func(r *CollectSameUntilThreshold) { r.CarryPersistedKeys = true }
}

func NewCollectSameUntilThreshold(
	roundID, txType string,
	periodState *state.PeriodState,
	selectKey PayloadKeyFunc,
	options ...CollectOption,
) *CollectSameUntilThreshold {
	r := &CollectSameUntilThreshold{
		roundID:     roundID,
		txType:      txType,
		selectKey:   selectKey,
		periodState: periodState,
		collection:  make(map[types.Address]types.Payload),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

var _ Round = (*CollectSameUntilThreshold)(nil)

func (r *CollectSameUntilThreshold) ID() string { return r.roundID }

func (r *CollectSameUntilThreshold) AllowedTxType() string { return r.txType }

func (r *CollectSameUntilThreshold) PeriodState() *state.PeriodState { return r.periodState }

// Collection returns a copy of the accepted payloads keyed by sender.
func (r *CollectSameUntilThreshold) Collection() map[types.Address]types.Payload {
	out := make(map[types.Address]types.Payload, len(r.collection))
	for k, v := range r.collection {
		out[k] = v
	}
	return out
}

// CheckPayload is the pure validation applied before the payload is ordered.
func (r *CollectSameUntilThreshold) CheckPayload(p types.Payload) error {
	if p.TxType() != r.txType {
		return errors.Wrapf(ErrTransactionNotValid,
			"round %s does not allow transactions of type %q", r.roundID, p.TxType())
	}
	sender := p.Sender()
	if !types.ContainsAddress(r.periodState.AllParticipants(), sender) {
		return errors.Wrapf(ErrTransactionNotValid,
			"%v not in list of participants", sender)
	}
	if _, ok := r.collection[sender]; ok {
		return errors.Wrapf(ErrTransactionNotValid,
			"sender %v has already sent value for round %s", sender, r.roundID)
	}
	return nil
}

// ProcessPayload records an ordered payload. The conditions CheckPayload
// filters are integrity errors here.
func (r *CollectSameUntilThreshold) ProcessPayload(p types.Payload) error {
	if p.TxType() != r.txType {
		return errors.Wrapf(ErrInternal,
			"round %s does not allow transactions of type %q", r.roundID, p.TxType())
	}
	sender := p.Sender()
	if !types.ContainsAddress(r.periodState.AllParticipants(), sender) {
		return errors.Wrapf(ErrInternal,
			"%v not in list of participants", sender)
	}
	if _, ok := r.collection[sender]; ok {
		return errors.Wrapf(ErrInternal,
			"sender %v has already sent value for round %s", sender, r.roundID)
	}
	r.collection[sender] = p
	return nil
}

// voteCounts groups the collected payloads by the selected attribute.
func voteCounts(collection map[types.Address]types.Payload, selectKey PayloadKeyFunc) map[interface{}]int {
	counts := make(map[interface{}]int)
	for _, p := range collection {
		counts[selectKey(p)]++
	}
	return counts
}

func largestGroup(counts map[interface{}]int) (value interface{}, size int) {
	for v, n := range counts {
		if n > size {
			value, size = v, n
		}
	}
	return value, size
}

// ThresholdReached reports whether some payload value is shared by a quorum
// of senders.
func (r *CollectSameUntilThreshold) ThresholdReached() bool {
	_, size := largestGroup(voteCounts(r.collection, r.selectKey))
	return size >= ConsensusThreshold(r.periodState.NbParticipants())
}

// MostVotedPayload returns the value of the largest payload group. It is
// defined only once the threshold is reached; asking earlier is an internal
// error.
func (r *CollectSameUntilThreshold) MostVotedPayload() (interface{}, error) {
	value, size := largestGroup(voteCounts(r.collection, r.selectKey))
	if size < ConsensusThreshold(r.periodState.NbParticipants()) {
		return nil, errors.Wrap(ErrInternal, "not enough votes; threshold not reached")
	}
	return value, nil
}

// IsMajorityPossible reports whether the currently-largest payload group
// could still reach the quorum if every participant yet to respond joined
// it. Once false, waiting for a timeout is pointless: the round can emit its
// no-majority event immediately.
func (r *CollectSameUntilThreshold) IsMajorityPossible(
	collection map[types.Address]types.Payload, nbParticipants int,
) bool {
	_, size := largestGroup(voteCounts(collection, r.selectKey))
	remaining := nbParticipants - len(collection)
	return size+remaining >= ConsensusThreshold(nbParticipants)
}

// EndBlock applies the default decision policy: a reached threshold yields
// the updated state and DoneEvent; an unreachable majority yields
// NoMajorityEvent without a state change; otherwise no decision.
func (r *CollectSameUntilThreshold) EndBlock() (*state.PeriodState, types.Event, bool) {
	if r.ThresholdReached() {
		winner, err := r.MostVotedPayload()
		if err != nil {
			// unreachable: guarded by ThresholdReached
			panic(err)
		}
		return r.BuildNextState(winner), r.DoneEvent, true
	}
	if !r.IsMajorityPossible(r.collection, r.periodState.NbParticipants()) {
		return r.periodState, r.NoMajorityEvent, true
	}
	return nil, "", false
}

// BuildNextState merges the winning value (and, for final-stage rounds, the
// cross-period persisted keys) into the period state.
func (r *CollectSameUntilThreshold) BuildNextState(winner interface{}) *state.PeriodState {
	kvs := map[string]interface{}{}
	if r.StateKey != "" {
		kvs[r.StateKey] = winner
	}
	if r.CarryPersistedKeys {
		for _, key := range r.periodState.DB().PersistedKeys() {
			// keys never written this period have nothing to carry
			if v, err := r.periodState.Get(key); err == nil {
				kvs[key] = v
			}
		}
	}
	return r.periodState.Update(kvs)
}
