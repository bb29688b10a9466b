// Package behaviour runs the agent-local side of the protocol: one
// cooperative step function per round type, which builds this agent's
// payload, submits it to the consensus engine and suspends until the
// mirrored round has been exited.
package behaviour

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/kongzii/open-autonomy/privval"
	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/types"
)

// Outcome is the result of one behaviour step. Suspension points replace
// hidden generator state: a behaviour is simply re-entered later and
// re-checks its own preconditions.
type Outcome int

const (
	// OutcomeContinue re-enters the step immediately; it made progress and
	// has more to do.
	OutcomeContinue Outcome = iota

	// OutcomeSuspend parks the behaviour until a round transition wakes it
	// or the back-off timer fires.
	OutcomeSuspend

	// OutcomeDone completes the behaviour; the scheduler advances to the
	// behaviour mirroring the new active round.
	OutcomeDone
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeSuspend:
		return "suspend"
	case OutcomeDone:
		return "done"
	default:
		return "unknown"
	}
}

// RoundObserver is the scheduler's read-only view of the bridge-owned
// transition graph.
type RoundObserver interface {
	CurrentRoundID() string

	// RoundGeneration identifies the active round instance; it changes on
	// every round entry, including a transition back into the same round
	// type. A retried round starts with an empty collection, so waiting on
	// the round ID alone would miss the exit.
	RoundGeneration() int64

	PeriodCount() int64
	PeriodState() *state.PeriodState
}

// TxBroadcaster submits a transaction to the local consensus engine.
// Satisfied by the Tendermint RPC client.
type TxBroadcaster interface {
	BroadcastTxSync(ctx context.Context, tx tmtypes.Tx) (*ctypes.ResultBroadcastTx, error)
}

// Environment is everything a behaviour step may touch. The scheduler owns
// it; behaviours only read it and submit transactions through it.
type Environment struct {
	Logger      log.Logger
	Agent       *privval.FilePV
	Observer    RoundObserver
	Broadcaster TxBroadcaster

	// SleepTime bounds the back-off between retries of a failed step.
	SleepTime time.Duration

	// RequestTimeout bounds every outbound call a step makes.
	RequestTimeout time.Duration
}

// Behaviour mirrors one round type. Act is re-entered until it returns
// OutcomeDone; any returned error is absorbed by the scheduler into one
// bounded sleep followed by re-entry.
type Behaviour interface {
	// StateID names the behaviour in logs.
	StateID() string

	// MatchingRound is the round type this behaviour mirrors.
	MatchingRound() string

	// Act performs one step.
	Act(env *Environment) (Outcome, error)

	// Reset clears per-run progress so the behaviour can serve a new
	// period. Called by the scheduler on entry; state never leaks between
	// runs through shared defaults.
	Reset()
}

// BaseBehaviour carries the bookkeeping every payload-submitting behaviour
// shares. Concrete behaviours embed it.
type BaseBehaviour struct {
	stateID       string
	matchingRound string

	txSent bool
	txGen  int64
}

func NewBaseBehaviour(stateID, matchingRound string) BaseBehaviour {
	return BaseBehaviour{stateID: stateID, matchingRound: matchingRound}
}

func (b *BaseBehaviour) StateID() string { return b.stateID }

func (b *BaseBehaviour) MatchingRound() string { return b.matchingRound }

func (b *BaseBehaviour) Reset() { b.txSent = false }

// TxSent reports whether this run already submitted its payload.
func (b *BaseBehaviour) TxSent() bool { return b.txSent }

// SendTransaction signs the payload and submits it to the engine's mempool.
// A non-zero result code means the bridge rejected it at check time.
func (b *BaseBehaviour) SendTransaction(env *Environment, p types.Payload) error {
	tx, err := env.Agent.SignPayload(p)
	if err != nil {
		return errors.Wrap(err, "failed to sign payload")
	}

	ctx, cancel := context.WithTimeout(context.Background(), env.RequestTimeout)
	defer cancel()

	res, err := env.Broadcaster.BroadcastTxSync(ctx, tmtypes.Tx(tx))
	if err != nil {
		return errors.Wrap(err, "failed to broadcast transaction")
	}
	if res.Code != 0 {
		return errors.Errorf("transaction rejected with code %d: %s", res.Code, res.Log)
	}
	b.txSent = true
	b.txGen = env.Observer.RoundGeneration()
	env.Logger.Debug("payload submitted", "behaviour", b.stateID, "tx", res.Hash)
	return nil
}

// WaitUntilRoundEnd suspends while the round instance the payload targeted
// is still active and completes once the bridge has advanced past it. The
// generation check covers self-transitions: the same round type entered
// again is a new instance and the wait is over.
func (b *BaseBehaviour) WaitUntilRoundEnd(env *Environment) Outcome {
	if env.Observer.CurrentRoundID() != b.matchingRound {
		return OutcomeDone
	}
	if b.txSent && env.Observer.RoundGeneration() != b.txGen {
		return OutcomeDone
	}
	return OutcomeSuspend
}

// SubmitAndWait is the standard behaviour body: submit the payload once,
// then wait for the mirrored round to be exited. Failed submissions suspend
// and are retried on re-entry.
func (b *BaseBehaviour) SubmitAndWait(env *Environment, build func() types.Payload) (Outcome, error) {
	if !b.txSent {
		if err := b.SendTransaction(env, build()); err != nil {
			return OutcomeSuspend, err
		}
	}
	return b.WaitUntilRoundEnd(env), nil
}
