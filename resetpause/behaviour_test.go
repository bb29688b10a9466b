package resetpause

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/kongzii/open-autonomy/behaviour"
	"github.com/kongzii/open-autonomy/crypto/bls"
	"github.com/kongzii/open-autonomy/privval"
	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/types"
)

type fakeObserver struct {
	round  string
	period int64
	gen    int64
}

func (o *fakeObserver) CurrentRoundID() string { return o.round }

func (o *fakeObserver) RoundGeneration() int64 { return o.gen }

func (o *fakeObserver) PeriodCount() int64 { return o.period }

func (o *fakeObserver) PeriodState() *state.PeriodState {
	return state.NewPeriodState(state.NewDB(nil))
}

type fakeBroadcaster struct {
	mtx sync.Mutex
	txs []tmtypes.Tx
}

func (bc *fakeBroadcaster) BroadcastTxSync(ctx context.Context, tx tmtypes.Tx) (*ctypes.ResultBroadcastTx, error) {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	bc.txs = append(bc.txs, tx)
	return &ctypes.ResultBroadcastTx{Code: 0}, nil
}

func newTestEnv(obs *fakeObserver, bc *fakeBroadcaster) *behaviour.Environment {
	return &behaviour.Environment{
		Logger:         log.TestingLogger(),
		Agent:          privval.NewFilePV(bls.GenPrivKeyWithSeed(1), ""),
		Observer:       obs,
		Broadcaster:    bc,
		RequestTimeout: time.Second,
	}
}

func decodePayload(t *testing.T, tx tmtypes.Tx) *Payload {
	stx, err := types.DecodeTx(tx)
	require.NoError(t, err)
	require.NoError(t, stx.Verify())
	return stx.Payload.(*Payload)
}

func TestResetBehaviourVotesNextPeriodCount(t *testing.T) {
	obs := &fakeObserver{round: ResetRoundID, period: 4}
	bc := &fakeBroadcaster{}
	env := newTestEnv(obs, bc)

	b := NewResetBehaviour()
	outcome, err := b.Act(env)
	require.NoError(t, err)
	assert.Equal(t, behaviour.OutcomeSuspend, outcome)
	require.Len(t, bc.txs, 1)

	p := decodePayload(t, bc.txs[0])
	assert.Equal(t, ResetRoundID, p.RoundID())
	assert.EqualValues(t, 5, p.PeriodCount)

	obs.round = FinishedResetRoundID
	outcome, err = b.Act(env)
	require.NoError(t, err)
	assert.Equal(t, behaviour.OutcomeDone, outcome)
	assert.Len(t, bc.txs, 1)
}

func TestResetBehaviourRetriedRoundEndsWait(t *testing.T) {
	obs := &fakeObserver{round: ResetRoundID, period: 0}
	bc := &fakeBroadcaster{}
	env := newTestEnv(obs, bc)

	b := NewResetBehaviour()
	outcome, err := b.Act(env)
	require.NoError(t, err)
	assert.Equal(t, behaviour.OutcomeSuspend, outcome)
	require.Len(t, bc.txs, 1)

	// no majority: the graph re-entered the same round type with an empty
	// collection, so the wait on the old instance is over
	obs.gen++
	outcome, err = b.Act(env)
	require.NoError(t, err)
	assert.Equal(t, behaviour.OutcomeDone, outcome)
	assert.Len(t, bc.txs, 1)
}

func TestPauseBehaviourIdlesBeforeVoting(t *testing.T) {
	obs := &fakeObserver{round: ResetAndPauseRoundID, period: 0}
	bc := &fakeBroadcaster{}
	env := newTestEnv(obs, bc)

	b := NewPauseBehaviour(50 * time.Millisecond)

	outcome, err := b.Act(env)
	require.NoError(t, err)
	assert.Equal(t, behaviour.OutcomeSuspend, outcome)
	assert.Empty(t, bc.txs, "no vote before the pause has elapsed")

	time.Sleep(60 * time.Millisecond)

	outcome, err = b.Act(env)
	require.NoError(t, err)
	assert.Equal(t, behaviour.OutcomeSuspend, outcome)
	require.Len(t, bc.txs, 1)
	assert.EqualValues(t, 1, decodePayload(t, bc.txs[0]).PeriodCount)
}

func TestPauseBehaviourResetClearsTimer(t *testing.T) {
	b := NewPauseBehaviour(time.Hour)
	obs := &fakeObserver{round: ResetAndPauseRoundID}
	env := newTestEnv(obs, &fakeBroadcaster{})

	outcome, err := b.Act(env)
	require.NoError(t, err)
	assert.Equal(t, behaviour.OutcomeSuspend, outcome)

	b.Reset()
	assert.False(t, b.TxSent())
}
