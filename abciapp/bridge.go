// Package abciapp is the protocol bridge: it receives the consensus
// engine's ABCI lifecycle calls and drives the transition graph and the
// synchronized state forward. It is the single writer of both.
package abciapp

import (
	"crypto/sha256"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	abci "github.com/tendermint/tendermint/abci/types"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/kongzii/open-autonomy/fsm"
	"github.com/kongzii/open-autonomy/libs/metric"
	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/store"
	"github.com/kongzii/open-autonomy/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Bridge implements abci.Application over a transition graph. The engine
// serializes calls per connection; the mutex keeps the mempool connection
// (check_tx) from racing the consensus connection (deliver/begin/end/commit).
type Bridge struct {
	abci.BaseApplication

	mtx    sync.Mutex
	logger log.Logger

	stateDB *state.DB
	app     *fsm.App
	store   *store.Store

	height      int64
	blockTime   time.Time
	lastAppHash []byte

	metric *bridgeMetric

	handlers map[string]handlerFunc
}

type BridgeOption func(*Bridge)

// SetStore attaches the durable snapshot/audit store.
func SetStore(s *store.Store) BridgeOption {
	return func(b *Bridge) { b.store = s }
}

func NewBridge(stateDB *state.DB, app *fsm.App, logger log.Logger, options ...BridgeOption) *Bridge {
	b := &Bridge{
		logger:  logger,
		stateDB: stateDB,
		app:     app,
		metric:  newBridgeMetric(),
	}
	for _, option := range options {
		option(b)
	}
	b.registerHandlers()
	return b
}

func (b *Bridge) SetLogger(logger log.Logger) {
	b.logger = logger
}

// SubscribeTransitions records every round exit in the audit store. Wired by
// the node once the event switch is running.
func (b *Bridge) SubscribeTransitions(evsw events.EventSwitch) error {
	if b.store == nil {
		return nil
	}
	return evsw.AddListenerForEvent("bridge-audit", fsm.EventRoundExit, func(data events.EventData) {
		transition, ok := data.(fsm.RoundTransition)
		if !ok {
			return
		}
		entry := store.TransitionEntry{
			Time:    b.blockTime,
			Height:  b.height,
			Period:  transition.Period,
			Round:   transition.Exited,
			Event:   transition.Event,
			Entered: transition.Entered,
		}
		if err := b.store.SaveTransition(entry); err != nil {
			b.logger.Error("failed to record round transition", "err", err)
		}
	})
}

// Info reports the last committed height and app hash so the engine can
// decide whether to replay blocks.
func (b *Bridge) Info(req abci.RequestInfo) abci.ResponseInfo {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	return abci.ResponseInfo{
		Data:             "round-based state machine",
		LastBlockHeight:  b.height,
		LastBlockAppHash: b.lastAppHash,
	}
}

// InitChain seeds the synchronized state from the genesis app state and
// enters the graph's starting round.
func (b *Bridge) InitChain(req abci.RequestInitChain) abci.ResponseInitChain {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if len(req.AppStateBytes) > 0 {
		var initialData map[string]interface{}
		if err := json.Unmarshal(req.AppStateBytes, &initialData); err != nil {
			panic("malformed genesis app state: " + err.Error())
		}
		b.stateDB.SeedInitialData(initialData)
	}

	b.blockTime = req.Time
	b.app.SetBlockTime(req.Time)
	if err := b.app.Setup(state.NewPeriodState(b.stateDB)); err != nil {
		// a graph that cannot start is a configuration error; fail fast
		panic("failed to set up transition graph: " + err.Error())
	}
	return abci.ResponseInitChain{}
}

// CheckTx validates a payload before the engine orders it. Rejected
// transactions never enter the mempool and no state is touched.
func (b *Bridge) CheckTx(req abci.RequestCheckTx) abci.ResponseCheckTx {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	stx, code, logMsg := b.decodeAndVerify(req.Tx)
	if code != CodeTypeOK {
		b.metric.MarkTxChecked(false)
		return abci.ResponseCheckTx{Code: code, Log: logMsg}
	}
	round := b.app.CurrentRound()
	if stx.Payload.RoundID() != round.ID() {
		b.metric.MarkTxChecked(false)
		return abci.ResponseCheckTx{
			Code: CodeTypeStaleRound,
			Log:  "payload targets round " + stx.Payload.RoundID() + ", active round is " + round.ID(),
		}
	}
	if err := round.CheckPayload(stx.Payload); err != nil {
		b.metric.MarkTxChecked(false)
		return abci.ResponseCheckTx{Code: CodeTypeInvalidTx, Log: err.Error()}
	}
	b.metric.MarkTxChecked(true)
	return abci.ResponseCheckTx{Code: CodeTypeOK}
}

// DeliverTx applies an ordered payload to the active round. Late payloads
// addressed to an exited round are discarded with a stale code; validation
// failures at this point are integrity errors, logged and dropped.
func (b *Bridge) DeliverTx(req abci.RequestDeliverTx) abci.ResponseDeliverTx {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	stx, code, logMsg := b.decodeAndVerify(req.Tx)
	if code != CodeTypeOK {
		return abci.ResponseDeliverTx{Code: code, Log: logMsg}
	}
	round := b.app.CurrentRound()
	if stx.Payload.RoundID() != round.ID() {
		return abci.ResponseDeliverTx{
			Code: CodeTypeStaleRound,
			Log:  "payload targets round " + stx.Payload.RoundID() + ", active round is " + round.ID(),
		}
	}
	if err := round.ProcessPayload(stx.Payload); err != nil {
		b.logger.Error("ordered payload failed to apply", "round", round.ID(), "err", err)
		return abci.ResponseDeliverTx{Code: CodeTypeInternalError, Log: err.Error()}
	}
	b.metric.MarkTxDelivered()
	return abci.ResponseDeliverTx{Code: CodeTypeOK}
}

// BeginBlock records the new block's height and time and fires any round
// timeouts that came due, advancing the graph for each.
func (b *Bridge) BeginBlock(req abci.RequestBeginBlock) abci.ResponseBeginBlock {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	b.height = req.Header.Height
	b.blockTime = req.Header.Time
	b.metric.MarkBlock(b.height, b.blockTime)
	if err := b.app.CheckTimeouts(req.Header.Time); err != nil {
		panic("transition graph misconfigured: " + err.Error())
	}
	b.finishPeriodIfNeeded()
	return abci.ResponseBeginBlock{}
}

// EndBlock evaluates the active round after every transaction of the block
// has been delivered, and advances the graph if it decided.
func (b *Bridge) EndBlock(req abci.RequestEndBlock) abci.ResponseEndBlock {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	round := b.app.CurrentRound()
	if round == nil {
		return abci.ResponseEndBlock{}
	}
	if next, ev, ok := round.EndBlock(); ok {
		if err := b.app.ProcessEvent(next, ev); err != nil {
			panic("transition graph misconfigured: " + err.Error())
		}
		b.metric.MarkRoundExited()
		b.finishPeriodIfNeeded()
		b.metric.MarkRound(b.app.CurrentRoundID(), b.app.PeriodCount())
	}
	return abci.ResponseEndBlock{}
}

// Commit finalizes the height: the state snapshot is hashed and persisted.
func (b *Bridge) Commit() abci.ResponseCommit {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	blob, err := b.stateBlob()
	if err != nil {
		panic("failed to serialize period state: " + err.Error())
	}
	hash := sha256.Sum256(blob)
	b.lastAppHash = hash[:]

	if b.store != nil {
		if err := b.store.SaveSnapshot(b.height, blob); err != nil {
			b.logger.Error("failed to persist state snapshot", "height", b.height, "err", err)
		}
	}
	return abci.ResponseCommit{Data: b.lastAppHash}
}

// Query serves read-only bookkeeping requests; it carries no application
// state forward.
func (b *Bridge) Query(req abci.RequestQuery) abci.ResponseQuery {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	switch req.Path {
	case "round":
		return abci.ResponseQuery{Code: CodeTypeOK, Value: []byte(b.app.CurrentRoundID()), Height: b.height}
	case "period_state":
		blob, err := b.stateBlob()
		if err != nil {
			return abci.ResponseQuery{Code: CodeTypeInternalError, Log: err.Error()}
		}
		return abci.ResponseQuery{Code: CodeTypeOK, Value: blob, Height: b.height}
	default:
		return abci.ResponseQuery{Code: CodeTypeOK, Height: b.height}
	}
}

// Metric returns the bridge's metric item for registration with a metric
// set.
func (b *Bridge) Metric() metric.MetricItem {
	return b.metric
}

// Height returns the last begun block height.
func (b *Bridge) Height() int64 {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.height
}

// App exposes the transition graph for read access (scheduler, rpc).
func (b *Bridge) App() *fsm.App {
	return b.app
}

// CurrentRoundID returns the identifier of the active round. Safe to call
// concurrently with the protocol connections.
func (b *Bridge) CurrentRoundID() string {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.app.CurrentRoundID()
}

// RoundGeneration identifies the active round instance. A self-transition
// back into the same round type still advances it.
func (b *Bridge) RoundGeneration() int64 {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.app.Generation()
}

// PeriodCount returns the number of completed periods.
func (b *Bridge) PeriodCount() int64 {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.app.PeriodCount()
}

// PeriodState returns the active period state snapshot. Snapshots are
// immutable so the caller may read it without further locking.
func (b *Bridge) PeriodState() *state.PeriodState {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.app.PeriodState()
}

func (b *Bridge) finishPeriodIfNeeded() {
	if !b.app.Finished() {
		return
	}
	if err := b.app.ResetPeriod(); err != nil {
		panic("failed to reset period: " + err.Error())
	}
	b.metric.MarkPeriodClosed()
}

func (b *Bridge) stateBlob() ([]byte, error) {
	ps := b.app.PeriodState()
	if ps == nil {
		return []byte("{}"), nil
	}
	// map keys are serialized in sorted order, so the blob and its hash are
	// identical on every replica
	return json.Marshal(ps.GetAll())
}

func (b *Bridge) decodeAndVerify(tx []byte) (*types.SignedTx, uint32, string) {
	if b.app.CurrentRound() == nil {
		return nil, CodeTypeNotInitialized, "application not initialized"
	}
	stx, err := types.DecodeTx(tx)
	if err != nil {
		return nil, CodeTypeEncodingError, err.Error()
	}
	if err := stx.Verify(); err != nil {
		return nil, CodeTypeUnauthorized, err.Error()
	}
	return stx, CodeTypeOK, ""
}
