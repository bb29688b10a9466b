package registration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
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
	"github.com/kongzii/open-autonomy/registry"
	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/types"
)

type fakeObserver struct {
	mtx   sync.Mutex
	round string
	ps    *state.PeriodState
}

func (o *fakeObserver) CurrentRoundID() string {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.round
}

func (o *fakeObserver) RoundGeneration() int64 { return 0 }

func (o *fakeObserver) PeriodCount() int64 { return 0 }

func (o *fakeObserver) PeriodState() *state.PeriodState { return o.ps }

func (o *fakeObserver) setRound(round string) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.round = round
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

type mapPeerExchange struct {
	configs map[types.Address]registry.ValidatorConfig
}

func (m *mapPeerExchange) Request(ctx context.Context, peer types.Address) (*registry.ValidatorConfig, error) {
	cfg, ok := m.configs[peer]
	if !ok {
		return nil, fmt.Errorf("no sidecar known for %v", peer)
	}
	return &cfg, nil
}

type sidecarCounts struct {
	mtx     sync.Mutex
	updates int
	starts  int
}

func newFakeSidecar(counts *sidecarCounts) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/params" && r.Method == http.MethodGet:
			fmt.Fprint(w, `{"params": {"address": "AABB", "pub_key": {"type": "tendermint/PubKeyEd25519", "value": "self"}}, "status": true, "error": null}`)
		case r.URL.Path == "/params" && r.Method == http.MethodPost:
			counts.mtx.Lock()
			counts.updates++
			counts.mtx.Unlock()
			fmt.Fprint(w, `{"status": true, "error": null}`)
		case r.URL.Path == "/start":
			counts.mtx.Lock()
			counts.starts++
			counts.mtx.Unlock()
			fmt.Fprint(w, `{"response": "ok", "status": 200}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func newFakeRegistry(instances []types.Address) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify/0xregistry":
			fmt.Fprint(w, `{"verified": true, "error": ""}`)
		case "/services/7":
			bz, _ := cdc.Marshal(map[string]interface{}{
				"service_id": 7, "threshold": 3, "agent_instances": instances,
			})
			w.Write(bz)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestStartupBehaviourBootstrapsAndRegisters(t *testing.T) {
	pv := privval.NewFilePV(bls.GenPrivKeyWithSeed(1), "")
	self := pv.GetAddress()
	peer := types.AddressFromPubKey(bls.GenPrivKeyWithSeed(2).PubKey())

	counts := &sidecarCounts{}
	sidecarSrv := newFakeSidecar(counts)
	defer sidecarSrv.Close()
	registrySrv := newFakeRegistry([]types.Address{self, peer})
	defer registrySrv.Close()

	peers := &mapPeerExchange{configs: map[types.Address]registry.ValidatorConfig{
		peer: {Address: "CCDD", Power: "1", Name: string(peer)},
	}}

	b := NewStartupBehaviour(
		StartupConfig{
			ServiceRegistryAddress: "0xregistry",
			OnChainServiceID:       7,
			ChainID:                "autonomy-chain",
			GenesisTime:            "2022-01-01T00:00:00Z",
		},
		registry.NewServiceRegistry(registrySrv.URL),
		registry.NewSidecarClient(sidecarSrv.URL),
		peers,
	)

	obs := &fakeObserver{round: StartupRoundID, ps: state.NewPeriodState(state.NewDB(nil))}
	bc := &fakeBroadcaster{}
	env := &behaviour.Environment{
		Logger:         log.TestingLogger(),
		Agent:          pv,
		Observer:       obs,
		Broadcaster:    bc,
		SleepTime:      time.Millisecond,
		RequestTimeout: time.Second,
	}

	outcome, err := b.Act(env)
	require.NoError(t, err)
	assert.Equal(t, behaviour.OutcomeSuspend, outcome, "round still active after submission")
	assert.Equal(t, 1, counts.updates)
	assert.Equal(t, 1, counts.starts)
	require.Len(t, bc.txs, 1)

	stx, err := types.DecodeTx(bc.txs[0])
	require.NoError(t, err)
	require.NoError(t, stx.Verify())
	assert.Equal(t, self, stx.Payload.Sender())
	assert.Equal(t, StartupRoundID, stx.Payload.RoundID())

	// re-entry must not repeat the bootstrap side effects or resubmit
	obs.setRound(RoundID)
	outcome, err = b.Act(env)
	require.NoError(t, err)
	assert.Equal(t, behaviour.OutcomeDone, outcome)
	assert.Equal(t, 1, counts.updates)
	assert.Equal(t, 1, counts.starts)
	assert.Len(t, bc.txs, 1)
}

func TestStartupBehaviourWaitsForPeers(t *testing.T) {
	pv := privval.NewFilePV(bls.GenPrivKeyWithSeed(1), "")
	self := pv.GetAddress()
	peer := types.AddressFromPubKey(bls.GenPrivKeyWithSeed(2).PubKey())

	counts := &sidecarCounts{}
	sidecarSrv := newFakeSidecar(counts)
	defer sidecarSrv.Close()
	registrySrv := newFakeRegistry([]types.Address{self, peer})
	defer registrySrv.Close()

	peers := &mapPeerExchange{configs: map[types.Address]registry.ValidatorConfig{}}
	b := NewStartupBehaviour(
		StartupConfig{ServiceRegistryAddress: "0xregistry", OnChainServiceID: 7},
		registry.NewServiceRegistry(registrySrv.URL),
		registry.NewSidecarClient(sidecarSrv.URL),
		peers,
	)

	obs := &fakeObserver{round: StartupRoundID, ps: state.NewPeriodState(state.NewDB(nil))}
	bc := &fakeBroadcaster{}
	env := &behaviour.Environment{
		Logger:         log.TestingLogger(),
		Agent:          pv,
		Observer:       obs,
		Broadcaster:    bc,
		RequestTimeout: time.Second,
	}

	outcome, err := b.Act(env)
	require.NoError(t, err)
	assert.Equal(t, behaviour.OutcomeSuspend, outcome)
	assert.Equal(t, 0, counts.starts, "node must not restart before all peer configs are known")
	assert.Empty(t, bc.txs)

	// the missing peer comes online
	peers.configs[peer] = registry.ValidatorConfig{Address: "CCDD", Power: "1", Name: string(peer)}

	_, err = b.Act(env)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.starts)
	assert.Len(t, bc.txs, 1)
}

func TestBehaviourSubmitsAndWaits(t *testing.T) {
	pv := privval.NewFilePV(bls.GenPrivKeyWithSeed(1), "")
	obs := &fakeObserver{round: RoundID, ps: state.NewPeriodState(state.NewDB(nil))}
	bc := &fakeBroadcaster{}
	env := &behaviour.Environment{
		Logger:         log.TestingLogger(),
		Agent:          pv,
		Observer:       obs,
		Broadcaster:    bc,
		RequestTimeout: time.Second,
	}

	b := NewBehaviour()
	outcome, err := b.Act(env)
	require.NoError(t, err)
	assert.Equal(t, behaviour.OutcomeSuspend, outcome)
	require.Len(t, bc.txs, 1)

	obs.setRound("some_business_round")
	outcome, err = b.Act(env)
	require.NoError(t, err)
	assert.Equal(t, behaviour.OutcomeDone, outcome)
	assert.Len(t, bc.txs, 1)
}
