// Package node assembles one agent: the protocol bridge served over an ABCI
// socket, the behaviour scheduler, the durable store and the query rpc.
package node

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	abciserver "github.com/tendermint/tendermint/abci/server"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	rpchttp "github.com/tendermint/tendermint/rpc/client/http"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"

	"github.com/kongzii/open-autonomy/abciapp"
	"github.com/kongzii/open-autonomy/behaviour"
	"github.com/kongzii/open-autonomy/fsm"
	"github.com/kongzii/open-autonomy/libs/metric"
	"github.com/kongzii/open-autonomy/privval"
	"github.com/kongzii/open-autonomy/registration"
	"github.com/kongzii/open-autonomy/registry"
	"github.com/kongzii/open-autonomy/resetpause"
	"github.com/kongzii/open-autonomy/rpc"
	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/store"
	"github.com/kongzii/open-autonomy/types"
)

type Provider func(*Config, log.Logger) (*Node, error)

// Node wires the agent's services together and manages their lifecycle.
type Node struct {
	service.BaseService

	config *Config
	agent  *privval.FilePV

	evsw    events.EventSwitch
	stateDB *state.DB
	app     *fsm.App
	bridge  *abciapp.Bridge
	store   *store.Store

	abciSrv   service.Service
	scheduler *behaviour.Scheduler

	rpcListeners []interface{ Close() error }

	metricSet *metric.MetricSet
}

type Option func(*Node)

// DefaultAppSpec chains the bootstrap stage into the recycling stage: both
// registration outcomes continue at reset-and-pause, whose finished round
// closes the period.
func DefaultAppSpec() (fsm.AppSpec, error) {
	return fsm.Chain(
		registration.NewAppSpec(),
		resetpause.NewAppSpec(),
		map[string]string{
			registration.FinishedRoundID:            resetpause.ResetAndPauseRoundID,
			registration.FinishedFastForwardRoundID: resetpause.ResetAndPauseRoundID,
		},
	)
}

func DefaultNewNode(config *Config, logger log.Logger) (*Node, error) {
	spec, err := DefaultAppSpec()
	if err != nil {
		return nil, err
	}
	return NewNode(config, spec, logger)
}

func NewNode(config *Config, spec fsm.AppSpec, logger log.Logger, options ...Option) (*Node, error) {
	if err := config.ValidateBasic(); err != nil {
		return nil, err
	}

	agent := privval.LoadFilePV(config.KeyFile())

	evsw := events.NewEventSwitch()
	evsw.SetLogger(logger.With("module", "events"))

	stateDB := state.NewDB(
		config.InitialData(),
		state.WithPersistedKeys(config.PersistedKeys...),
	)

	st, err := store.NewStore("autonomy", config.DBDir(), logger.With("module", "store"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open store")
	}

	app, err := fsm.NewApp(spec, logger.With("module", "fsm"),
		fsm.SetEventSwitch(evsw),
		fsm.SetRestartRound(registration.RoundID),
	)
	if err != nil {
		return nil, err
	}

	bridge := abciapp.NewBridge(stateDB, app, logger.With("module", "bridge"),
		abciapp.SetStore(st),
	)

	abciSrv := abciserver.NewSocketServer(config.ProxyAppListen, bridge)
	abciSrv.SetLogger(logger.With("module", "abci-server"))

	metricSet := metric.NewMetricSet()
	if err := metricSet.SetMetrics("bridge", bridge.Metric()); err != nil {
		return nil, err
	}

	node := &Node{
		config:    config,
		agent:     agent,
		evsw:      evsw,
		stateDB:   stateDB,
		app:       app,
		bridge:    bridge,
		store:     st,
		abciSrv:   abciSrv,
		metricSet: metricSet,
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)
	for _, option := range options {
		option(node)
	}
	return node, nil
}

func (n *Node) OnStart() error {
	if err := n.evsw.Start(); err != nil {
		return err
	}
	if err := n.bridge.SubscribeTransitions(n.evsw); err != nil {
		return err
	}

	if err := n.abciSrv.Start(); err != nil {
		return errors.Wrap(err, "failed to start abci server")
	}

	if err := n.startRPC(); err != nil {
		return err
	}

	return n.startScheduler()
}

func (n *Node) OnStop() {
	if n.scheduler != nil {
		if err := n.scheduler.Stop(); err != nil {
			n.Logger.Error("failed to stop scheduler", "err", err)
		}
	}
	for _, l := range n.rpcListeners {
		if err := l.Close(); err != nil {
			n.Logger.Error("failed to close rpc listener", "err", err)
		}
	}
	if err := n.abciSrv.Stop(); err != nil {
		n.Logger.Error("failed to stop abci server", "err", err)
	}
	if err := n.evsw.Stop(); err != nil {
		n.Logger.Error("failed to stop event switch", "err", err)
	}
	if err := n.store.Close(); err != nil {
		n.Logger.Error("failed to close store", "err", err)
	}
}

// Bridge exposes the protocol bridge, mainly for tests.
func (n *Node) Bridge() *abciapp.Bridge { return n.bridge }

func (n *Node) startRPC() error {
	rpc.SetEnvironment(&rpc.Environment{
		Bridge:    n.bridge,
		Store:     n.store,
		MetricSet: n.metricSet,
	})

	if n.config.RPCListen == "" {
		return nil
	}

	rpcLogger := n.Logger.With("module", "rpc")
	mux := http.NewServeMux()
	rpcserver.RegisterRPCFuncs(mux, rpc.Routes, rpcLogger)
	rpcConfig := rpcserver.DefaultConfig()

	listener, err := rpcserver.Listen(n.config.RPCListen, rpcConfig)
	if err != nil {
		return errors.Wrap(err, "failed to listen on rpc address")
	}
	n.rpcListeners = append(n.rpcListeners, listener)

	go func() {
		if err := rpcserver.Serve(listener, mux, rpcLogger, rpcConfig); err != nil {
			rpcLogger.Error("rpc server terminated", "err", err)
		}
	}()
	return nil
}

func (n *Node) startScheduler() error {
	client, err := rpchttp.New(n.config.EngineRPCAddr, "/websocket")
	if err != nil {
		return errors.Wrap(err, "failed to create engine rpc client")
	}

	env := &behaviour.Environment{
		Logger:         n.Logger.With("module", "behaviour"),
		Agent:          n.agent,
		Observer:       n.bridge,
		Broadcaster:    client,
		SleepTime:      n.config.SleepTime,
		RequestTimeout: n.config.RequestTimeout,
	}

	sidecar := registry.NewSidecarClient(n.config.SidecarAddr)
	serviceRegistry := registry.NewServiceRegistry(n.config.RegistryAddr)
	peers := &sidecarPeerExchange{peers: n.config.PeerSidecars}

	behaviours := []behaviour.Behaviour{
		registration.NewStartupBehaviour(
			registration.StartupConfig{
				ServiceRegistryAddress: n.config.ServiceRegistryAddress,
				OnChainServiceID:       n.config.OnChainServiceID,
				ChainID:                n.config.ChainID,
				GenesisTime:            n.config.GenesisTime,
			},
			serviceRegistry, sidecar, peers,
		),
		registration.NewBehaviour(),
		resetpause.NewPauseBehaviour(n.config.PauseInterval),
		resetpause.NewResetBehaviour(),
	}

	scheduler, err := behaviour.NewScheduler(env, behaviours)
	if err != nil {
		return err
	}
	scheduler.SetEventSwitch(n.evsw)
	if err := n.metricSet.SetMetrics("scheduler", scheduler.Metric()); err != nil {
		return err
	}
	n.scheduler = scheduler
	return scheduler.Start()
}

// sidecarPeerExchange collects peer validator configs from their sidecar
// control servers, addressed through a static peer map.
type sidecarPeerExchange struct {
	peers map[types.Address]string
}

var _ registration.PeerExchange = (*sidecarPeerExchange)(nil)

func (x *sidecarPeerExchange) Request(ctx context.Context, peer types.Address) (*registry.ValidatorConfig, error) {
	addr, ok := x.peers[peer]
	if !ok {
		return nil, errors.Errorf("no sidecar address known for peer %v", peer)
	}
	params, err := registry.NewSidecarClient(addr).GetParams(ctx)
	if err != nil {
		return nil, err
	}
	var cfg registry.ValidatorConfig
	if err := cdc.Unmarshal(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.Power == "" {
		cfg.Power = "1"
	}
	if cfg.Name == "" {
		cfg.Name = string(peer)
	}
	return &cfg, nil
}
