package registration

import (
	"context"
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/kongzii/open-autonomy/behaviour"
	"github.com/kongzii/open-autonomy/registry"
	"github.com/kongzii/open-autonomy/types"
)

var cdc = jsoniter.ConfigCompatibleWithStandardLibrary

// PeerExchange obtains the validator configuration of another agent. The
// node wires a concrete transport; tests use an in-memory map.
type PeerExchange interface {
	Request(ctx context.Context, peer types.Address) (*registry.ValidatorConfig, error)
}

// StartupConfig parameterizes the one-time bootstrap of the local consensus
// node.
type StartupConfig struct {
	ServiceRegistryAddress string
	OnChainServiceID       int64
	ChainID                string
	GenesisTime            string
}

// StartupBehaviour mirrors the startup registration round. Before submitting
// its payload it performs the bootstrap side effects in order, each guarded
// by an already-done check so a failed step is retried without repeating
// earlier ones:
//
//  1. fetch the local node's validator params from the sidecar,
//  2. resolve the participant set from the service registry,
//  3. collect the peers' validator configs,
//  4. push the agreed genesis to the sidecar,
//  5. restart the local node.
type StartupBehaviour struct {
	behaviour.BaseBehaviour

	cfg      StartupConfig
	registry *registry.ServiceRegistry
	sidecar  *registry.SidecarClient
	peers    PeerExchange

	localParams   json.RawMessage
	registered    []types.Address
	collected     map[types.Address]registry.ValidatorConfig
	paramsUpdated bool
	restarted     bool
}

var _ behaviour.Behaviour = (*StartupBehaviour)(nil)

func NewStartupBehaviour(
	cfg StartupConfig,
	reg *registry.ServiceRegistry,
	sidecar *registry.SidecarClient,
	peers PeerExchange,
) *StartupBehaviour {
	return &StartupBehaviour{
		BaseBehaviour: behaviour.NewBaseBehaviour("registration_startup", StartupRoundID),
		cfg:           cfg,
		registry:      reg,
		sidecar:       sidecar,
		peers:         peers,
		collected:     make(map[types.Address]registry.ValidatorConfig),
	}
}

// Reset clears only the submission flag. The bootstrap side effects have
// already happened against the outside world and must not be repeated when
// the behaviour is re-entered for a fresh period.
func (b *StartupBehaviour) Reset() { b.BaseBehaviour.Reset() }

func (b *StartupBehaviour) Act(env *behaviour.Environment) (behaviour.Outcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), env.RequestTimeout)
	defer cancel()

	if b.localParams == nil {
		params, err := b.sidecar.GetParams(ctx)
		if err != nil {
			return behaviour.OutcomeSuspend, errors.Wrap(err, "could not obtain local node params")
		}
		b.localParams = params
		env.Logger.Info("local node configuration obtained")
	}

	if len(b.registered) == 0 {
		if err := b.resolveParticipants(ctx, env); err != nil {
			return behaviour.OutcomeSuspend, err
		}
	}

	if pending := b.collectPeerConfigs(ctx, env); pending > 0 {
		env.Logger.Debug("waiting for peer configurations", "pending", pending)
		return behaviour.OutcomeSuspend, nil
	}

	if !b.paramsUpdated {
		if err := b.pushGenesis(ctx); err != nil {
			return behaviour.OutcomeSuspend, errors.Wrap(err, "could not update node params")
		}
		b.paramsUpdated = true
		env.Logger.Info("local node configuration updated")
	}

	if !b.restarted {
		if err := b.sidecar.Start(ctx); err != nil {
			return behaviour.OutcomeSuspend, errors.Wrap(err, "could not restart local node")
		}
		b.restarted = true
		env.Logger.Info("local node restarted")
	}

	return b.SubmitAndWait(env, func() types.Payload {
		return NewPayload(env.Agent.GetAddress(), StartupRoundID, b.initialisation(env))
	})
}

func (b *StartupBehaviour) resolveParticipants(ctx context.Context, env *behaviour.Environment) error {
	verified, err := b.registry.VerifyContract(ctx, b.cfg.ServiceRegistryAddress)
	if err != nil {
		return errors.Wrap(err, "contract verification failed")
	}
	if !verified {
		return errors.New("service registry contract not deployed")
	}
	info, err := b.registry.GetServiceInfo(ctx, b.cfg.OnChainServiceID)
	if err != nil {
		return errors.Wrap(err, "service info could not be retrieved")
	}
	self := env.Agent.GetAddress()
	if !types.ContainsAddress(info.AgentInstances, self) {
		return errors.Errorf("%v is not registered for service %d", self, b.cfg.OnChainServiceID)
	}
	b.registered = types.SortAddresses(info.AgentInstances)
	env.Logger.Info("registered addresses retrieved", "count", len(b.registered))
	return nil
}

// collectPeerConfigs requests the validator config of every peer not yet
// collected and returns the number still missing. Individual failures are
// retried on the next entry.
func (b *StartupBehaviour) collectPeerConfigs(ctx context.Context, env *behaviour.Environment) int {
	self := env.Agent.GetAddress()
	for _, peer := range b.registered {
		if _, ok := b.collected[peer]; ok {
			continue
		}
		if peer == self {
			cfg, err := b.ownConfig(env)
			if err == nil {
				b.collected[peer] = *cfg
			}
			continue
		}
		cfg, err := b.peers.Request(ctx, peer)
		if err != nil {
			env.Logger.Debug("peer configuration not yet available", "peer", peer, "err", err)
			continue
		}
		b.collected[peer] = *cfg
	}
	return len(b.registered) - len(b.collected)
}

// ownConfig derives this agent's validator entry from the sidecar params.
func (b *StartupBehaviour) ownConfig(env *behaviour.Environment) (*registry.ValidatorConfig, error) {
	var params struct {
		Address string          `json:"address"`
		PubKey  json.RawMessage `json:"pub_key"`
	}
	if err := cdc.Unmarshal(b.localParams, &params); err != nil {
		return nil, err
	}
	return &registry.ValidatorConfig{
		Address: params.Address,
		PubKey:  params.PubKey,
		Power:   "1",
		Name:    string(env.Agent.GetAddress()),
	}, nil
}

func (b *StartupBehaviour) pushGenesis(ctx context.Context) error {
	validators := make([]registry.ValidatorConfig, 0, len(b.collected))
	for _, peer := range b.registered {
		validators = append(validators, b.collected[peer])
	}
	genesis := registry.GenesisConfig{
		GenesisTime: b.cfg.GenesisTime,
		ChainID:     b.cfg.ChainID,
	}
	return b.sidecar.UpdateParams(ctx, genesis, validators)
}

func (b *StartupBehaviour) initialisation(env *behaviour.Environment) string {
	return serializeInitialData(env)
}

// Behaviour mirrors the re-registration round entered at the start of every
// later period. There is nothing to bootstrap anymore: submit and wait.
type Behaviour struct {
	behaviour.BaseBehaviour
}

var _ behaviour.Behaviour = (*Behaviour)(nil)

func NewBehaviour() *Behaviour {
	return &Behaviour{BaseBehaviour: behaviour.NewBaseBehaviour("registration", RoundID)}
}

func (b *Behaviour) Act(env *behaviour.Environment) (behaviour.Outcome, error) {
	return b.SubmitAndWait(env, func() types.Payload {
		return NewPayload(env.Agent.GetAddress(), RoundID, serializeInitialData(env))
	})
}

// serializeInitialData renders the genesis-provided initial data in its
// canonical form. Map keys serialize sorted, so every honest agent proposes
// the same string.
func serializeInitialData(env *behaviour.Environment) string {
	data := env.Observer.PeriodState().DB().InitialData()
	if len(data) == 0 {
		return ""
	}
	bz, err := cdc.Marshal(data)
	if err != nil {
		return ""
	}
	return string(bz)
}
