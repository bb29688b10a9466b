package node

import (
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/kongzii/open-autonomy/types"
)

var cdc = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultKeyFileName      = "agent_key.json"
	defaultDataDirName      = "data"
	defaultAppStateFileName = "app_state.json"
)

// Config is the agent node configuration. The cmd layer populates it from
// flags and the config file.
type Config struct {
	// RootDir is the agent home; key material and databases live under it.
	RootDir string `mapstructure:"home"`

	Moniker string `mapstructure:"moniker"`

	// ProxyAppListen is the socket the consensus engine connects its abci
	// client to.
	ProxyAppListen string `mapstructure:"proxy_app_listen"`

	// RPCListen serves the node's own query rpc; empty disables it.
	RPCListen string `mapstructure:"rpc_listen"`

	// EngineRPCAddr is the local consensus engine's rpc, used to broadcast
	// payload transactions.
	EngineRPCAddr string `mapstructure:"engine_rpc_addr"`

	// SidecarAddr is the local node control server.
	SidecarAddr string `mapstructure:"sidecar_addr"`

	// RegistryAddr is the service registry gateway.
	RegistryAddr string `mapstructure:"registry_addr"`

	ServiceRegistryAddress string `mapstructure:"service_registry_address"`
	OnChainServiceID       int64  `mapstructure:"on_chain_service_id"`

	ChainID     string `mapstructure:"chain_id"`
	GenesisTime string `mapstructure:"genesis_time"`

	// PeerSidecars maps peer agent addresses to their sidecar control
	// servers, for the startup config exchange.
	PeerSidecars map[types.Address]string `mapstructure:"peer_sidecars"`

	// PersistedKeys are carried across period resets in addition to the
	// standard ones.
	PersistedKeys []string `mapstructure:"persisted_keys"`

	// AppState is the genesis application state as JSON; it seeds the
	// initial period data.
	AppState []byte `mapstructure:"-"`

	PauseInterval  time.Duration `mapstructure:"pause_interval"`
	SleepTime      time.Duration `mapstructure:"sleep_time"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Moniker:        "agent",
		ProxyAppListen: "tcp://127.0.0.1:26658",
		RPCListen:      "tcp://127.0.0.1:26667",
		EngineRPCAddr:  "http://127.0.0.1:26657",
		SidecarAddr:    "http://127.0.0.1:8080",
		RegistryAddr:   "http://127.0.0.1:8545",
		ChainID:        "autonomy-chain",
		PauseInterval:  10 * time.Second,
		SleepTime:      1 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

func (cfg *Config) ValidateBasic() error {
	if cfg.RootDir == "" {
		return errors.New("config: home directory not set")
	}
	if cfg.ProxyAppListen == "" {
		return errors.New("config: proxy app listen address not set")
	}
	if cfg.EngineRPCAddr == "" {
		return errors.New("config: engine rpc address not set")
	}
	return nil
}

func (cfg *Config) KeyFile() string {
	return filepath.Join(cfg.RootDir, defaultKeyFileName)
}

func (cfg *Config) DBDir() string {
	return filepath.Join(cfg.RootDir, defaultDataDirName)
}

// AppStateFile is the genesis application state location; run_node loads it
// into AppState when present.
func (cfg *Config) AppStateFile() string {
	return filepath.Join(cfg.RootDir, defaultAppStateFileName)
}

// InitialData decodes the genesis app state. Malformed genesis surfaces at
// init_chain; here it degrades to an empty map.
func (cfg *Config) InitialData() map[string]interface{} {
	if len(cfg.AppState) == 0 {
		return map[string]interface{}{}
	}
	var data map[string]interface{}
	if err := cdc.Unmarshal(cfg.AppState, &data); err != nil {
		return map[string]interface{}{}
	}
	return data
}
