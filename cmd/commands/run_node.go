package commands

import (
	"fmt"
	"io/ioutil"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	nm "github.com/kongzii/open-autonomy/node"
)

// AddNodeFlags exposes the node configuration as command flags.
func AddNodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("moniker", config.Moniker, "node name")
	cmd.Flags().String("proxy_app_listen", config.ProxyAppListen, "abci socket the consensus engine connects to")
	cmd.Flags().String("rpc_listen", config.RPCListen, "query rpc listen address; empty disables it")
	cmd.Flags().String("engine_rpc_addr", config.EngineRPCAddr, "consensus engine rpc address")
	cmd.Flags().String("sidecar_addr", config.SidecarAddr, "local node control server address")
	cmd.Flags().String("registry_addr", config.RegistryAddr, "service registry gateway address")
	cmd.Flags().String("service_registry_address", config.ServiceRegistryAddress, "service registry contract address")
	cmd.Flags().Int64("on_chain_service_id", config.OnChainServiceID, "on-chain service id")
	cmd.Flags().String("chain_id", config.ChainID, "chain id")
	cmd.Flags().Duration("pause_interval", config.PauseInterval, "idle time between periods")
}

// NewRunNodeCmd returns the command that boots the agent node and blocks
// until it is terminated.
func NewRunNodeCmd(nodeProvider nm.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run-node",
		Aliases: []string{"run_node", "start"},
		Short:   "Run the agent node",
		PreRun:  deprecateSnakeCase,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tmos.FileExists(config.AppStateFile()) {
				bz, err := ioutil.ReadFile(config.AppStateFile())
				if err != nil {
					return fmt.Errorf("failed to read app state: %w", err)
				}
				config.AppState = bz
			}

			n, err := nodeProvider(config, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			if err := n.Start(); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}
			logger.Info("Started node", "moniker", config.Moniker)

			// Stop upon receiving SIGTERM or CTRL-C.
			tmos.TrapSignal(logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "error", err)
					}
				}
			})

			// Run forever.
			select {}
		},
	}

	AddNodeFlags(cmd)
	return cmd
}
