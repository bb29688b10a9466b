package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"

	"github.com/kongzii/open-autonomy/privval"
)

// ShowAgentCmd prints this agent's address and public key.
var ShowAgentCmd = &cobra.Command{
	Use:     "show-agent",
	Aliases: []string{"show_agent"},
	Short:   "Show this agent's address and public key",
	PreRun:  deprecateSnakeCase,
	RunE:    showAgent,
}

func showAgent(cmd *cobra.Command, args []string) error {
	keyFile := config.KeyFile()
	if !tmos.FileExists(keyFile) {
		return fmt.Errorf("agent key at %s does not exist; run init first", keyFile)
	}

	pv := privval.LoadFilePV(keyFile)
	pubKey, err := pv.GetPubKey()
	if err != nil {
		return fmt.Errorf("can't get pubkey: %w", err)
	}
	bz, err := tmjson.Marshal(pubKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}

	fmt.Println("Address:", pv.GetAddress())
	fmt.Println("PubKey:", string(bz))
	return nil
}
