package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	"github.com/kongzii/open-autonomy/privval"
)

// GenAgentKeyCmd generates the agent's signing keypair. With a seed and an
// index the key is evaluated from the shared threshold polynomial, so a
// fixed test cohort can be regenerated deterministically.
var GenAgentKeyCmd = &cobra.Command{
	Use:     "gen-agent-key",
	Aliases: []string{"gen_agent_key"},
	Args:    cobra.ArbitraryArgs,
	Short:   "Generate a new agent signing keypair",
	PreRun:  deprecateSnakeCase,
	Run:     genAgentKey,
}

func init() {
	GenAgentKeyCmd.Flags().Int64Var(&seed, "seed", 0, "seed for deterministic key derivation; 0 uses fresh randomness")
	GenAgentKeyCmd.Flags().Int64Var(&idx, "idx", 0, "agent index on the threshold polynomial")
	GenAgentKeyCmd.Flags().IntVar(&thres, "thres", 0, "signature threshold of the cohort")
}

func genAgentKey(cmd *cobra.Command, args []string) {
	keyFile := config.KeyFile()
	if tmos.FileExists(keyFile) {
		logger.Info("Found agent key", "keyFile", keyFile)
		return
	}

	var pv *privval.FilePV
	if seed != 0 {
		pv = privval.GenFilePVWithSeedAndIdx(keyFile, thres, idx, seed)
	} else {
		pv = privval.GenFilePV(keyFile)
	}
	jsbz, err := json.Marshal(pv)
	if err != nil {
		panic(err)
	}
	pv.Save()

	fmt.Printf(`%v
`, string(jsbz))
}
