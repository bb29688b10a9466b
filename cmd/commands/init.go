package commands

import (
	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	nm "github.com/kongzii/open-autonomy/node"
	"github.com/kongzii/open-autonomy/privval"
	"github.com/kongzii/open-autonomy/types"
)

// InitFilesCmd initialises a fresh agent home: key material and a genesis
// app state listing this agent as the only participant.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an agent home directory",
	RunE:  initFiles,
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *nm.Config) error {
	keyFile := config.KeyFile()

	var pv *privval.FilePV
	if tmos.FileExists(keyFile) {
		pv = privval.LoadFilePV(keyFile)
		logger.Info("Found agent key", "keyFile", keyFile)
	} else {
		if seed != 0 {
			pv = privval.GenFilePVWithSeedAndIdx(keyFile, thres, idx, seed)
		} else {
			pv = privval.GenFilePV(keyFile)
		}
		pv.Save()
		logger.Info("Generated agent key", "keyFile", keyFile)
	}

	appStateFile := config.AppStateFile()
	if tmos.FileExists(appStateFile) {
		logger.Info("Found app state", "path", appStateFile)
	} else {
		addr := pv.GetAddress()
		appState := map[string]interface{}{
			"all_participants": []types.Address{addr},
			"participants":     []types.Address{addr},
		}
		bz, err := json.MarshalIndent(appState, "", "  ")
		if err != nil {
			return err
		}
		if err := tmos.EnsureDir(config.RootDir, 0700); err != nil {
			return err
		}
		if err := tmos.WriteFile(appStateFile, bz, 0644); err != nil {
			return err
		}
		logger.Info("Generated app state", "path", appStateFile)
	}

	return nil
}

func init() {
	InitFilesCmd.Flags().Int64Var(&seed, "seed", 0, "seed for deterministic key derivation; 0 uses fresh randomness")
	InitFilesCmd.Flags().Int64Var(&idx, "idx", 0, "agent index on the threshold polynomial")
	InitFilesCmd.Flags().IntVar(&thres, "thres", 0, "signature threshold of the cohort")
}
