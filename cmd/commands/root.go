package commands

import (
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tendermint/tendermint/libs/cli"
	"github.com/tendermint/tendermint/libs/log"

	nm "github.com/kongzii/open-autonomy/node"
)

var (
	config = nm.DefaultConfig()
	logger = log.NewTMLogger(log.NewSyncWriter(os.Stdout))
	json   = jsoniter.ConfigCompatibleWithStandardLibrary

	seed  int64
	idx   int64
	thres int
)

// ParseConfig rebuilds the node config from viper, which PrepareBaseCmd has
// already bound to the home flag, environment and config file.
func ParseConfig() (*nm.Config, error) {
	conf := nm.DefaultConfig()
	if err := viper.Unmarshal(conf); err != nil {
		return nil, err
	}
	conf.RootDir = viper.GetString(cli.HomeFlag)
	return conf, nil
}

var RootCmd = &cobra.Command{
	Use:   "autonomy",
	Short: "Round-based application agent piggy-backing on a BFT consensus engine",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		if cmd.Name() == "version" {
			return nil
		}
		config, err = ParseConfig()
		if err != nil {
			return err
		}
		logger = logger.With("module", "main")
		return nil
	},
}

func deprecateSnakeCase(cmd *cobra.Command, args []string) {
	if strings.Contains(cmd.CalledAs(), "_") {
		fmt.Println("deprecated snake_case commands will be removed in a future release")
	}
}
