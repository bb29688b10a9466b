package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "github.com/kongzii/open-autonomy/cmd/commands"
	nm "github.com/kongzii/open-autonomy/node"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cli.NewCompletionCmd(rootCmd, true),
	)

	// Users supplying their own app spec or store implementation can copy
	// this file and use something other than DefaultNewNode.
	nodeFunc := nm.DefaultNewNode

	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.GenAgentKeyCmd,
		cmd.ShowAgentCmd,
		cmd.NewRunNodeCmd(nodeFunc),
	)

	baseCmd := cli.PrepareBaseCmd(rootCmd, "AUTONOMY", os.ExpandEnv(filepath.Join("$HOME", ".autonomy")))

	if err := baseCmd.Execute(); err != nil {
		fmt.Println("error")
		panic(err)
	}
}
