package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/kongzii/open-autonomy/registration"
)

var logger = log.NewNopLogger()

func main() {
	var durationInt, connections, rate, agents int
	var verbose bool
	var round, broadcastTxMethod string

	flagSet := flag.NewFlagSet("bench", flag.ExitOnError)
	flagSet.IntVar(&connections, "c", 1, "Connections to keep open per endpoint")
	flagSet.IntVar(&durationInt, "T", 10, "Exercise time (s)")
	flagSet.IntVar(&rate, "r", 100, "Txs per second to send per connection")
	flagSet.IntVar(&agents, "a", 4, "Number of generated agent identities")
	flagSet.StringVar(&round, "round", registration.RoundID, "Round id the payloads target")
	flagSet.StringVar(&broadcastTxMethod, "broadcast-tx-method", "sync",
		"Broadcast method: async (no guarantees; fastest), sync (ensures tx is checked) or commit (ensures tx is checked and committed; slowest)")
	flagSet.BoolVar(&verbose, "v", false, "Verbose output")

	flagSet.Usage = func() {
		fmt.Println(`Payload load generator.

Opens one or more websocket connections to a consensus engine endpoint and
submits signed payloads at the given rate.

Usage:
	bench [-c 1] [-T 10] [-r 100] [-a 4] [endpoint]

Examples:
	bench localhost:26657`)
		fmt.Println("Flags:")
		flagSet.PrintDefaults()
	}

	flagSet.Parse(os.Args[1:])

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		os.Exit(1)
	}

	if verbose {
		logger = log.NewTMLogger(log.NewSyncWriter(os.Stdout))
	}

	if broadcastTxMethod != "async" &&
		broadcastTxMethod != "sync" &&
		broadcastTxMethod != "commit" {
		fmt.Fprintln(os.Stderr, "broadcast-tx-method should be async, sync or commit")
		os.Exit(1)
	}

	endpoint := flagSet.Arg(0)

	t := newTransacter(endpoint, connections, rate, agents, round,
		"broadcast_tx_"+broadcastTxMethod)
	t.SetLogger(logger)

	fmt.Println("Generated agents:")
	for _, addr := range t.Addresses() {
		fmt.Println("  " + strings.ToLower(string(addr)))
	}

	if err := t.Start(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	time.Sleep(time.Duration(durationInt) * time.Second)
	t.Stop()

	fmt.Println(t.Report())
}
