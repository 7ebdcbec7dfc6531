// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

// scrolls ingests blocks, interprets them against the chain's UTXO model
// and keeps a queryable voting-power projection up to date in the
// configured store.
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
)

func main() {
	cfg, opts, err := ParseScrolls(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	lvl, err := log.LvlFromString(opts.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat(false))))

	// Counters are created at stage construction; enable collection first.
	metrics.Enabled = true

	if err := runDaemon(cfg, opts); err != nil {
		log.Crit("pipeline halted", "err", err)
	}
}
