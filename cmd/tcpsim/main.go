// Command tcpsim runs a simulated TCP transfer between two in-memory
// endpoints and prints a summary of the exchange.
//
//	tcpsim -config sim/testdata/lossy.yaml -v
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/netseqs/seqs/internal"
	"github.com/netseqs/seqs/sim"
)

func main() {
	var (
		configPath string
		verbose    bool
		trace      bool
	)
	flag.StringVar(&configPath, "config", "", "YAML simulation config. Defaults are used if empty.")
	flag.BoolVar(&verbose, "v", false, "Log every transmitted packet.")
	flag.BoolVar(&trace, "trace", false, "Log control block internals. Implies -v.")
	flag.Parse()

	level := slog.LevelInfo
	switch {
	case trace:
		level = internal.LevelTrace
	case verbose:
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := sim.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = sim.LoadConfig(configPath)
		if err != nil {
			logger.Error("tcpsim:config", slog.String("err", err.Error()))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	result, err := sim.Run(ctx, cfg, logger)
	if err != nil {
		logger.Error("tcpsim:run", slog.String("err", err.Error()))
		stop()
		os.Exit(1)
	}
	fmt.Println(result)
	fmt.Printf("delivered: %q\n", result.Delivered)
}
