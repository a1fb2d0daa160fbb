// Command twin evaluates OHLCV series into technical signals and verdicts.
package main

import (
	"context"
	"fmt"
	"os"

	"market-twin/internal/cli"
	"market-twin/internal/config"
	"market-twin/internal/logging"
)

func main() {
	// Validation happens when the engine is built, so that
	// "twin config validate" can report a broken file.
	cfg, err := config.Read("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
