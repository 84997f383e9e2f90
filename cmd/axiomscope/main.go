package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "axiomscope",
		Usage: "Axiom trader discovery and trading history on Solana",
		Description: `Finds wallets trading through the Axiom program and reconstructs their recent
trading history, either from Solana JSON-RPC or by scraping the block explorer.

Every flag can also be set through the environment variable shown in its help.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			tradersCommand(),
			historyCommand(),
			tokenCommand(),
			versionCommand(),
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Directory reports are written to",
				EnvVars: []string{"OUTPUT_DIR"},
				Value:   ".",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL; reports are published when set",
				EnvVars: []string{"NATS_URL"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address while running",
				EnvVars: []string{"METRICS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "chrome-bin",
				Usage:   "Browser binary tried first by the scrape source",
				EnvVars: []string{"CHROME_BIN"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to JSON output (implies --json)",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
