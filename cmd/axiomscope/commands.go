package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/axiomscope/service/history"
	"github.com/urfave/cli/v2"
)

func sourceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "source",
		Aliases: []string{"s"},
		Usage:   "Data source: rpc or scrape",
		EnvVars: []string{"AXIOM_SOURCE"},
		Value:   sourceRPC,
	}
}

// run wires the app, handles interrupts and hands the action a ready app.
func run(c *cli.Context, action func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer a.close()
	return action(ctx, a)
}

func tradersCommand() *cli.Command {
	return &cli.Command{
		Name:  "traders",
		Usage: "Discover unique addresses trading through Axiom",
		Flags: []cli.Flag{
			sourceFlag(),
			&cli.IntFlag{
				Name:    "max",
				Aliases: []string{"n"},
				Usage:   "Maximum number of addresses to collect",
				Value:   10,
			},
		},
		Action: func(c *cli.Context) error {
			name := c.String("source")
			limit := c.Int("max")
			if limit <= 0 {
				return fmt.Errorf("--max must be positive")
			}

			return run(c, func(ctx context.Context, a *app) error {
				src, err := a.source(name)
				if err != nil {
					return err
				}

				set, err := history.FindTraders(ctx, src, a.cfg.ProgramIDs, limit, a.logger)
				if err != nil {
					return err
				}
				path, err := a.reporter.Traders(ctx, set, sourceLabels[name])
				if err != nil {
					return err
				}

				if wantJSON(c) {
					return printJSON(os.Stdout, set, c.String("jq"))
				}
				if len(set.UniqueAddresses) == 0 {
					fmt.Println("No Axiom traders found")
				}
				for i, addr := range set.UniqueAddresses {
					fmt.Printf("%3d. %s\n", i+1, addr)
				}
				fmt.Printf("\nResults saved to: %s\n", path)
				return nil
			})
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Reconstruct the recent Axiom trading history of an address",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			sourceFlag(),
			&cli.IntFlag{
				Name:    "days",
				Aliases: []string{"d"},
				Usage:   "How many days back to look",
				Value:   1,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("address is required")
			}
			address := c.Args().Get(0)
			name := c.String("source")
			days := c.Int("days")
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}

			return run(c, func(ctx context.Context, a *app) error {
				src, err := a.source(name)
				if err != nil {
					return err
				}

				txs, err := src.AddressHistory(ctx, address, days)
				if err != nil {
					return fmt.Errorf("failed to get trading history: %w", err)
				}
				th := history.Summarize(address, days, txs, time.Now())
				path, err := a.reporter.History(ctx, th, sourceLabels[name])
				if err != nil {
					return err
				}

				if wantJSON(c) {
					return printJSON(os.Stdout, th, c.String("jq"))
				}
				if th.Summary.TotalTransactions == 0 {
					fmt.Printf("No Axiom transactions found for %s in the last %d day(s)\n", address, days)
				} else {
					fmt.Printf("Total Axiom transactions: %d\n", th.Summary.TotalTransactions)
					fmt.Printf("Balance changes found: %d\n", th.Summary.BalanceChangesFound)
				}
				fmt.Printf("Results saved to: %s\n", path)
				return nil
			})
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "Resolve a token name from its on-chain metadata",
		ArgsUsage: "MINT",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("mint address is required")
			}
			mint := c.Args().Get(0)

			return run(c, func(ctx context.Context, a *app) error {
				client, err := a.rpcClient()
				if err != nil {
					return err
				}
				name := client.TokenName(ctx, mint)

				if wantJSON(c) {
					return printJSON(os.Stdout, map[string]string{"mint": mint, "name": name}, c.String("jq"))
				}
				fmt.Println(name)
				return nil
			})
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("axiomscope\n")
			fmt.Printf("  Version: %s\n", version)
			fmt.Printf("  Commit:  %s\n", commit)
			fmt.Printf("  Built:   %s\n", date)
			return nil
		},
	}
}
