// Command matchctl is the operator CLI for the company matcher: it sets up
// the search index, bulk loads company records, matches CSV files of names
// offline and benchmarks the batch pipeline.
//
// Usage:
//
//	matchctl [-c configs/development.yaml] setup-index
//	matchctl ingest --csv companies.csv
//	matchctl match --input names.csv --output verdicts.jsonl
//	matchctl bench --queries 100000
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "matchctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "matchctl",
		Usage: "Operate the company-to-domain matcher",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				Value:   "configs/development.yaml",
				EnvVars: []string{"CDM_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override the configured log level (debug, info, warn, error)",
			},
		},
		Before: loadConfig,
		Commands: []*cli.Command{
			{
				Name:   "setup-index",
				Usage:  "Create the index and apply its versioned settings; a no-op when already applied",
				Action: setupIndexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "settings-version",
						Usage: "Settings version to apply (defaults to index.settingsVersion)",
					},
					&cli.StringFlag{
						Name:  "ledger",
						Usage: "Where applied versions are recorded: postgres, memory or auto",
						Value: "auto",
					},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Load company records into the index",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "csv",
						Usage: "CSV file of company records (defaults to ingest.csvPath)",
					},
					&cli.BoolFlag{
						Name:  "from-postgres",
						Usage: "Read records from the companies table instead of a CSV file",
					},
					&cli.BoolFlag{
						Name:  "save-records",
						Usage: "Also upsert the CSV records into the companies table",
					},
					&cli.BoolFlag{
						Name:  "skip-invalid",
						Usage: "Skip invalid records instead of failing the load",
					},
				},
			},
			{
				Name:   "match",
				Usage:  "Match a CSV file of company names",
				Action: matchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "CSV file of names, or - for stdin",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file, or - for stdout",
						Value:   "-",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format: jsonl or csv",
						Value: "jsonl",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Queries in flight (defaults to batch.concurrency)",
					},
					&cli.DurationFlag{
						Name:  "deadline",
						Usage: "Batch deadline (defaults to batch.deadline)",
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Persist the batch report to PostgreSQL",
					},
				},
			},
			{
				Name:   "bench",
				Usage:  "Run a synthetic batch against an in-memory index",
				Action: benchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "records",
						Usage: "Number of synthetic company records to index",
						Value: 20000,
					},
					&cli.IntFlag{
						Name:  "queries",
						Usage: "Number of names in the batch",
						Value: 100000,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Queries in flight (defaults to batch.concurrency)",
					},
					&cli.DurationFlag{
						Name:  "target",
						Usage: "Fail when the batch takes longer than this",
						Value: 2 * time.Minute,
					},
				},
			},
		},
	}
}
