package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/batchio"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/normalize"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/retrieve"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/redis"
)

const configKey = "config"

// loadConfig runs before every command and stores the loaded config in the
// app metadata. Logs go to the error writer so stdout carries only results.
func loadConfig(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	slog.SetDefault(logger.New(c.App.ErrWriter, cfg.Logging.Level, cfg.Logging.Format))
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata[configKey].(*config.Config)
}

func setupIndexCommand(c *cli.Context) error {
	ctx := c.Context
	cfg := configFrom(c)

	version := c.Int("settings-version")
	if version <= 0 {
		version = cfg.Index.SettingsVersion
	}

	ledger, closeLedger, err := openLedger(ctx, cfg, c.String("ledger"))
	if err != nil {
		return err
	}
	defer closeLedger()

	idx := pipeline.NewIndex(cfg, slog.Default())
	res, err := index.Setup(ctx, idx, ledger, cfg.Index.Name, index.DefaultSettings(version), slog.Default())
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, res)
}

// openLedger returns the setup ledger for mode. In auto mode an
// unreachable database falls back to an in-process ledger.
func openLedger(ctx context.Context, cfg *config.Config, mode string) (index.Ledger, func(), error) {
	noop := func() {}
	switch mode {
	case "memory":
		return index.NewMemoryLedger(), noop, nil
	case "postgres", "auto":
	default:
		return nil, noop, fmt.Errorf("unknown ledger %q (want postgres, memory or auto)", mode)
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		if mode == "postgres" {
			return nil, noop, err
		}
		slog.Warn("postgres unavailable, setup will not be remembered across runs", "error", err)
		return index.NewMemoryLedger(), noop, nil
	}
	return store.NewSetupLedger(db), func() { db.Close() }, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*postgres.Client, error) {
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ingestCommand(c *cli.Context) error {
	ctx := c.Context
	cfg := configFrom(c)
	if c.Bool("skip-invalid") {
		cfg.Ingest.SkipInvalid = true
	}
	if cfg.Index.Backend == "memory" {
		slog.Warn("memory backend: ingested records only live for this process")
	}

	var src ingest.Source
	var sink *store.Sink
	switch {
	case c.Bool("from-postgres"):
		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		src = store.NewRecordStore(db)
	default:
		path := c.String("csv")
		if path == "" {
			path = cfg.Ingest.CSVPath
		}
		if path == "" {
			return errors.New("no input: pass --csv, set ingest.csvPath or use --from-postgres")
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		src = ingest.NewCSVSource(f)

		if c.Bool("save-records") {
			db, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			sink = store.NewRecordStore(db).NewSink(1000)
			src = teeSource{src: src, sink: sink}
		}
	}

	norm := normalize.New(cfg.Matcher.LegalSuffixes)
	loader := pipeline.NewLoader(pipeline.NewIndex(cfg, slog.Default()), cfg, norm, slog.Default())
	if cfg.Cache.Enabled {
		if client, err := pkgredis.NewClient(ctx, cfg.Redis); err != nil {
			slog.Warn("redis unavailable, cached candidates will not be invalidated", "error", err)
		} else {
			defer client.Close()
			loader = loader.WithInvalidator(retrieve.NewCache(client, cfg.Cache.TTL, slog.Default()))
		}
	}

	stats, err := loader.Load(ctx, src)
	if err != nil {
		return err
	}
	if sink != nil {
		if err := sink.Flush(ctx); err != nil {
			return fmt.Errorf("saving records: %w", err)
		}
		slog.Info("records saved", "count", sink.Total())
	}
	return printJSON(c.App.Writer, stats)
}

// recordSink receives every valid record read during an ingest.
type recordSink interface {
	Add(ctx context.Context, r company.CompanyRecord) error
}

// teeSource copies valid records into sink as they stream to the index.
type teeSource struct {
	src  ingest.Source
	sink recordSink
}

func (t teeSource) Each(ctx context.Context, fn func(company.CompanyRecord) error) error {
	return t.src.Each(ctx, func(r company.CompanyRecord) error {
		if r.Validate() == nil {
			if err := t.sink.Add(ctx, r); err != nil {
				return fmt.Errorf("saving record %s: %w", r.ID, err)
			}
		}
		return fn(r)
	})
}

func matchCommand(c *cli.Context) error {
	ctx := c.Context
	cfg := configFrom(c)
	if d := c.Duration("deadline"); d > 0 {
		cfg.Batch.Deadline = d
	}

	format := c.String("format")
	switch format {
	case "jsonl", "csv":
	default:
		return fmt.Errorf("unknown format %q (want jsonl or csv)", format)
	}

	in, closeIn, err := openInput(c.String("input"))
	if err != nil {
		return err
	}
	names, err := batchio.ReadNames(in)
	closeIn()
	if err != nil {
		return err
	}

	p, err := pipeline.Build(ctx, cfg, pipeline.Options{})
	if err != nil {
		return err
	}
	defer p.Close()

	report, runErr := p.Orchestrator.RunNames(ctx, names, c.Int("concurrency"))

	out, closeOut, err := openOutput(c.String("output"), c.App.Writer)
	if err != nil {
		return err
	}
	if format == "csv" {
		err = batchio.WriteCSV(out, report.Verdicts)
	} else {
		err = batchio.WriteJSONL(out, report.Verdicts)
	}
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing verdicts: %w", err)
	}

	if c.Bool("save") {
		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.NewVerdictStore(db).SaveBatch(ctx, report); err != nil {
			return err
		}
	}

	if err := printJSON(c.App.ErrWriter, map[string]any{
		"batch_id":     report.BatchID,
		"stats":        report.Stats,
		"health_alert": report.HealthAlert,
		"outage":       report.Outage,
	}); err != nil {
		return err
	}
	return runErr
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, f.Close, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
