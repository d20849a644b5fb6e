package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index/memory"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/pipeline"
)

var (
	syllables  = []string{"ka", "lo", "mi", "ra", "ven", "tor", "ex", "al", "qu", "is", "on", "ar"}
	industries = []string{"Systems", "Labs", "Foods", "Logistics", "Capital", "Media"}
	suffixes   = []string{"Inc", "LLC", "Ltd", "GmbH", "Corp"}
)

func benchCommand(c *cli.Context) error {
	ctx := c.Context
	cfg := configFrom(c)
	cfg.Index.Backend = "memory"
	cfg.Ingest.CSVPath = ""
	cfg.Cache.Enabled = false

	nRecords, nQueries := c.Int("records"), c.Int("queries")
	if nRecords < 1 || nQueries < 1 {
		return fmt.Errorf("records and queries must be positive")
	}

	idx := memory.New()
	p, err := pipeline.Build(ctx, cfg, pipeline.Options{Index: idx})
	if err != nil {
		return err
	}
	defer p.Close()

	records := syntheticRecords(nRecords)
	loadStats, err := pipeline.NewLoader(idx, cfg, p.Normalizer, slog.Default()).Load(ctx, ingest.SliceSource(records))
	if err != nil {
		return err
	}
	slog.Info("bench index loaded", "documents", loadStats.Indexed, "duration", loadStats.Duration)

	report, err := p.Orchestrator.RunNames(ctx, syntheticQueries(records, nQueries), c.Int("concurrency"))
	if err != nil {
		return err
	}
	if err := printJSON(c.App.Writer, report.Stats); err != nil {
		return err
	}

	if target := c.Duration("target"); target > 0 {
		took := time.Duration(report.Stats.DurationMs) * time.Millisecond
		if took > target {
			return fmt.Errorf("batch of %d took %s, over the %s target", nQueries, took, target)
		}
	}
	return nil
}

// syntheticWord spells i in base len(syllables), four syllables long.
func syntheticWord(i int) string {
	var b strings.Builder
	for range 4 {
		b.WriteString(syllables[i%len(syllables)])
		i /= len(syllables)
	}
	return b.String()
}

// syntheticRecords builds n distinct, valid company records.
func syntheticRecords(n int) []company.CompanyRecord {
	out := make([]company.CompanyRecord, n)
	for i := range out {
		word := syntheticWord(i)
		industry := industries[i%len(industries)]
		title := strings.ToUpper(word[:1]) + word[1:]
		out[i] = company.CompanyRecord{
			ID:            fmt.Sprintf("bench-%d", i),
			CanonicalName: fmt.Sprintf("%s %s %s", title, industry, suffixes[i%len(suffixes)]),
			Domain:        fmt.Sprintf("%s%s.com", word, strings.ToLower(industry)),
			Source:        "bench",
		}
	}
	return out
}

// syntheticQueries cycles through records, alternating exact names,
// lowercased names without the legal suffix, bare brand words and names
// that are not in the index.
func syntheticQueries(records []company.CompanyRecord, n int) []string {
	out := make([]string, n)
	for i := range out {
		rec := records[i%len(records)]
		fields := strings.Fields(rec.CanonicalName)
		switch i % 4 {
		case 0:
			out[i] = rec.CanonicalName
		case 1:
			out[i] = strings.ToLower(strings.Join(fields[:len(fields)-1], " "))
		case 2:
			out[i] = fields[0]
		default:
			out[i] = fmt.Sprintf("Zz%s Holdings", syntheticWord(i+len(records)*7))
		}
	}
	return out
}
