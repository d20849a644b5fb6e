package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/batchio"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/ingest"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (stdout string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err = app.RunContext(context.Background(), append([]string{"matchctl"}, args...))
	return out.String(), err
}

func memoryConfig(t *testing.T, csvPath string) string {
	return writeFile(t, "config.yaml", "index:\n  backend: memory\ningest:\n  csvPath: "+csvPath+"\nlogging:\n  level: error\n")
}

func TestSyntheticRecordsAreValidAndDistinct(t *testing.T) {
	records := syntheticRecords(500)
	domains := make(map[string]bool)
	for _, r := range records {
		require.NoError(t, r.Validate())
		assert.False(t, domains[r.Domain], "duplicate domain %s", r.Domain)
		domains[r.Domain] = true
	}
	queries := syntheticQueries(records, 8)
	assert.Equal(t, records[0].CanonicalName, queries[0])
	assert.NotContains(t, queries[1], "LLC")
}

type collectingSink struct {
	records []company.CompanyRecord
}

func (s *collectingSink) Add(_ context.Context, r company.CompanyRecord) error {
	s.records = append(s.records, r)
	return nil
}

func TestTeeSourceSkipsInvalidRecords(t *testing.T) {
	sink := &collectingSink{}
	src := teeSource{
		src: ingest.SliceSource{
			{ID: "a", CanonicalName: "Acme", Domain: "acme.com"},
			{ID: "b", CanonicalName: "", Domain: "nameless.com"},
		},
		sink: sink,
	}
	var seen int
	require.NoError(t, src.Each(context.Background(), func(company.CompanyRecord) error {
		seen++
		return nil
	}))
	assert.Equal(t, 2, seen)
	require.Len(t, sink.records, 1)
	assert.Equal(t, "a", sink.records[0].ID)
}

func TestMatchCommand(t *testing.T) {
	companies := writeFile(t, "companies.csv", "id,canonical_name,domain\nc1,ACME CORP,acme.com\nc2,Globex Corporation,globex.com\n")
	names := writeFile(t, "names.csv", "name\nAcme Corporation\nUnrelated Biz XYZ\n")
	cfg := memoryConfig(t, companies)

	stdout, err := run(t, "-c", cfg, "match", "--input", names)
	require.NoError(t, err)

	verdicts, err := batchio.ReadJSONL(strings.NewReader(stdout))
	require.NoError(t, err)
	require.Len(t, verdicts, 2)
	assert.Equal(t, "acme.com", verdicts[0].MatchedDomain)
	assert.Equal(t, company.DecisionNoMatch, verdicts[1].Decision)
}

func TestMatchCommandRejectsUnknownFormat(t *testing.T) {
	cfg := memoryConfig(t, "")
	_, err := run(t, "-c", cfg, "match", "--input", "-", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestSetupIndexIsIdempotentWithinRun(t *testing.T) {
	cfg := memoryConfig(t, "")
	stdout, err := run(t, "-c", cfg, "setup-index", "--ledger", "memory")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"Applied": true`)
}

func TestBenchCommand(t *testing.T) {
	cfg := memoryConfig(t, "")
	stdout, err := run(t, "-c", cfg, "bench", "--records", "300", "--queries", "2000", "--concurrency", "8")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"total": 2000`)
}
