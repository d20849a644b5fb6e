package batchio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
)

func TestReadNamesWithHeader(t *testing.T) {
	in := "id,Company_Name\n1,\"Acme, Inc.\"\n2,\n3,Globex\n"
	names, err := ReadNames(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme, Inc.", "", "Globex"}, names)
}

func TestReadNamesStripsByteOrderMark(t *testing.T) {
	names, err := ReadNames(strings.NewReader("\ufeffname\nAcme\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme"}, names)
}

func TestReadNamesWithoutHeader(t *testing.T) {
	names, err := ReadNames(strings.NewReader("Acme Corporation\nUnrelated Biz XYZ\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Corporation", "Unrelated Biz XYZ"}, names)
}

func TestReadNamesEmpty(t *testing.T) {
	names, err := ReadNames(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestJSONLRoundTrip(t *testing.T) {
	verdicts := []company.MatchVerdict{
		{Query: "Acme Corporation", Decision: company.DecisionMatch, MatchedDomain: "acme.com", Confidence: 0.9},
		{Query: "", Decision: company.DecisionNoMatch, Reason: "invalid_input"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, verdicts))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	got, err := ReadJSONL(&buf)
	require.NoError(t, err)
	assert.Equal(t, verdicts, got)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []company.MatchVerdict{{
		Query:      "Acme",
		Decision:   company.DecisionAmbiguous,
		Confidence: 0.7,
		Alternatives: []company.Alternative{
			{Domain: "acme.com", Confidence: 0.7},
			{Domain: "acmewidgets.io", Confidence: 0.65},
		},
	}}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Acme,,AMBIGUOUS,0.7000,,,,,acme.com:0.7000|acmewidgets.io:0.6500", lines[1])
}
