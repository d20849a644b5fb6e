// Package batchio reads batch input files and writes verdict files.
package batchio

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
)

// nameColumns are the header spellings accepted for the name column.
var nameColumns = []string{"name", "company_name", "company", "query"}

// ReadNames reads company names from CSV. With a header row naming one of
// the accepted name columns that column is used. Otherwise the first
// column of every row, including the first, is a name. Blank names are
// kept so output positions line up with input rows.
func ReadNames(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var names []string
	col := 0
	for row := 0; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading names row %d: %w", row+1, err)
		}
		if row == 0 {
			if i, ok := headerColumn(fields); ok {
				col = i
				continue
			}
		}
		if col < len(fields) {
			names = append(names, fields[col])
		} else {
			names = append(names, "")
		}
	}
}

func headerColumn(fields []string) (int, bool) {
	for i, f := range fields {
		f = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(f, "\ufeff")))
		for _, want := range nameColumns {
			if f == want {
				return i, true
			}
		}
	}
	return 0, false
}

// JSONLWriter writes one JSON verdict per line.
type JSONLWriter struct {
	w   *bufio.Writer
	enc *json.Encoder
}

// NewJSONLWriter creates a JSONLWriter. Flush must be called when done.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	bw := bufio.NewWriter(w)
	return &JSONLWriter{w: bw, enc: json.NewEncoder(bw)}
}

// Write appends v.
func (j *JSONLWriter) Write(v company.MatchVerdict) error {
	if err := j.enc.Encode(v); err != nil {
		return fmt.Errorf("encoding verdict for %q: %w", v.Query, err)
	}
	return nil
}

// Flush writes buffered lines.
func (j *JSONLWriter) Flush() error {
	return j.w.Flush()
}

// WriteJSONL writes all verdicts as JSON Lines.
func WriteJSONL(w io.Writer, verdicts []company.MatchVerdict) error {
	jw := NewJSONLWriter(w)
	for _, v := range verdicts {
		if err := jw.Write(v); err != nil {
			return err
		}
	}
	return jw.Flush()
}

// ReadJSONL reads verdicts written by WriteJSONL.
func ReadJSONL(r io.Reader) ([]company.MatchVerdict, error) {
	dec := json.NewDecoder(r)
	var out []company.MatchVerdict
	for {
		var v company.MatchVerdict
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decoding verdict %d: %w", len(out)+1, err)
		}
		out = append(out, v)
	}
}

// csvHeader is the flat verdict layout used for spreadsheet review.
var csvHeader = []string{
	"query", "normalized_query", "decision", "confidence",
	"matched_record_id", "matched_domain", "matched_name", "reason", "alternatives",
}

// WriteCSV writes verdicts in the flat review layout. Alternatives are
// listed as domain:confidence pairs separated by '|'.
func WriteCSV(w io.Writer, verdicts []company.MatchVerdict) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, v := range verdicts {
		alts := make([]string, len(v.Alternatives))
		for i, a := range v.Alternatives {
			alts[i] = a.Domain + ":" + strconv.FormatFloat(a.Confidence, 'f', 4, 64)
		}
		if err := cw.Write([]string{
			v.Query,
			v.NormalizedQuery,
			string(v.Decision),
			strconv.FormatFloat(v.Confidence, 'f', 4, 64),
			v.MatchedRecordID,
			v.MatchedDomain,
			v.MatchedName,
			v.Reason,
			strings.Join(alts, "|"),
		}); err != nil {
			return fmt.Errorf("writing csv row for %q: %w", v.Query, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
