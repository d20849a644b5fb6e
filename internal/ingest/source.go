package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
)

// Source yields company records one at a time. Each stops at the first
// error returned by fn.
type Source interface {
	Each(ctx context.Context, fn func(company.CompanyRecord) error) error
}

// SliceSource serves records from memory.
type SliceSource []company.CompanyRecord

func (s SliceSource) Each(ctx context.Context, fn func(company.CompanyRecord) error) error {
	for _, rec := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// columnNames lists the accepted header spellings per field, compared
// case-insensitively.
var columnNames = map[string][]string{
	"id":             {"id", "record_id"},
	"name":           {"canonical_name", "company_name", "company_name_cleaned", "name"},
	"domain":         {"domain", "domain_name", "website"},
	"aliases":        {"aliases", "alternative_names"},
	"source":         {"source"},
	"employee_count": {"employee_count", "employees"},
	"industry":       {"industry", "industry_cat_std"},
	"country":        {"country"},
	"size_desc":      {"size_desc", "size_desc_std"},
	"last_verified":  {"last_verified", "date_last_verified", "last_seen_date"},
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "01/02/2006"}

// CSVSource reads records from a CSV stream with a header row. Aliases are
// separated by '|' or ';'. Rows without an id column get their row number.
type CSVSource struct {
	r io.Reader
}

// NewCSVSource creates a CSVSource over r.
func NewCSVSource(r io.Reader) *CSVSource {
	return &CSVSource{r: r}
}

func (s *CSVSource) Each(ctx context.Context, fn func(company.CompanyRecord) error) error {
	cr := csv.NewReader(s.r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("reading csv header: %w", err)
	}
	cols := resolveColumns(header)
	if _, ok := cols["name"]; !ok {
		return fmt.Errorf("csv header has no company name column (want one of %s)", strings.Join(columnNames["name"], ", "))
	}

	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading csv row %d: %w", row, err)
		}
		rec, err := parseRow(cols, fields, row)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func resolveColumns(header []string) map[string]int {
	cols := make(map[string]int)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for field, names := range columnNames {
			if _, taken := cols[field]; taken {
				continue
			}
			for _, n := range names {
				if h == n {
					cols[field] = i
				}
			}
		}
	}
	return cols
}

func parseRow(cols map[string]int, fields []string, row int) (company.CompanyRecord, error) {
	get := func(field string) string {
		i, ok := cols[field]
		if !ok || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}
	rec := company.CompanyRecord{
		ID:            get("id"),
		CanonicalName: get("name"),
		Domain:        get("domain"),
		Source:        get("source"),
		Industry:      get("industry"),
		Country:       get("country"),
		SizeDesc:      get("size_desc"),
	}
	if rec.ID == "" {
		rec.ID = strconv.Itoa(row)
	}
	if raw := get("aliases"); raw != "" {
		for _, a := range strings.FieldsFunc(raw, func(r rune) bool { return r == '|' || r == ';' }) {
			if a = strings.TrimSpace(a); a != "" {
				rec.Aliases = append(rec.Aliases, a)
			}
		}
	}
	if raw := get("employee_count"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return rec, fmt.Errorf("csv row %d: employee_count %q: %w", row, raw, err)
		}
		rec.EmployeeCount = int(f)
	}
	if raw := get("last_verified"); raw != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				rec.LastVerified = t.UTC()
				break
			}
		}
	}
	return rec, nil
}
