package company

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxIDLength     = 511
	maxNameLength   = 1024
	maxDomainLength = 253
	maxAliases      = 64
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	RecordID string
	Fields   map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return fmt.Sprintf("record %q: %s", e.RecordID, strings.Join(parts, "; "))
}

// Validate checks that a record can be indexed: ids are restricted to the
// characters the index accepts as primary keys, and name and domain are
// required.
func (r *CompanyRecord) Validate() error {
	errs := make(map[string]string)

	switch {
	case r.ID == "":
		errs["id"] = "id is required"
	case len(r.ID) > maxIDLength:
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	case !validID(r.ID):
		errs["id"] = "id may contain only a-z A-Z 0-9 - _"
	}

	name := strings.TrimSpace(r.CanonicalName)
	if name == "" {
		errs["canonical_name"] = "canonical name is required"
	} else if len(name) > maxNameLength {
		errs["canonical_name"] = fmt.Sprintf("canonical name must be at most %d characters", maxNameLength)
	}

	domain := strings.TrimSpace(r.Domain)
	if domain == "" {
		errs["domain"] = "domain is required"
	} else if len(domain) > maxDomainLength || strings.ContainsAny(domain, " \t") {
		errs["domain"] = "domain is malformed"
	}

	if len(r.Aliases) > maxAliases {
		errs["aliases"] = fmt.Sprintf("at most %d aliases are allowed", maxAliases)
	}
	if r.EmployeeCount < 0 {
		errs["employee_count"] = "employee count must not be negative"
	}

	if len(errs) > 0 {
		return &ValidationError{RecordID: r.ID, Fields: errs}
	}
	return nil
}

func validID(id string) bool {
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
