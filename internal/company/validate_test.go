package company

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	ok := CompanyRecord{ID: "c-1", CanonicalName: "ACME CORP", Domain: "acme.com"}
	require.NoError(t, ok.Validate())

	tests := []struct {
		name  string
		rec   CompanyRecord
		field string
	}{
		{"missing id", CompanyRecord{CanonicalName: "Acme", Domain: "acme.com"}, "id"},
		{"bad id chars", CompanyRecord{ID: "c/1", CanonicalName: "Acme", Domain: "acme.com"}, "id"},
		{"blank name", CompanyRecord{ID: "c1", CanonicalName: "  ", Domain: "acme.com"}, "canonical_name"},
		{"missing domain", CompanyRecord{ID: "c1", CanonicalName: "Acme"}, "domain"},
		{"domain with space", CompanyRecord{ID: "c1", CanonicalName: "Acme", Domain: "acme .com"}, "domain"},
		{"negative employees", CompanyRecord{ID: "c1", CanonicalName: "Acme", Domain: "acme.com", EmployeeCount: -1}, "employee_count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestNoMatchCarriesReason(t *testing.T) {
	v := NoMatch(QueryName{Raw: "Acme", Normalized: "acme"}, "timeout", errors.New("deadline"))
	assert.Equal(t, DecisionNoMatch, v.Decision)
	assert.Equal(t, "Acme", v.Query)
	assert.Equal(t, "timeout", v.Reason)
	assert.Equal(t, "deadline", v.Error)
	assert.Empty(t, v.MatchedRecordID)
}
