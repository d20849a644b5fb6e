package index

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
)

// Document is the indexed form of a company record. Field names are the
// index attribute names referenced by Settings.
type Document struct {
	ID                string    `json:"id"`
	CompanyName       string    `json:"company_name"`
	NormalizedName    string    `json:"normalized_name"`
	Aliases           []string  `json:"aliases,omitempty"`
	NormalizedAliases []string  `json:"normalized_aliases,omitempty"`
	Domain            string    `json:"domain"`
	DomainPart        string    `json:"domain_part"`
	DomainNgrams      []string  `json:"domain_ngrams,omitempty"`
	CompanyPhonetic   string    `json:"company_phonetic,omitempty"`
	DomainPhonetic    string    `json:"domain_phonetic,omitempty"`
	AliasPhonetic     []string  `json:"alias_phonetic,omitempty"`
	QualityScore      int       `json:"quality_score"`
	SourceRank        int       `json:"source_rank"`
	Source            string    `json:"source,omitempty"`
	EmployeeCount     int       `json:"employee_count,omitempty"`
	Country           string    `json:"country,omitempty"`
	Industry          string    `json:"industry,omitempty"`
	SizeDesc          string    `json:"size_desc,omitempty"`
	LastVerified      time.Time `json:"last_verified,omitzero"`
}

// Record converts the document back into the record it was built from.
func (d Document) Record() company.CompanyRecord {
	return company.CompanyRecord{
		ID:             d.ID,
		CanonicalName:  d.CompanyName,
		Aliases:        d.Aliases,
		Domain:         d.Domain,
		NormalizedName: d.NormalizedName,
		Source:         d.Source,
		EmployeeCount:  d.EmployeeCount,
		Country:        d.Country,
		Industry:       d.Industry,
		SizeDesc:       d.SizeDesc,
		LastVerified:   d.LastVerified,
	}
}

// RetrievedAttributes are the document fields a search needs to return to
// rebuild the record for scoring.
var RetrievedAttributes = []string{
	"id", "company_name", "normalized_name", "aliases", "domain",
	"source", "employee_count", "country", "industry", "size_desc", "last_verified",
}
