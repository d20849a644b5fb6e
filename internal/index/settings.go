package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Settings is the versioned index configuration applied by Setup.
type Settings struct {
	Version              int      `json:"version"`
	PrimaryKey           string   `json:"primary_key"`
	SearchableAttributes []string `json:"searchable_attributes"`
	FilterableAttributes []string `json:"filterable_attributes"`
	SortableAttributes   []string `json:"sortable_attributes"`
	RankingRules         []string `json:"ranking_rules"`
}

// DefaultSettings returns the company index layout at the given version.
// Searchable attributes are listed in priority order.
func DefaultSettings(version int) Settings {
	return Settings{
		Version:    version,
		PrimaryKey: "id",
		SearchableAttributes: []string{
			"normalized_name",
			"company_name",
			"normalized_aliases",
			"domain_part",
			"domain_ngrams",
			"company_phonetic",
			"alias_phonetic",
			"domain_phonetic",
		},
		FilterableAttributes: []string{"country", "industry", "source", "domain"},
		SortableAttributes:   []string{"quality_score", "employee_count", "source_rank"},
		RankingRules: []string{
			"words",
			"typo",
			"proximity",
			"attribute",
			"exactness",
			"quality_score:desc",
		},
	}
}

// Fingerprint is a stable digest of the settings contents, used to detect a
// changed layout published under an unchanged version.
func (s Settings) Fingerprint() string {
	data, _ := json.Marshal(s)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
