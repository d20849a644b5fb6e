// Package index defines the contract between the matcher and the external
// search index that holds company records, plus the index-side document
// schema, settings and error classification shared by every backend.
package index

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
)

// Query is one candidate lookup. Text is a normalized company name; Phonetic
// holds its per-token phonetic codes.
type Query struct {
	Text     string
	Phonetic []string
	Limit    int
}

// Hit is a record returned by the index with its lexical score. Scores are
// only comparable within one backend.
type Hit struct {
	Record company.CompanyRecord
	Score  float64
}

// Searcher performs candidate lookups. Implementations must be safe for
// concurrent use and honour ctx cancellation.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Hit, error)
}

// Configurer applies index-level settings. It is used at setup time only.
type Configurer interface {
	ApplySettings(ctx context.Context, s Settings) error
}

// Index is the full collaborator surface: search, bulk ingestion, settings
// and health.
type Index interface {
	Searcher
	Configurer
	AddDocuments(ctx context.Context, docs []Document) error
	Health(ctx context.Context) error
}
