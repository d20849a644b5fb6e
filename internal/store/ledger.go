package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/postgres"
)

// SetupLedger keeps the index setup history in the index_setup table so
// repeated setup runs from different hosts agree on what was applied.
type SetupLedger struct {
	db *postgres.Client
}

// NewSetupLedger creates a SetupLedger.
func NewSetupLedger(db *postgres.Client) *SetupLedger {
	return &SetupLedger{db: db}
}

var _ index.Ledger = (*SetupLedger)(nil)

func (l *SetupLedger) Applied(ctx context.Context, indexName string) (index.AppliedSettings, error) {
	a := index.AppliedSettings{Index: indexName}
	err := l.db.DB.QueryRowContext(ctx,
		`SELECT version, fingerprint, applied_at FROM index_setup WHERE index_name = $1`,
		indexName,
	).Scan(&a.Version, &a.Fingerprint, &a.AppliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return index.AppliedSettings{}, apperrors.ErrNotFound
	}
	if err != nil {
		return index.AppliedSettings{}, fmt.Errorf("querying index setup for %s: %w", indexName, err)
	}
	return a, nil
}

func (l *SetupLedger) Record(ctx context.Context, a index.AppliedSettings) error {
	_, err := l.db.DB.ExecContext(ctx,
		`INSERT INTO index_setup (index_name, version, fingerprint, applied_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (index_name) DO UPDATE
		 SET version = EXCLUDED.version, fingerprint = EXCLUDED.fingerprint, applied_at = EXCLUDED.applied_at`,
		a.Index, a.Version, a.Fingerprint, a.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("recording index setup for %s: %w", a.Index, err)
	}
	return nil
}
