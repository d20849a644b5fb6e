package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/batch"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/postgres"
)

var verdictColumns = []string{
	"batch_id", "position", "query", "normalized_query", "decision",
	"matched_record_id", "matched_domain", "confidence", "reason", "error", "detail",
}

// verdictDetail is the JSONB part of a stored verdict: the fields only a
// reviewer reads.
type verdictDetail struct {
	MatchedName  string                       `json:"matched_name,omitempty"`
	Signals      []company.SignalContribution `json:"contributing_signals,omitempty"`
	Alternatives []company.Alternative        `json:"alternatives,omitempty"`
}

// BatchSummary is a stored batch without its verdicts.
type BatchSummary struct {
	BatchID     string      `json:"batch_id"`
	StartedAt   time.Time   `json:"started_at"`
	Total       int         `json:"total"`
	Outage      bool        `json:"outage"`
	HealthAlert bool        `json:"health_alert"`
	Stats       batch.Stats `json:"stats"`
	SavedAt     time.Time   `json:"saved_at"`
}

// VerdictStore persists batch reports.
type VerdictStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewVerdictStore creates a VerdictStore.
func NewVerdictStore(db *postgres.Client) *VerdictStore {
	return &VerdictStore{
		db:     db,
		logger: slog.Default().With("component", "verdict-store"),
	}
}

// SaveBatch writes the batch row and every verdict in one transaction.
// Verdicts are bulk loaded with COPY. Saving the same batch id twice
// replaces the earlier copy.
func (s *VerdictStore) SaveBatch(ctx context.Context, r *batch.Report) error {
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return fmt.Errorf("marshaling batch stats: %w", err)
	}

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM match_batches WHERE batch_id = $1`, r.BatchID); err != nil {
			return fmt.Errorf("clearing previous batch: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO match_batches (batch_id, started_at, total, outage, health_alert, stats)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			r.BatchID, r.StartedAt, len(r.Verdicts), r.Outage, r.HealthAlert, stats,
		); err != nil {
			return fmt.Errorf("inserting batch: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("match_verdicts", verdictColumns...))
		if err != nil {
			return fmt.Errorf("preparing verdict copy: %w", err)
		}
		for i, v := range r.Verdicts {
			row, err := verdictRow(r.BatchID, i, v)
			if err != nil {
				_ = stmt.Close()
				return err
			}
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				_ = stmt.Close()
				return fmt.Errorf("copying verdict %d: %w", i, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("flushing verdict copy: %w", err)
		}
		return stmt.Close()
	})
	if err != nil {
		return fmt.Errorf("saving batch %s: %w", r.BatchID, err)
	}
	s.logger.Info("batch saved", "batch_id", r.BatchID, "verdicts", len(r.Verdicts))
	return nil
}

func verdictRow(batchID string, position int, v company.MatchVerdict) ([]any, error) {
	detail, err := json.Marshal(verdictDetail{
		MatchedName:  v.MatchedName,
		Signals:      v.Signals,
		Alternatives: v.Alternatives,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling verdict %d detail: %w", position, err)
	}
	return []any{
		batchID, position, v.Query, v.NormalizedQuery, string(v.Decision),
		v.MatchedRecordID, v.MatchedDomain, v.Confidence, v.Reason, v.Error, string(detail),
	}, nil
}

// Batch returns the summary of a stored batch, or ErrNotFound.
func (s *VerdictStore) Batch(ctx context.Context, batchID string) (*BatchSummary, error) {
	var b BatchSummary
	var stats []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT batch_id, started_at, total, outage, health_alert, stats, saved_at
		 FROM match_batches WHERE batch_id = $1`,
		batchID,
	).Scan(&b.BatchID, &b.StartedAt, &b.Total, &b.Outage, &b.HealthAlert, &stats, &b.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 0, "batch %s", batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying batch %s: %w", batchID, err)
	}
	if err := json.Unmarshal(stats, &b.Stats); err != nil {
		return nil, fmt.Errorf("unmarshaling batch stats: %w", err)
	}
	return &b, nil
}

// Verdicts returns the verdicts of a stored batch in input order. A
// non-empty decision filters on it.
func (s *VerdictStore) Verdicts(ctx context.Context, batchID string, decision company.Decision) ([]company.MatchVerdict, error) {
	query := `SELECT query, normalized_query, decision, matched_record_id, matched_domain,
	                 confidence, reason, error, detail
	          FROM match_verdicts WHERE batch_id = $1`
	args := []any{batchID}
	if decision != "" {
		query += ` AND decision = $2`
		args = append(args, string(decision))
	}
	query += ` ORDER BY position`

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing verdicts of %s: %w", batchID, err)
	}
	defer rows.Close()

	var out []company.MatchVerdict
	for rows.Next() {
		var v company.MatchVerdict
		var dec string
		var detail []byte
		if err := rows.Scan(&v.Query, &v.NormalizedQuery, &dec, &v.MatchedRecordID, &v.MatchedDomain,
			&v.Confidence, &v.Reason, &v.Error, &detail); err != nil {
			return nil, fmt.Errorf("scanning verdict row: %w", err)
		}
		v.Decision = company.Decision(dec)
		var d verdictDetail
		if err := json.Unmarshal(detail, &d); err != nil {
			s.logger.Warn("skipping corrupt verdict detail", "batch_id", batchID, "error", err)
		}
		v.MatchedName, v.Signals, v.Alternatives = d.MatchedName, d.Signals, d.Alternatives
		out = append(out, v)
	}
	return out, rows.Err()
}

// RecentBatches lists the latest batches, newest first.
func (s *VerdictStore) RecentBatches(ctx context.Context, limit int) ([]BatchSummary, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT batch_id, started_at, total, outage, health_alert, stats, saved_at
		 FROM match_batches ORDER BY saved_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	defer rows.Close()

	var out []BatchSummary
	for rows.Next() {
		var b BatchSummary
		var stats []byte
		if err := rows.Scan(&b.BatchID, &b.StartedAt, &b.Total, &b.Outage, &b.HealthAlert, &stats, &b.SavedAt); err != nil {
			return nil, fmt.Errorf("scanning batch row: %w", err)
		}
		if err := json.Unmarshal(stats, &b.Stats); err != nil {
			s.logger.Warn("skipping corrupt batch stats", "batch_id", b.BatchID, "error", err)
			continue
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
