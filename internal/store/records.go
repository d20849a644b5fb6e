package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/postgres"
)

// RecordStore keeps the authoritative copy of the company records the
// index is built from. It is an ingest source, so the index can be rebuilt
// from the database.
type RecordStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewRecordStore creates a RecordStore.
func NewRecordStore(db *postgres.Client) *RecordStore {
	return &RecordStore{
		db:     db,
		logger: slog.Default().With("component", "record-store"),
	}
}

// Upsert writes recs in one transaction, replacing rows with the same id.
func (s *RecordStore) Upsert(ctx context.Context, recs []company.CompanyRecord) error {
	if len(recs) == 0 {
		return nil
	}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO companies
			   (id, canonical_name, aliases, domain, source, employee_count, country, industry, size_desc, last_verified, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
			 ON CONFLICT (id) DO UPDATE SET
			   canonical_name = EXCLUDED.canonical_name,
			   aliases        = EXCLUDED.aliases,
			   domain         = EXCLUDED.domain,
			   source         = EXCLUDED.source,
			   employee_count = EXCLUDED.employee_count,
			   country        = EXCLUDED.country,
			   industry       = EXCLUDED.industry,
			   size_desc      = EXCLUDED.size_desc,
			   last_verified  = EXCLUDED.last_verified,
			   updated_at     = NOW()`)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range recs {
			aliases := r.Aliases
			if aliases == nil {
				aliases = []string{}
			}
			if _, err := stmt.ExecContext(ctx,
				r.ID, r.CanonicalName, pq.Array(aliases), r.Domain, r.Source,
				r.EmployeeCount, r.Country, r.Industry, r.SizeDesc, nullableTime(r.LastVerified),
			); err != nil {
				return fmt.Errorf("upserting company %s: %w", r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("companies upserted", "count", len(recs))
	return nil
}

// Count returns the number of stored records.
func (s *RecordStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting companies: %w", err)
	}
	return n, nil
}

// Each streams every record in id order.
func (s *RecordStore) Each(ctx context.Context, fn func(company.CompanyRecord) error) error {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, canonical_name, aliases, domain, source, employee_count, country, industry, size_desc, last_verified
		 FROM companies ORDER BY id`)
	if err != nil {
		return fmt.Errorf("listing companies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r company.CompanyRecord
		var verified sql.NullTime
		if err := rows.Scan(
			&r.ID, &r.CanonicalName, pq.Array(&r.Aliases), &r.Domain, &r.Source,
			&r.EmployeeCount, &r.Country, &r.Industry, &r.SizeDesc, &verified,
		); err != nil {
			return fmt.Errorf("scanning company row: %w", err)
		}
		if verified.Valid {
			r.LastVerified = verified.Time.UTC()
		}
		if len(r.Aliases) == 0 {
			r.Aliases = nil
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Sink buffers records and upserts them in chunks of size. Flush must be
// called after the last Add.
type Sink struct {
	store *RecordStore
	size  int
	buf   []company.CompanyRecord
	total int
}

// NewSink creates a Sink writing to s.
func (s *RecordStore) NewSink(size int) *Sink {
	if size <= 0 {
		size = 1000
	}
	return &Sink{store: s, size: size, buf: make([]company.CompanyRecord, 0, size)}
}

// Add queues r, writing the buffer when it is full.
func (k *Sink) Add(ctx context.Context, r company.CompanyRecord) error {
	k.buf = append(k.buf, r)
	if len(k.buf) >= k.size {
		return k.Flush(ctx)
	}
	return nil
}

// Flush writes any queued records.
func (k *Sink) Flush(ctx context.Context) error {
	if len(k.buf) == 0 {
		return nil
	}
	if err := k.store.Upsert(ctx, k.buf); err != nil {
		return err
	}
	k.total += len(k.buf)
	k.buf = k.buf[:0]
	return nil
}

// Total is the number of records written so far.
func (k *Sink) Total() int {
	return k.total
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
