// Package store persists company records, batch verdicts and the index
// setup ledger in PostgreSQL.
package store

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/postgres"
)

// Schema creates every table the store uses. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS companies (
    id             TEXT PRIMARY KEY,
    canonical_name TEXT NOT NULL,
    aliases        TEXT[] NOT NULL DEFAULT '{}',
    domain         TEXT NOT NULL,
    source         TEXT NOT NULL DEFAULT '',
    employee_count INTEGER NOT NULL DEFAULT 0,
    country        TEXT NOT NULL DEFAULT '',
    industry       TEXT NOT NULL DEFAULT '',
    size_desc      TEXT NOT NULL DEFAULT '',
    last_verified  TIMESTAMPTZ,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS match_batches (
    batch_id     TEXT PRIMARY KEY,
    started_at   TIMESTAMPTZ NOT NULL,
    total        INTEGER NOT NULL,
    outage       BOOLEAN NOT NULL DEFAULT FALSE,
    health_alert BOOLEAN NOT NULL DEFAULT FALSE,
    stats        JSONB NOT NULL,
    saved_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS match_verdicts (
    batch_id          TEXT NOT NULL REFERENCES match_batches(batch_id) ON DELETE CASCADE,
    position          INTEGER NOT NULL,
    query             TEXT NOT NULL,
    normalized_query  TEXT NOT NULL,
    decision          TEXT NOT NULL,
    matched_record_id TEXT NOT NULL,
    matched_domain    TEXT NOT NULL,
    confidence        DOUBLE PRECISION NOT NULL,
    reason            TEXT NOT NULL,
    error             TEXT NOT NULL,
    detail            JSONB NOT NULL,
    PRIMARY KEY (batch_id, position)
);

CREATE INDEX IF NOT EXISTS match_verdicts_decision_idx ON match_verdicts (batch_id, decision);

CREATE TABLE IF NOT EXISTS index_setup (
    index_name  TEXT PRIMARY KEY,
    version     INTEGER NOT NULL,
    fingerprint TEXT NOT NULL,
    applied_at  TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db *postgres.Client) error {
	if _, err := db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
