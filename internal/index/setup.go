package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
)

// AppliedSettings is what a Ledger remembers about the last successful setup
// of an index.
type AppliedSettings struct {
	Index       string
	Version     int
	Fingerprint string
	AppliedAt   time.Time
}

// Ledger records which settings version has been applied to which index.
type Ledger interface {
	// Applied returns the last recorded setup for indexName, or
	// apperrors.ErrNotFound when the index was never set up.
	Applied(ctx context.Context, indexName string) (AppliedSettings, error)
	Record(ctx context.Context, applied AppliedSettings) error
}

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]AppliedSettings
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]AppliedSettings)}
}

func (l *MemoryLedger) Applied(_ context.Context, indexName string) (AppliedSettings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.entries[indexName]
	if !ok {
		return AppliedSettings{}, apperrors.ErrNotFound
	}
	return a, nil
}

func (l *MemoryLedger) Record(_ context.Context, applied AppliedSettings) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[applied.Index] = applied
	return nil
}

// SetupResult describes what Setup did.
type SetupResult struct {
	Applied         bool
	Version         int
	PreviousVersion int
}

// Setup brings the index to the desired settings. It is idempotent: when the
// ledger already holds the same version and fingerprint nothing is sent to
// the index. Publishing different settings under an already applied version,
// or a version lower than the applied one, is rejected.
func Setup(ctx context.Context, idx Configurer, ledger Ledger, indexName string, desired Settings, logger *slog.Logger) (SetupResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("index", indexName, "version", desired.Version)
	fp := desired.Fingerprint()
	res := SetupResult{Version: desired.Version}

	prev, err := ledger.Applied(ctx, indexName)
	switch {
	case err == nil:
		res.PreviousVersion = prev.Version
		switch {
		case prev.Version == desired.Version && prev.Fingerprint == fp:
			logger.Info("index settings already applied, skipping")
			return res, nil
		case prev.Version == desired.Version:
			return res, apperrors.Newf(apperrors.ErrInvalidConfig, 0,
				"index %s: settings changed without a version bump (version %d)", indexName, desired.Version)
		case prev.Version > desired.Version:
			return res, apperrors.Newf(apperrors.ErrInvalidConfig, 0,
				"index %s: applied version %d is newer than requested %d", indexName, prev.Version, desired.Version)
		}
	case errors.Is(err, apperrors.ErrNotFound):
	default:
		return res, fmt.Errorf("reading setup ledger for %s: %w", indexName, err)
	}

	start := time.Now()
	if err := idx.ApplySettings(ctx, desired); err != nil {
		return res, fmt.Errorf("applying settings to %s: %w", indexName, err)
	}
	if err := ledger.Record(ctx, AppliedSettings{
		Index:       indexName,
		Version:     desired.Version,
		Fingerprint: fp,
		AppliedAt:   time.Now().UTC(),
	}); err != nil {
		return res, fmt.Errorf("recording setup of %s: %w", indexName, err)
	}
	res.Applied = true
	logger.Info("index settings applied",
		"previous_version", res.PreviousVersion,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
