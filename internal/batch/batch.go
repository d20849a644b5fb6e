// Package batch matches many company names concurrently. A bounded worker
// pool runs the single-query pipeline for every input, results land in an
// index-addressed slot table so output order equals input order, and a
// global deadline turns unfinished queries into timeout verdicts instead
// of holding the batch open.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/metrics"
)

// Matcher runs one query through the pipeline. It must never panic on
// bad input, but the orchestrator recovers if it does.
type Matcher interface {
	MatchQuery(ctx context.Context, q company.QueryName) company.MatchVerdict
}

// Report is the outcome of a batch. Verdicts[i] answers queries[i].
type Report struct {
	BatchID     string                 `json:"batch_id"`
	StartedAt   time.Time              `json:"started_at"`
	Verdicts    []company.MatchVerdict `json:"verdicts"`
	Stats       Stats                  `json:"stats"`
	HealthAlert bool                   `json:"health_alert"`
	Outage      bool                   `json:"outage"`
}

// Orchestrator is safe for concurrent use; every Run gets its own pool.
type Orchestrator struct {
	matcher Matcher
	cfg     config.BatchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics publishes batch progress to Prometheus.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator around m.
func New(m Matcher, cfg config.BatchConfig, opts ...Option) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8 * runtime.NumCPU()
	}
	o := &Orchestrator{
		matcher: m,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "batch")
	return o
}

// RunNames wraps raw names as queries and runs them.
func (o *Orchestrator) RunNames(ctx context.Context, names []string, concurrency int) (*Report, error) {
	queries := make([]company.QueryName, len(names))
	for i, n := range names {
		queries[i] = company.QueryName{Raw: n}
	}
	return o.Run(ctx, queries, concurrency)
}

// Run matches every query with at most concurrency in flight (the
// configured default when concurrency <= 0). It always returns a full,
// ordered report. Queries that do not finish before the batch deadline
// or ctx's own deadline get NO_MATCH(timeout). When the index fails for
// OutageWindow queries in a row the remaining work is abandoned, those
// queries get NO_MATCH(index_unavailable) and Run returns ErrIndexOutage
// alongside the report. No other error escapes Run.
func (o *Orchestrator) Run(ctx context.Context, queries []company.QueryName, concurrency int) (*Report, error) {
	start := time.Now()
	batchID := logger.BatchID(ctx)
	if batchID == "" {
		batchID = uuid.NewString()
		ctx = logger.WithBatchID(ctx, batchID)
	}
	log := o.logger.With("batch_id", batchID)
	report := &Report{BatchID: batchID, StartedAt: start.UTC()}

	if concurrency <= 0 {
		concurrency = o.cfg.Concurrency
	}
	if concurrency > len(queries) {
		concurrency = max(len(queries), 1)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if o.cfg.Deadline > 0 {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithTimeout(runCtx, o.cfg.Deadline)
		defer cancelDeadline()
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Release()

	slots := newSlotTable(len(queries))
	health := newIndexHealth(o.cfg.AlertFailureRate, o.cfg.AlertMinSamples, o.cfg.OutageWindow)

	log.Info("batch started", "queries", len(queries), "concurrency", concurrency, "deadline", o.cfg.Deadline)
	stopProgress := o.reportProgress(runCtx, log, slots, len(queries), start)

	task := func(i int, q company.QueryName) {
		if o.metrics != nil {
			o.metrics.BatchQueriesInFlight.Inc()
			defer o.metrics.BatchQueriesInFlight.Dec()
		}
		qStart := time.Now()
		v := o.matchOne(runCtx, log, q)
		if _, outage, _ := health.snapshot(); outage && v.Reason == apperrors.ReasonTimeout {
			v = company.NoMatch(q, apperrors.ReasonIndexUnavailable, apperrors.ErrIndexOutage)
		}
		switch health.observe(v) {
		case healthAlert:
			_, _, rate := health.snapshot()
			log.Warn("index health alert: unavailable rate above threshold",
				"rate", rate,
				"threshold", o.cfg.AlertFailureRate,
			)
			if o.metrics != nil {
				o.metrics.IndexHealthAlert.Set(1)
			}
		case healthOutage:
			log.Error("index outage detected, abandoning batch",
				"consecutive_failures", o.cfg.OutageWindow,
				"completed", slots.completed(),
			)
			cancel()
		}
		slots.put(i, v, time.Since(qStart))
	}

	go func() {
		for i, q := range queries {
			if runCtx.Err() != nil {
				return
			}
			if err := pool.Submit(func() { task(i, q) }); err != nil {
				if !errors.Is(err, ants.ErrPoolClosed) {
					log.Error("submitting query", "index", i, "error", err)
				}
				return
			}
		}
	}()

	select {
	case <-slots.done:
	case <-runCtx.Done():
	}
	stopProgress()
	cancel()

	alerted, outage, rate := health.snapshot()
	verdicts, latencies, abandoned := slots.seal(func(i int) company.MatchVerdict {
		if outage {
			return company.NoMatch(queries[i], apperrors.ReasonIndexUnavailable, apperrors.ErrIndexOutage)
		}
		return company.NoMatch(queries[i], apperrors.ReasonTimeout,
			apperrors.New(apperrors.ErrRetrievalTimeout, 0, "batch deadline exceeded before the query finished"))
	})
	if o.metrics != nil && abandoned > 0 {
		reason := apperrors.ReasonTimeout
		if outage {
			reason = apperrors.ReasonIndexUnavailable
		}
		o.metrics.VerdictsTotal.WithLabelValues(string(company.DecisionNoMatch), reason).Add(float64(abandoned))
	}

	elapsed := time.Since(start)
	report.Verdicts = verdicts
	report.Stats = summarize(verdicts, latencies, elapsed)
	report.HealthAlert = alerted
	report.Outage = outage

	outcome := "completed"
	if outage {
		outcome = "outage"
	}
	if o.metrics != nil {
		o.metrics.BatchesTotal.WithLabelValues(outcome).Inc()
		o.metrics.BatchDuration.Observe(elapsed.Seconds())
		o.metrics.BatchThroughput.Set(report.Stats.Throughput)
		if !alerted {
			o.metrics.IndexHealthAlert.Set(0)
		}
	}

	log.Info("batch finished",
		"outcome", outcome,
		"total", report.Stats.Total,
		"matched", report.Stats.Matched,
		"ambiguous", report.Stats.Ambiguous,
		"no_match", report.Stats.NoMatch,
		"abandoned", abandoned,
		"unavailable_rate", rate,
		"duration_ms", report.Stats.DurationMs,
		"throughput_per_sec", report.Stats.Throughput,
	)

	if outage {
		return report, apperrors.Newf(apperrors.ErrIndexOutage, 0,
			"%d consecutive queries found the index unavailable", o.cfg.OutageWindow)
	}
	if abandoned > 0 {
		log.Warn("batch deadline reached", "unfinished", abandoned)
	}
	return report, nil
}

// matchOne runs one query and converts a panic into an internal_error
// verdict.
func (o *Orchestrator) matchOne(ctx context.Context, log *slog.Logger, q company.QueryName) (v company.MatchVerdict) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("query panicked", "query", q.Raw, "panic", r)
			v = company.NoMatch(q, apperrors.ReasonInternal,
				apperrors.Newf(apperrors.ErrInternal, 0, "panic: %v", r))
		}
	}()
	return o.matcher.MatchQuery(ctx, q)
}

// reportProgress logs throughput every ProgressInterval until the returned
// stop function is called.
func (o *Orchestrator) reportProgress(ctx context.Context, log *slog.Logger, slots *slotTable, total int, start time.Time) func() {
	if o.cfg.ProgressInterval <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(o.cfg.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				done := slots.completed()
				perSec := float64(done) / time.Since(start).Seconds()
				if o.metrics != nil {
					o.metrics.BatchThroughput.Set(perSec)
				}
				log.Info("batch progress",
					"completed", done,
					"total", total,
					"throughput_per_sec", perSec,
				)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		close(stop)
		<-stopped
	}
}
