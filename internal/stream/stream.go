// Package stream runs match batches requested over Kafka and publishes the
// verdicts back to Kafka.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/batch"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/logger"
)

// Event types carried in the "type" header of published messages.
const (
	EventVerdict = "verdict"
	EventSummary = "batch_summary"
)

// MatchRequest is the payload of a match-requests message.
type MatchRequest struct {
	BatchID     string    `json:"batch_id,omitempty"`
	Names       []string  `json:"names"`
	Concurrency int       `json:"concurrency,omitempty"`
	RequestedAt time.Time `json:"requested_at,omitzero"`
}

// VerdictEvent is one published verdict. Position is the index of the
// name in the request.
type VerdictEvent struct {
	BatchID  string               `json:"batch_id"`
	Position int                  `json:"position"`
	Verdict  company.MatchVerdict `json:"verdict"`
}

// SummaryEvent closes a batch on the verdicts topic.
type SummaryEvent struct {
	BatchID     string      `json:"batch_id"`
	Stats       batch.Stats `json:"stats"`
	HealthAlert bool        `json:"health_alert"`
	Outage      bool        `json:"outage"`
	CompletedAt time.Time   `json:"completed_at"`
}

// Runner executes a batch.
type Runner interface {
	Run(ctx context.Context, queries []company.QueryName, concurrency int) (*batch.Report, error)
}

// Publisher writes events to the verdicts topic.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Saver persists a finished batch.
type Saver interface {
	SaveBatch(ctx context.Context, r *batch.Report) error
}

// Handler turns match requests into published verdicts.
type Handler struct {
	runner    Runner
	publisher Publisher
	saver     Saver
	tracker   analytics.Tracker
	maxNames  int
	chunk     int
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithSaver persists every batch before its verdicts are published.
func WithSaver(s Saver) Option {
	return func(h *Handler) { h.saver = s }
}

// WithTracker reports every published verdict to analytics.
func WithTracker(t analytics.Tracker) Option {
	return func(h *Handler) { h.tracker = t }
}

// WithMaxNames rejects requests with more than n names.
func WithMaxNames(n int) Option {
	return func(h *Handler) { h.maxNames = n }
}

// WithChunkSize sets how many events go into one Kafka write.
func WithChunkSize(n int) Option {
	return func(h *Handler) { h.chunk = n }
}

// NewHandler creates a Handler.
func NewHandler(runner Runner, publisher Publisher, opts ...Option) *Handler {
	h := &Handler{
		runner:    runner,
		publisher: publisher,
		chunk:     500,
		logger:    slog.Default().With("component", "match-stream"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle is a kafka.MessageHandler. Undecodable and empty requests are
// logged and dropped so they do not block the partition. A batch that hits
// an index outage is neither saved nor published; the returned error makes
// the consumer retry the request until the index recovers.
func (h *Handler) Handle(ctx context.Context, key, value []byte) error {
	req, err := kafka.DecodeJSON[MatchRequest](value)
	if err != nil {
		h.logger.Error("failed to decode match request", "key", string(key), "error", err)
		return nil
	}
	if len(req.Names) == 0 {
		h.logger.Warn("dropping empty match request", "key", string(key), "batch_id", req.BatchID)
		return nil
	}
	if h.maxNames > 0 && len(req.Names) > h.maxNames {
		h.logger.Warn("dropping oversized match request",
			"batch_id", req.BatchID,
			"names", len(req.Names),
			"max", h.maxNames,
		)
		return nil
	}
	if req.BatchID == "" {
		req.BatchID = string(key)
	}
	if req.BatchID == "" {
		req.BatchID = uuid.NewString()
	}
	ctx = logger.WithBatchID(ctx, req.BatchID)

	queries := make([]company.QueryName, len(req.Names))
	for i, n := range req.Names {
		queries[i] = company.QueryName{Raw: n}
	}
	report, err := h.runner.Run(ctx, queries, req.Concurrency)
	if err != nil {
		if errors.Is(err, apperrors.ErrIndexOutage) {
			h.logger.Error("batch abandoned on index outage", "batch_id", req.BatchID, "error", err)
		}
		return fmt.Errorf("running batch %s: %w", req.BatchID, err)
	}

	if h.saver != nil {
		if err := h.saver.SaveBatch(ctx, report); err != nil {
			return fmt.Errorf("saving batch %s: %w", req.BatchID, err)
		}
	}
	if err := h.publish(ctx, report); err != nil {
		return fmt.Errorf("publishing batch %s: %w", req.BatchID, err)
	}
	if h.tracker != nil {
		for _, v := range report.Verdicts {
			ev := analytics.FromVerdict(analytics.SourceBatch, v, 0)
			ev.BatchID = report.BatchID
			h.tracker.Track(ev)
		}
	}
	h.logger.Info("match request handled",
		"batch_id", report.BatchID,
		"names", len(req.Names),
		"matched", report.Stats.Matched,
		"duration_ms", report.Stats.DurationMs,
	)
	return nil
}

// publish writes every verdict keyed by batch id, so one batch stays on
// one partition in order, followed by a summary event.
func (h *Handler) publish(ctx context.Context, r *batch.Report) error {
	events := make([]kafka.Event, 0, h.chunk)
	flush := func() error {
		if len(events) == 0 {
			return nil
		}
		if err := h.publisher.PublishBatch(ctx, events); err != nil {
			return err
		}
		events = make([]kafka.Event, 0, h.chunk)
		return nil
	}

	for i, v := range r.Verdicts {
		events = append(events, kafka.Event{
			Key:   r.BatchID,
			Value: VerdictEvent{BatchID: r.BatchID, Position: i, Verdict: v},
			Headers: map[string]string{
				"type":     EventVerdict,
				"decision": string(v.Decision),
				"position": strconv.Itoa(i),
			},
		})
		if len(events) >= h.chunk {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	events = append(events, kafka.Event{
		Key: r.BatchID,
		Value: SummaryEvent{
			BatchID:     r.BatchID,
			Stats:       r.Stats,
			HealthAlert: r.HealthAlert,
			Outage:      r.Outage,
			CompletedAt: time.Now().UTC(),
		},
		Headers: map[string]string{"type": EventSummary},
	})
	return flush()
}
