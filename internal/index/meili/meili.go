// Package meili adapts a Meilisearch index to the company index contract.
package meili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
)

// Client talks to one Meilisearch index. It is safe for concurrent use.
type Client struct {
	service      meilisearch.ServiceManager
	index        meilisearch.IndexManager
	name         string
	pollInterval time.Duration
	logger       *slog.Logger
}

var _ index.Index = (*Client)(nil)

// New creates a Client for cfg.Name on cfg.Endpoint. No request is made.
func New(cfg config.IndexConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []meilisearch.Option{}
	if cfg.APIKey != "" {
		opts = append(opts, meilisearch.WithAPIKey(cfg.APIKey))
	}
	svc := meilisearch.New(cfg.Endpoint, opts...)
	poll := cfg.TaskPollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Client{
		service:      svc,
		index:        svc.Index(cfg.Name),
		name:         cfg.Name,
		pollInterval: poll,
		logger:       logger.With("component", "meili", "index", cfg.Name),
	}
}

type searchResponse struct {
	Hits []searchHit `json:"hits"`
}

type searchHit struct {
	index.Document
	RankingScore float64 `json:"_rankingScore"`
}

// Search issues one search request. Phonetic codes are appended after the
// name so the default matching strategy drops them first.
func (c *Client) Search(ctx context.Context, q index.Query) ([]index.Hit, error) {
	text := q.Text
	if len(q.Phonetic) > 0 {
		text = text + " " + strings.Join(q.Phonetic, " ")
	}
	raw, err := c.index.SearchRawWithContext(ctx, text, &meilisearch.SearchRequest{
		Limit:                int64(q.Limit),
		AttributesToRetrieve: index.RetrievedAttributes,
		ShowRankingScore:     true,
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	if raw == nil {
		return nil, nil
	}
	var resp searchResponse
	if err := json.Unmarshal(*raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	hits := make([]index.Hit, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		if h.ID == "" {
			continue
		}
		hits = append(hits, index.Hit{Record: h.Document.Record(), Score: h.RankingScore})
	}
	return hits, nil
}

// AddDocuments uploads docs as one task and waits for it to finish.
func (c *Client) AddDocuments(ctx context.Context, docs []index.Document) error {
	if len(docs) == 0 {
		return nil
	}
	info, err := c.index.AddDocumentsWithContext(ctx, docs, "id")
	if err != nil {
		return fmt.Errorf("adding %d documents: %w", len(docs), classify(ctx, err))
	}
	return c.wait(ctx, info, "add documents")
}

// ApplySettings creates the index when it does not exist and replaces its
// settings.
func (c *Client) ApplySettings(ctx context.Context, s index.Settings) error {
	if err := c.ensureIndex(ctx, s.PrimaryKey); err != nil {
		return err
	}
	info, err := c.index.UpdateSettingsWithContext(ctx, &meilisearch.Settings{
		SearchableAttributes: s.SearchableAttributes,
		FilterableAttributes: s.FilterableAttributes,
		SortableAttributes:   s.SortableAttributes,
		RankingRules:         s.RankingRules,
	})
	if err != nil {
		return fmt.Errorf("updating settings: %w", classify(ctx, err))
	}
	return c.wait(ctx, info, "update settings")
}

// Health checks that the Meilisearch server is reachable and available.
func (c *Client) Health(ctx context.Context) error {
	h, err := c.service.HealthWithContext(ctx)
	if err != nil {
		return classify(ctx, err)
	}
	if h.Status != "available" {
		return fmt.Errorf("%w: meilisearch status %q", apperrors.ErrRetrievalUnavailable, h.Status)
	}
	return nil
}

func (c *Client) ensureIndex(ctx context.Context, primaryKey string) error {
	_, err := c.service.GetIndexWithContext(ctx, c.name)
	if err == nil {
		return nil
	}
	var me *meilisearch.Error
	if !errors.As(err, &me) || me.StatusCode != http.StatusNotFound {
		return fmt.Errorf("looking up index %s: %w", c.name, classify(ctx, err))
	}
	c.logger.Info("creating index", "primary_key", primaryKey)
	info, err := c.service.CreateIndexWithContext(ctx, &meilisearch.IndexConfig{
		Uid:        c.name,
		PrimaryKey: primaryKey,
	})
	if err != nil {
		return fmt.Errorf("creating index %s: %w", c.name, classify(ctx, err))
	}
	return c.wait(ctx, info, "create index")
}

func (c *Client) wait(ctx context.Context, info *meilisearch.TaskInfo, op string) error {
	if info == nil {
		return nil
	}
	task, err := c.service.WaitForTaskWithContext(ctx, info.TaskUID, c.pollInterval)
	if err != nil {
		return fmt.Errorf("waiting for %s task %d: %w", op, info.TaskUID, classify(ctx, err))
	}
	if task.Status != meilisearch.TaskStatusSucceeded {
		return fmt.Errorf("%s task %d ended %s: %s", op, info.TaskUID, task.Status, task.Error.Message)
	}
	return nil
}

// classify maps Meilisearch client errors onto the retrieval taxonomy.
func classify(ctx context.Context, err error) error {
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.Canceled):
		// The caller gave up; that says nothing about the index.
		return fmt.Errorf("search abandoned: %w: %w", ctxErr, err)
	case ctxErr != nil:
		return fmt.Errorf("%w: %w", apperrors.ErrRetrievalTimeout, err)
	}
	var me *meilisearch.Error
	if errors.As(err, &me) {
		switch {
		case me.ErrCode == meilisearch.MeilisearchTimeoutError:
			return fmt.Errorf("%w: %w", apperrors.ErrRetrievalTimeout, err)
		case me.ErrCode == meilisearch.MeilisearchCommunicationError,
			me.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %w", apperrors.ErrRetrievalUnavailable, err)
		case me.StatusCode == 0 &&
			me.ErrCode != meilisearch.ErrCodeMarshalRequest &&
			me.ErrCode != meilisearch.ErrCodeResponseUnmarshalBody:
			// No response at all, e.g. retries exhausted on a dead connection.
			return fmt.Errorf("%w: %w", apperrors.ErrRetrievalUnavailable, err)
		}
		return err
	}
	return index.Classify(err)
}
