// Package kafka wraps segmentio/kafka-go for the matcher's topics: a JSON
// producer and a group consumer that commits only messages its handler
// accepted. A rejected message is retried in place, so later offsets are
// never committed past it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
)

// MessageHandler processes one message. Returning an error makes the
// consumer retry the same message with backoff until it succeeds or the
// consumer stops; an uncommitted message is redelivered after a restart or
// rebalance. Handlers drop poison messages by returning nil.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

const (
	minFetchBackoff = 100 * time.Millisecond
	maxFetchBackoff = 5 * time.Second
	maxRetryBackoff = 30 * time.Second
)

// messageReader is the part of *kafka.Reader the consumer drives.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerStats counts messages seen by a Consumer.
type ConsumerStats struct {
	Handled int64 `json:"handled"`
	Failed  int64 `json:"failed"`
}

type Consumer struct {
	reader       messageReader
	handler      MessageHandler
	log          *slog.Logger
	retryBackoff time.Duration

	handled atomic.Int64
	failed  atomic.Int64
}

// NewConsumer joins cfg.ConsumerGroup on topic. A new group starts at the
// earliest offset so requests queued before the first deploy are served.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1,
			MaxBytes:    50e6,
			StartOffset: kafka.FirstOffset,
		}),
		handler:      handler,
		log:          slog.Default().With("component", "kafka-consumer", "topic", topic),
		retryBackoff: minFetchBackoff,
	}
}

// Start consumes until ctx is cancelled. Fetch errors back off
// exponentially up to maxFetchBackoff.
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("consumer started")
	backoff := minFetchBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.log.Error("fetching message", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(2*backoff, maxFetchBackoff)
			continue
		}
		backoff = minFetchBackoff
		if !c.process(ctx, msg) {
			c.log.Info("consumer stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// process hands msg to the handler until it is accepted, then commits it.
// It reports false if ctx ended first, leaving msg uncommitted.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	at := []any{"partition", msg.Partition, "offset", msg.Offset}
	c.log.Debug("message received", append(at, "bytes", len(msg.Value))...)

	backoff := c.retryBackoff
	for {
		err := c.handler(ctx, msg.Key, msg.Value)
		if err == nil {
			break
		}
		c.failed.Add(1)
		if ctx.Err() != nil {
			return false
		}
		c.log.Error("handler failed, retrying message", append(at, "error", err, "retry_in", backoff)...)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, maxRetryBackoff)
	}
	c.handled.Add(1)
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.log.Error("committing message", append(at, "error", err)...)
	}
	return true
}

// Stats reports handled messages and failed handler attempts.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{Handled: c.handled.Load(), Failed: c.failed.Load()}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, fmt.Errorf("decoding kafka message: %w", err)
	}
	return out, nil
}
