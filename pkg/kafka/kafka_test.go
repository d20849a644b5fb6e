package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	BatchID string   `json:"batch_id"`
	Names   []string `json:"names"`
}

func TestDecodeJSON(t *testing.T) {
	req, err := DecodeJSON[request]([]byte(`{"batch_id":"b1","names":["Acme Inc"]}`))
	require.NoError(t, err)
	assert.Equal(t, "b1", req.BatchID)
	assert.Equal(t, []string{"Acme Inc"}, req.Names)

	_, err = DecodeJSON[request]([]byte(`{not json`))
	assert.Error(t, err)
}

func TestToMessageCarriesHeaders(t *testing.T) {
	msg, err := toMessage(Event{
		Key:     "b1",
		Value:   request{BatchID: "b1"},
		Headers: map[string]string{"content-type": "application/json"},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("b1"), msg.Key)
	assert.JSONEq(t, `{"batch_id":"b1","names":null}`, string(msg.Value))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "content-type", msg.Headers[0].Key)
}

func TestToMessageRejectsUnencodable(t *testing.T) {
	_, err := toMessage(Event{Key: "k", Value: make(chan int)})
	assert.Error(t, err)
}

// queueReader serves a fixed list of messages, then blocks until ctx ends.
type queueReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *queueReader) Close() error { return nil }

func (r *queueReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumerRetriesRejectedMessageBeforeMovingOn(t *testing.T) {
	reader := &queueReader{queue: []kafka.Message{
		{Offset: 0, Key: []byte("a")},
		{Offset: 1, Key: []byte("b")},
		{Offset: 2, Key: []byte("c")},
	}}
	var (
		mu   sync.Mutex
		seen []string
		outs = 2
	)
	c := &Consumer{
		reader: reader,
		handler: func(_ context.Context, key, _ []byte) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, string(key))
			if string(key) == "b" && outs > 0 {
				outs--
				return errors.New("index outage")
			}
			return nil
		},
		log:          slog.Default(),
		retryBackoff: time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{0, 1, 2}, reader.commits())
	mu.Lock()
	assert.Equal(t, []string{"a", "b", "b", "b", "c"}, seen)
	mu.Unlock()
	assert.Equal(t, ConsumerStats{Handled: 3, Failed: 2}, c.Stats())
}

func TestConsumerStopLeavesRejectedMessageUncommitted(t *testing.T) {
	reader := &queueReader{queue: []kafka.Message{{Offset: 4, Key: []byte("bad")}, {Offset: 5}}}
	c := &Consumer{
		reader:       reader,
		handler:      func(context.Context, []byte, []byte) error { return errors.New("index outage") },
		log:          slog.Default(),
		retryBackoff: time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return c.Stats().Failed >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Empty(t, reader.commits())
	assert.Zero(t, c.Stats().Handled)
	reader.mu.Lock()
	assert.Len(t, reader.queue, 1, "offset 5 must not be fetched past a rejected message")
	reader.mu.Unlock()
}
