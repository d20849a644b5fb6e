package retrieve

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/resilience"
)

// scriptedSearcher runs the n-th step of script on the n-th call and repeats
// the last step afterwards.
type scriptedSearcher struct {
	calls  atomic.Int32
	script []func(ctx context.Context) ([]index.Hit, error)
	last   atomic.Value
}

func (s *scriptedSearcher) Search(ctx context.Context, q index.Query) ([]index.Hit, error) {
	s.last.Store(q)
	n := int(s.calls.Add(1)) - 1
	if n >= len(s.script) {
		n = len(s.script) - 1
	}
	return s.script[n](ctx)
}

func ok(ids ...string) func(context.Context) ([]index.Hit, error) {
	return func(context.Context) ([]index.Hit, error) {
		hits := make([]index.Hit, len(ids))
		for i, id := range ids {
			hits[i] = index.Hit{Record: company.CompanyRecord{ID: id, CanonicalName: strings.ToUpper(id)}, Score: float64(len(ids) - i)}
		}
		return hits, nil
	}
}

func hang(ctx context.Context) ([]index.Hit, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func fail(err error) func(context.Context) ([]index.Hit, error) {
	return func(context.Context) ([]index.Hit, error) { return nil, err }
}

func testConfig() config.IndexConfig {
	cfg := config.Default().Index
	cfg.Timeout = 20 * time.Millisecond
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func TestRetrieveReturnsCandidates(t *testing.T) {
	s := &scriptedSearcher{script: []func(context.Context) ([]index.Hit, error){ok("c1", "c2", "c1", "")}}
	r := New(s, testConfig())

	got, err := r.Retrieve(context.Background(), "acme widgets", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].RecordID)
	assert.Equal(t, "C1", got[0].Record.CanonicalName)
	assert.Equal(t, 4.0, got[0].LexicalScore)

	q := s.last.Load().(index.Query)
	assert.Equal(t, "acme widgets", q.Text)
	assert.Equal(t, []string{"A25", "W3232"}, q.Phonetic)
	assert.Equal(t, 5, q.Limit)
}

func TestRetrieveClampsK(t *testing.T) {
	s := &scriptedSearcher{script: []func(context.Context) ([]index.Hit, error){ok()}}
	r := New(s, testConfig())

	_, err := r.Retrieve(context.Background(), "acme", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultK, s.last.Load().(index.Query).Limit)

	_, err = r.Retrieve(context.Background(), "acme", 10_000)
	require.NoError(t, err)
	assert.Equal(t, MaxK, s.last.Load().(index.Query).Limit)
}

func TestRetrieveEmptyNameSkipsIndex(t *testing.T) {
	s := &scriptedSearcher{script: []func(context.Context) ([]index.Hit, error){ok("c1")}}
	r := New(s, testConfig())

	got, err := r.Retrieve(context.Background(), "", 5)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, int32(0), s.calls.Load())
}

func TestRetrieveRetriesOnceAfterTimeout(t *testing.T) {
	s := &scriptedSearcher{script: []func(context.Context) ([]index.Hit, error){hang, ok("c1")}}
	r := New(s, testConfig())

	got, err := r.Retrieve(context.Background(), "acme", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(2), s.calls.Load())
}

func TestRetrievePersistentTimeoutYieldsEmpty(t *testing.T) {
	s := &scriptedSearcher{script: []func(context.Context) ([]index.Hit, error){hang}}
	r := New(s, testConfig())

	got, err := r.Retrieve(context.Background(), "acme", 5)
	assert.ErrorIs(t, err, apperrors.ErrRetrievalTimeout)
	assert.Equal(t, apperrors.ReasonTimeout, apperrors.ReasonFor(err))
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, int32(2), s.calls.Load())
}

func TestRetrieveUnavailable(t *testing.T) {
	s := &scriptedSearcher{script: []func(context.Context) ([]index.Hit, error){fail(syscall.ECONNREFUSED)}}
	r := New(s, testConfig())

	_, err := r.Retrieve(context.Background(), "acme", 5)
	assert.ErrorIs(t, err, apperrors.ErrRetrievalUnavailable)
	assert.Equal(t, apperrors.ReasonIndexUnavailable, apperrors.ReasonFor(err))
	assert.Equal(t, int32(2), s.calls.Load())
}

func TestRetrieveDoesNotRetryPermanentErrors(t *testing.T) {
	s := &scriptedSearcher{script: []func(context.Context) ([]index.Hit, error){fail(errors.New("invalid filter"))}}
	r := New(s, testConfig())

	_, err := r.Retrieve(context.Background(), "acme", 5)
	require.Error(t, err)
	assert.Equal(t, apperrors.ReasonInternal, apperrors.ReasonFor(err))
	assert.Equal(t, int32(1), s.calls.Load())
	assert.Equal(t, resilience.StateClosed, r.BreakerState())
}

func TestRetrieveBreakerOpens(t *testing.T) {
	cfg := testConfig()
	cfg.RetryCount = 0
	cfg.BreakerThreshold = 2
	cfg.BreakerReset = time.Hour
	s := &scriptedSearcher{script: []func(context.Context) ([]index.Hit, error){fail(syscall.ECONNRESET)}}
	m := metrics.NewUnregistered()
	r := New(s, cfg, WithMetrics(m))

	for i := 0; i < 2; i++ {
		_, err := r.Retrieve(context.Background(), "acme", 5)
		assert.ErrorIs(t, err, apperrors.ErrRetrievalUnavailable)
	}
	assert.Equal(t, resilience.StateOpen, r.BreakerState())

	_, err := r.Retrieve(context.Background(), "acme", 5)
	assert.ErrorIs(t, err, apperrors.ErrRetrievalUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), s.calls.Load())

	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("index")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RetrievalErrors.WithLabelValues("unavailable")))
}

func TestRetrieveCallerCancellationLeavesBreakerClosed(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 5 * time.Second
	cfg.BreakerThreshold = 2
	cfg.BreakerReset = time.Hour
	s := &scriptedSearcher{script: []func(context.Context) ([]index.Hit, error){hang, hang, hang, ok("c1")}}
	r := New(s, cfg)

	// Cancelled while the lookup is in flight.
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		got, err := r.Retrieve(ctx, "acme", 5)
		cancel()
		assert.ErrorIs(t, err, apperrors.ErrRetrievalTimeout)
		assert.Empty(t, got)
	}
	assert.Equal(t, int32(3), s.calls.Load())

	// Already cancelled before the call.
	done, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 25; i++ {
		_, err := r.Retrieve(done, "acme", 5)
		assert.Equal(t, apperrors.ReasonTimeout, apperrors.ReasonFor(err))
	}
	assert.Equal(t, int32(3), s.calls.Load())
	assert.Equal(t, resilience.StateClosed, r.BreakerState())

	got, err := r.Retrieve(context.Background(), "acme", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].RecordID)
}

func TestRetrieveAttemptTimeoutsStillTripBreaker(t *testing.T) {
	cfg := testConfig()
	cfg.RetryCount = 0
	cfg.BreakerThreshold = 2
	cfg.BreakerReset = time.Hour
	s := &scriptedSearcher{script: []func(context.Context) ([]index.Hit, error){hang}}
	r := New(s, cfg)

	for i := 0; i < 2; i++ {
		_, err := r.Retrieve(context.Background(), "acme", 5)
		assert.ErrorIs(t, err, apperrors.ErrRetrievalTimeout)
	}
	assert.Equal(t, resilience.StateOpen, r.BreakerState())
}

// mapStore is an in-memory Store.
type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapStore() *mapStore { return &mapStore{data: make(map[string][]byte)} }

func (m *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, pkgredis.ErrMiss
	}
	return v, nil
}

func (m *mapStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestRetrieveUsesCache(t *testing.T) {
	s := &scriptedSearcher{script: []func(context.Context) ([]index.Hit, error){ok("c1", "c2")}}
	m := metrics.NewUnregistered()
	cache := NewCache(newMapStore(), time.Minute, nil)
	r := New(s, testConfig(), WithCache(cache), WithMetrics(m))

	first, err := r.Retrieve(context.Background(), "acme", 5)
	require.NoError(t, err)
	second, err := r.Retrieve(context.Background(), "acme", 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), s.calls.Load())
	hits, misses := cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))

	// A different k is a different key.
	_, err = r.Retrieve(context.Background(), "acme", 6)
	require.NoError(t, err)
	assert.Equal(t, int32(2), s.calls.Load())

	deleted, err := cache.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	s := &scriptedSearcher{script: []func(context.Context) ([]index.Hit, error){fail(syscall.ECONNREFUSED), fail(syscall.ECONNREFUSED), ok("c1")}}
	store := newMapStore()
	r := New(s, testConfig(), WithCache(NewCache(store, time.Minute, nil)))

	_, err := r.Retrieve(context.Background(), "acme", 5)
	require.Error(t, err)
	assert.Empty(t, store.data)

	got, err := r.Retrieve(context.Background(), "acme", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Len(t, store.data, 1)
}

func TestCacheSharedLookupSurvivesFirstCallerCancel(t *testing.T) {
	release := make(chan struct{})
	s := &scriptedSearcher{script: []func(context.Context) ([]index.Hit, error){
		func(ctx context.Context) ([]index.Hit, error) {
			select {
			case <-release:
				return ok("c1")(ctx)
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}}
	cfg := testConfig()
	cfg.Timeout = 5 * time.Second
	r := New(s, cfg, WithCache(NewCache(newMapStore(), time.Minute, nil)))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Retrieve(firstCtx, "acme", 5)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return s.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		got []company.Candidate
		err error
	}
	second := make(chan result, 1)
	go func() {
		got, err := r.Retrieve(context.Background(), "acme", 5)
		second <- result{got, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, apperrors.ErrRetrievalTimeout)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	require.Len(t, res.got, 1)
	assert.Equal(t, "c1", res.got[0].RecordID)
	assert.Equal(t, int32(1), s.calls.Load())
	assert.Equal(t, resilience.StateClosed, r.BreakerState())
}
