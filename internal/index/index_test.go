package index

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/resilience"
)

type countingConfigurer struct {
	calls   int
	applied []Settings
	err     error
}

func (c *countingConfigurer) ApplySettings(_ context.Context, s Settings) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	c.applied = append(c.applied, s)
	return nil
}

func TestSetupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := &countingConfigurer{}
	ledger := NewMemoryLedger()

	res, err := Setup(ctx, idx, ledger, "companies", DefaultSettings(1), nil)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	res, err = Setup(ctx, idx, ledger, "companies", DefaultSettings(1), nil)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, 1, idx.calls)

	applied, err := ledger.Applied(ctx, "companies")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(1).Fingerprint(), applied.Fingerprint)
}

func TestSetupVersionBump(t *testing.T) {
	ctx := context.Background()
	idx := &countingConfigurer{}
	ledger := NewMemoryLedger()

	_, err := Setup(ctx, idx, ledger, "companies", DefaultSettings(1), nil)
	require.NoError(t, err)

	next := DefaultSettings(2)
	next.FilterableAttributes = append(next.FilterableAttributes, "size_desc")
	res, err := Setup(ctx, idx, ledger, "companies", next, nil)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 1, res.PreviousVersion)
	assert.Equal(t, 2, idx.calls)
}

func TestSetupRejectsSilentChangeAndDowngrade(t *testing.T) {
	ctx := context.Background()
	idx := &countingConfigurer{}
	ledger := NewMemoryLedger()
	_, err := Setup(ctx, idx, ledger, "companies", DefaultSettings(2), nil)
	require.NoError(t, err)

	changed := DefaultSettings(2)
	changed.RankingRules = changed.RankingRules[:3]
	_, err = Setup(ctx, idx, ledger, "companies", changed, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	_, err = Setup(ctx, idx, ledger, "companies", DefaultSettings(1), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	assert.Equal(t, 1, idx.calls)
}

func TestSetupFailureIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	idx := &countingConfigurer{err: errors.New("boom")}
	ledger := NewMemoryLedger()
	_, err := Setup(ctx, idx, ledger, "companies", DefaultSettings(1), nil)
	require.Error(t, err)

	_, err = ledger.Applied(ctx, "companies")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFingerprintStable(t *testing.T) {
	assert.Equal(t, DefaultSettings(1).Fingerprint(), DefaultSettings(1).Fingerprint())
	assert.NotEqual(t, DefaultSettings(1).Fingerprint(), DefaultSettings(2).Fingerprint())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))

	err := Classify(fmt.Errorf("search: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, apperrors.ErrRetrievalTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = Classify(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED})
	assert.ErrorIs(t, err, apperrors.ErrRetrievalUnavailable)

	err = Classify(resilience.ErrCircuitOpen)
	assert.ErrorIs(t, err, apperrors.ErrRetrievalUnavailable)

	plain := errors.New("bad request")
	assert.Equal(t, plain, Classify(plain))
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(context.DeadlineExceeded))
	assert.True(t, Transient(syscall.ECONNRESET))
	assert.False(t, Transient(resilience.ErrCircuitOpen))
	assert.False(t, Transient(errors.New("bad request")))
}
