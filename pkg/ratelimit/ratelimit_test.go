package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(l *Limiter, start time.Time) *time.Time {
	now := start
	l.now = func() time.Time { return now }
	return &now
}

func TestAllowExhaustsAndRefills(t *testing.T) {
	l := New(3, time.Second)
	defer l.Stop()
	now := fixedClock(l, time.Unix(1000, 0))

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")
	assert.Greater(t, l.RetryAfter("a"), time.Duration(0))

	*now = now.Add(400 * time.Millisecond)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestAllowNCapsCostAtBucketSize(t *testing.T) {
	l := New(10, time.Minute)
	defer l.Stop()
	now := fixedClock(l, time.Unix(1000, 0))

	assert.True(t, l.AllowN("a", 500), "oversized request admitted into a full bucket")
	assert.False(t, l.AllowN("a", 2))

	*now = now.Add(time.Minute)
	assert.True(t, l.AllowN("a", 4))
	assert.True(t, l.AllowN("a", 6))
	assert.False(t, l.Allow("a"))
}

func TestStopIsIdempotent(t *testing.T) {
	l := New(1, time.Second)
	l.Stop()
	l.Stop()
}
