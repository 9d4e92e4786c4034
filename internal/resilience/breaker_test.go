package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }
	fail := errors.New("boom")

	require.NoError(t, b.Allow())
	b.Record(fail)
	assert.False(t, b.Open())

	require.NoError(t, b.Allow())
	b.Record(fail)
	assert.True(t, b.Open())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	// Cool-down elapsed: exactly one probe passes.
	now = now.Add(time.Minute)
	require.NoError(t, b.Allow())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	// Failed probe re-opens for another cool-down.
	b.Record(fail)
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	now = now.Add(time.Minute)
	require.NoError(t, b.Allow())
	b.Record(nil)
	assert.False(t, b.Open())
	assert.NoError(t, b.Allow())
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	b.Record(errors.New("one"))
	b.Record(nil)
	b.Record(errors.New("two"))
	assert.False(t, b.Open())
}

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(0, 0)
	assert.Equal(t, 5, b.threshold)
	assert.Equal(t, 30*time.Second, b.cooldown)
}

func TestBreaker_ReleaseFreesProbeWithoutCounting(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	b.Record(errors.New("boom"))
	require.True(t, b.Open())

	now = now.Add(time.Minute)
	require.NoError(t, b.Allow())
	b.Release()
	assert.True(t, b.Open())
	assert.NoError(t, b.Allow(), "a released probe lets the next call through")
}
