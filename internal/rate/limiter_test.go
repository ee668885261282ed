package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BurstThenBlocked(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		assert.True(t, lim.Allow(), "burst token %d should be available", i)
	}
	assert.False(t, lim.Allow(), "bucket exhausted after burst")
}

func TestLimiter_Refills(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 100, Burst: 1})

	require.True(t, lim.Allow())
	require.False(t, lim.Allow())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, lim.Allow(), "token refilled after waiting")
}

func TestLimiter_WaitRespectsContext(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 1, Burst: 1})
	require.True(t, lim.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := lim.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_PerClubLimiters(t *testing.T) {
	m := NewManager(Config{RequestsPerSecond: 1, Burst: 1})

	a := m.GetLimiter("club-a")
	b := m.GetLimiter("club-b")
	assert.NotSame(t, a, b)
	assert.Same(t, a, m.GetLimiter("club-a"))

	// Exhausting club-a must not affect club-b.
	require.True(t, a.Allow())
	require.False(t, a.Allow())
	assert.True(t, b.Allow())
}
