package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterBlocksOverLimit(t *testing.T) {
	l := NewMemoryLimiter(time.Minute, 60)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		ok, err := l.Allow(ctx, "1:127.0.0.1")
		require.NoError(t, err)
		require.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, err := l.Allow(ctx, "1:127.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok, "61st request inside the window must be rejected")
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(time.Minute, 1)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "1:10.0.0.1")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "1:10.0.0.1")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "2:10.0.0.1")
	assert.True(t, ok, "a different user must not share the window")
}

func TestMemoryLimiterWindowSlides(t *testing.T) {
	l := NewMemoryLimiter(time.Minute, 2)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "k")
	require.True(t, ok)
	ok, _ = l.Allow(ctx, "k")
	require.True(t, ok)
	ok, _ = l.Allow(ctx, "k")
	require.False(t, ok)

	// once the first events fall out of the window, capacity frees up
	current = current.Add(61 * time.Second)
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
}
