package rpc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3link/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimiterRejectsInvalidSettings(t *testing.T) {
	_, err := rpc.NewLimiter(0, time.Second)
	assert.ErrorIs(t, err, rpc.ErrInvalidLimit)

	_, err = rpc.NewLimiter(5, 0)
	assert.ErrorIs(t, err, rpc.ErrInvalidLimit)
}

func TestLimiterBurstThenWaitsForWindow(t *testing.T) {
	const interval = 200 * time.Millisecond
	l, err := rpc.NewLimiter(3, interval)
	require.NoError(t, err)

	ctx := context.Background()
	start := time.Now()
	for range 3 {
		require.NoError(t, l.Consume(ctx))
	}
	assert.Less(t, time.Since(start), interval/2, "first N consumes must not wait")
	assert.Equal(t, 0, l.Available())

	require.NoError(t, l.Consume(ctx))
	assert.GreaterOrEqual(t, time.Since(start), interval-10*time.Millisecond, "N+1th consume waits for the window to roll over")
}

func TestLimiterRefillsToFullCapacity(t *testing.T) {
	l, err := rpc.NewLimiter(2, 50*time.Millisecond)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Consume(ctx))
	require.NoError(t, l.Consume(ctx))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 2, l.Available())
}

func TestLimiterConsumeHonoursContext(t *testing.T) {
	l, err := rpc.NewLimiter(1, time.Hour)
	require.NoError(t, err)
	require.NoError(t, l.Consume(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Consume(ctx), context.DeadlineExceeded)
}

func TestLimiterConcurrentCallers(t *testing.T) {
	const interval = 100 * time.Millisecond
	l, err := rpc.NewLimiter(2, interval)
	require.NoError(t, err)

	start := time.Now()
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Consume(context.Background()))
		}()
	}
	wg.Wait()

	// 5 tokens at 2 per window need three windows.
	assert.GreaterOrEqual(t, time.Since(start), 2*interval-10*time.Millisecond)
}

func TestParseLimiterMode(t *testing.T) {
	for in, want := range map[string]rpc.LimiterMode{
		"shared":  rpc.LimiterShared,
		"private": rpc.LimiterPrivate,
		"none":    rpc.LimiterNone,
		"":        rpc.LimiterShared,
	} {
		got, err := rpc.ParseLimiterMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := rpc.ParseLimiterMode("global")
	assert.Error(t, err)
}
