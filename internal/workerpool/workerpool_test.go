package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsJobsConcurrentlyUpToLimit(t *testing.T) {
	p := New(context.Background(), 2)

	var running, maxRunning atomic.Int32
	for i := 0; i < 6; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) error {
			n := running.Add(1)
			for {
				cur := maxRunning.Load()
				if n <= cur || maxRunning.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		}))
	}
	require.NoError(t, p.Shutdown())
	require.LessOrEqual(t, maxRunning.Load(), int32(2))
}

func TestPoolRejectsSubmitAfterShutdown(t *testing.T) {
	p := New(context.Background(), 1)
	require.NoError(t, p.Submit(func(ctx context.Context) error { return nil }))
	require.NoError(t, p.Shutdown())

	err := p.Submit(func(ctx context.Context) error { return nil })
	require.True(t, errors.Is(err, ErrPoolShuttingDown))
}

func TestPoolShutdownWaitsForInFlightJob(t *testing.T) {
	p := New(context.Background(), 1)
	var finished atomic.Bool
	require.NoError(t, p.Submit(func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	}))
	require.NoError(t, p.Shutdown())
	require.True(t, finished.Load())
}
