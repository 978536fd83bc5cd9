package resilience

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunNow(t *testing.T) {
	scheduler := NewScheduler()

	var runs atomic.Int32
	require.NoError(t, scheduler.Register("sweep", time.Hour, func(ctx context.Context) {
		runs.Add(1)
	}))

	require.NoError(t, scheduler.RunNow("sweep"))
	require.NoError(t, scheduler.RunNow("sweep"))
	assert.Equal(t, int32(2), runs.Load())
}

func TestScheduler_RunNowUnknownTask(t *testing.T) {
	scheduler := NewScheduler()
	err := scheduler.RunNow("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestScheduler_RegisterValidation(t *testing.T) {
	scheduler := NewScheduler()

	require.NoError(t, scheduler.Register("sweep", time.Minute, func(ctx context.Context) {}))
	assert.Error(t, scheduler.Register("sweep", time.Minute, func(ctx context.Context) {}), "duplicate name")
	assert.Error(t, scheduler.Register("bad", 0, func(ctx context.Context) {}), "non-positive interval")
}

func TestScheduler_RegisterWhileRunningFails(t *testing.T) {
	scheduler := NewScheduler()
	require.NoError(t, scheduler.Register("sweep", time.Hour, func(ctx context.Context) {}))

	scheduler.Start()
	defer scheduler.Stop()

	assert.Error(t, scheduler.Register("late", time.Minute, func(ctx context.Context) {}))
}

func TestScheduler_PeriodicExecution(t *testing.T) {
	scheduler := NewScheduler()

	var runs atomic.Int32
	require.NoError(t, scheduler.Register("tick", 10*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	}))

	scheduler.Start()
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_StopCancelsTasks(t *testing.T) {
	scheduler := NewScheduler()

	started := make(chan struct{})
	var sawCancel atomic.Bool
	require.NoError(t, scheduler.Register("blocking", 5*time.Millisecond, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			sawCancel.Store(true)
		case <-time.After(time.Second):
		}
	}))

	scheduler.Start()
	<-started
	scheduler.Stop()

	assert.True(t, sawCancel.Load(), "Stop should cancel in-flight task contexts")
}

func TestScheduler_PanicContained(t *testing.T) {
	scheduler := NewScheduler()

	var healthyRuns atomic.Int32
	require.NoError(t, scheduler.Register("panicky", 5*time.Millisecond, func(ctx context.Context) {
		panic("boom")
	}))
	require.NoError(t, scheduler.Register("healthy", 5*time.Millisecond, func(ctx context.Context) {
		healthyRuns.Add(1)
	}))

	scheduler.Start()
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		return healthyRuns.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	// And RunNow on the panicking task does not propagate
	assert.NotPanics(t, func() {
		_ = scheduler.RunNow("panicky")
	})
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	scheduler := NewScheduler()
	require.NoError(t, scheduler.Register("sweep", time.Hour, func(ctx context.Context) {}))

	scheduler.Start()
	scheduler.Stop()
	assert.NotPanics(t, scheduler.Stop)
}
