package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_StartStop(t *testing.T) {
	var r Runner
	var passes atomic.Int32

	err := r.Start(context.Background(), 0, func(ctx context.Context, tok *Token) time.Duration {
		passes.Add(1)
		return time.Millisecond
	})
	require.NoError(t, err)
	assert.True(t, r.Running())

	assert.Eventually(t, func() bool { return passes.Load() >= 3 }, time.Second, time.Millisecond)

	require.NoError(t, r.Stop())
	assert.False(t, r.Running())
	r.Wait()

	after := passes.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, passes.Load())
}

func TestRunner_DoubleStart(t *testing.T) {
	var r Runner
	block := func(ctx context.Context, tok *Token) time.Duration { return time.Hour }

	require.NoError(t, r.Start(context.Background(), time.Hour, block))
	assert.ErrorIs(t, r.Start(context.Background(), 0, block), ErrAlreadyRunning)

	require.NoError(t, r.Stop())
	r.Wait()
}

func TestRunner_StopWhenIdle(t *testing.T) {
	var r Runner
	assert.ErrorIs(t, r.Stop(), ErrNotRunning)

	require.NoError(t, r.Start(context.Background(), time.Hour, func(context.Context, *Token) time.Duration { return 0 }))
	require.NoError(t, r.Stop())
	assert.ErrorIs(t, r.Stop(), ErrNotRunning)
	r.Wait()
}

func TestRunner_StopWakesWarmup(t *testing.T) {
	var r Runner
	var ran atomic.Bool

	require.NoError(t, r.Start(context.Background(), time.Hour, func(context.Context, *Token) time.Duration {
		ran.Store(true)
		return 0
	}))
	require.NoError(t, r.Stop())

	done := make(chan struct{})
	go func() { r.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not return after stop")
	}
	assert.False(t, ran.Load())
}

func TestRunner_InFlightPassFinishes(t *testing.T) {
	var r Runner
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	require.NoError(t, r.Start(context.Background(), 0, func(ctx context.Context, tok *Token) time.Duration {
		close(entered)
		<-release
		// The pass sees the stop only when it checks.
		assert.True(t, tok.Stopped())
		finished.Store(true)
		return 0
	}))

	<-entered
	require.NoError(t, r.Stop())
	close(release)
	r.Wait()
	assert.True(t, finished.Load())
}

func TestRunner_RestartWaitsForPreviousPass(t *testing.T) {
	var r Runner
	entered := make(chan struct{})
	release := make(chan struct{})
	var active, overlap atomic.Int32

	first := func(ctx context.Context, tok *Token) time.Duration {
		active.Add(1)
		close(entered)
		<-release
		active.Add(-1)
		return 0
	}
	second := func(ctx context.Context, tok *Token) time.Duration {
		if active.Load() > 0 {
			overlap.Add(1)
		}
		return time.Hour
	}

	require.NoError(t, r.Start(context.Background(), 0, first))
	<-entered
	require.NoError(t, r.Stop())
	require.NoError(t, r.Start(context.Background(), 0, second))

	time.Sleep(5 * time.Millisecond)
	close(release)

	require.NoError(t, r.Stop())
	r.Wait()
	assert.Zero(t, overlap.Load())
}

func TestRunner_ContextCancelEndsRun(t *testing.T) {
	var r Runner
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, r.Start(ctx, time.Hour, func(context.Context, *Token) time.Duration { return 0 }))
	cancel()
	r.Wait()

	assert.False(t, r.Running())
	assert.ErrorIs(t, r.Stop(), ErrNotRunning)
}

func TestRunner_PanicIsRecovered(t *testing.T) {
	var r Runner
	var calls atomic.Int32

	require.NoError(t, r.Start(context.Background(), 0, func(context.Context, *Token) time.Duration {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return time.Millisecond
	}))

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, r.Stop())
	r.Wait()
}

func TestToken_Sleep(t *testing.T) {
	tok := newToken()
	assert.True(t, tok.Sleep(context.Background(), time.Millisecond))
	assert.True(t, tok.Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, tok.Sleep(ctx, time.Hour))

	tok.cancel()
	tok.cancel()
	assert.True(t, tok.Stopped())
	assert.False(t, tok.Sleep(context.Background(), time.Hour))
}
