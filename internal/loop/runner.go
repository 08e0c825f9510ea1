// Package loop runs an automation as repeated passes on one goroutine with
// cooperative cancellation.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Start on a running Runner.
	ErrAlreadyRunning = errors.New("already running")
	// ErrNotRunning is returned by Stop on an idle Runner.
	ErrNotRunning = errors.New("not running")
)

// PassFunc runs one pass and returns the delay before the next one. It should
// check tok.Stopped between units of work and use tok.Sleep for pauses that
// a stop may cut short.
type PassFunc func(ctx context.Context, tok *Token) time.Duration

// Token is the cancellation token of one run.
type Token struct {
	stop chan struct{}
	once sync.Once
}

func newToken() *Token {
	return &Token{stop: make(chan struct{})}
}

// Stopped reports whether the run was stopped.
func (t *Token) Stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

// Done is closed when the run is stopped.
func (t *Token) Done() <-chan struct{} {
	return t.stop
}

// Sleep waits for d. It returns false if the run was stopped or ctx ended
// first.
func (t *Token) Sleep(ctx context.Context, d time.Duration) bool {
	if t.Stopped() || ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (t *Token) cancel() {
	t.once.Do(func() { close(t.stop) })
}

// Runner schedules passes. Only one run is active at a time, and a run
// started right after a stop waits for the previous pass to return before
// its own first pass.
type Runner struct {
	Name   string
	Logger *slog.Logger

	mu      sync.Mutex
	running bool
	tok     *Token
	done    chan struct{}
}

// Start schedules fn after warmup and then repeatedly. The passes run on
// their own goroutine; Start returns immediately.
func (r *Runner) Start(ctx context.Context, warmup time.Duration, fn PassFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyRunning
	}

	tok := newToken()
	prev := r.done
	done := make(chan struct{})
	r.running = true
	r.tok = tok
	r.done = done

	go r.run(ctx, tok, prev, done, warmup, fn)
	return nil
}

func (r *Runner) run(ctx context.Context, tok *Token, prev, done chan struct{}, warmup time.Duration, fn PassFunc) {
	defer close(done)
	defer r.finish(tok)

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	if !tok.Sleep(ctx, warmup) {
		return
	}
	for {
		delay := r.pass(ctx, tok, fn, warmup)
		if tok.Stopped() {
			return
		}
		if !tok.Sleep(ctx, delay) {
			return
		}
	}
}

func (r *Runner) pass(ctx context.Context, tok *Token, fn PassFunc, fallback time.Duration) (delay time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger().Error("pass panicked", "runner", r.Name, "panic", rec)
			delay = fallback
		}
	}()
	return fn(ctx, tok)
}

// finish clears the running flag when the run ends by itself, e.g. because
// ctx was cancelled.
func (r *Runner) finish(tok *Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tok == tok {
		r.running = false
	}
}

// Stop flips the running flag and wakes the run if it is sleeping. A pass in
// flight keeps going until it next checks its token.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return ErrNotRunning
	}
	r.running = false
	r.tok.cancel()
	return nil
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Wait blocks until the latest run has returned.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
