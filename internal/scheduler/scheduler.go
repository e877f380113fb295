// Package scheduler runs named periodic tasks that never overlap themselves.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Func is the body of a task.
type Func func(ctx context.Context) error

// Task is a ticker driven job with a re-entrancy guard: a tick arriving while the
// previous run is still busy is skipped.
type Task struct {
	name      string
	interval  time.Duration
	immediate bool
	fn        Func

	running  atomic.Bool
	skipped  atomic.Int64
	inflight sync.WaitGroup

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Task.
type Option func(*Task)

// RunImmediately also runs the task once right after Start.
func RunImmediately() Option {
	return func(t *Task) { t.immediate = true }
}

// New creates a task.
func New(name string, interval time.Duration, fn Func, opts ...Option) *Task {
	t := &Task{name: name, interval: interval, fn: fn}
	for _, o := range opts {
		o(t)
	}

	return t
}

// Name of the task.
func (t *Task) Name() string { return t.name }

// Skipped counts ticks dropped because a run was still in progress.
func (t *Task) Skipped() int64 { return t.skipped.Load() }

// Busy reports whether a run is in progress.
func (t *Task) Busy() bool { return t.running.Load() }

// RunOnce runs the task unless it is already running. It reports whether it ran.
func (t *Task) RunOnce(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	if !t.running.CompareAndSwap(false, true) {
		t.skipped.Add(1)
		log.Debug().Str("task", t.name).Msg("previous run still busy, tick skipped")

		return false
	}

	defer t.running.Store(false)

	if err := t.fn(ctx); err != nil {
		log.Error().Err(err).Str("task", t.name).Msg("task run failed")
	}

	return true
}

// Start launches the ticker goroutine.
func (t *Task) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)

		log.Info().Str("task", t.name).Dur("interval", t.interval).Msg("task started")

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		if t.immediate {
			t.spawn(ctx)
		}

		for {
			select {
			case <-ctx.Done():
				log.Info().Str("task", t.name).Msg("task stopped")

				return
			case <-ticker.C:
				// run off the ticker goroutine so a slow run shows up as skipped ticks
				t.spawn(ctx)
			}
		}
	}()
}

// Stop cancels the ticker and waits for the loop to exit. A run in flight sees its context cancelled.
func (t *Task) Stop() {
	if t.cancel != nil {
		t.cancel()
	}

	if t.done != nil {
		<-t.done
	}

	t.inflight.Wait()
}

func (t *Task) spawn(ctx context.Context) {
	t.inflight.Add(1)

	go func() {
		defer t.inflight.Done()

		t.RunOnce(ctx)
	}()
}

// Sleep waits d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
