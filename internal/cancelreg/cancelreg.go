// Package cancelreg tracks long running per-key operations and lets them be stopped.
package cancelreg

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrAlreadyRunning is returned when an operation for the key is in progress.
var ErrAlreadyRunning = errors.New("operation already running")

// Token is handed to the running operation, which polls Stopped at its checkpoints.
type Token struct {
	key     string
	ctx     context.Context //nolint:containedctx
	cancel  context.CancelFunc
	stopped atomic.Bool
}

// Context is cancelled when the token is stopped or the parent context ends.
// Use it for waits between units of work, never for the work itself: Stop must not
// interrupt a unit in flight.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Stopped reports whether a stop was requested.
func (t *Token) Stopped() bool {
	return t.stopped.Load() || t.ctx.Err() != nil
}

func (t *Token) stop() {
	t.stopped.Store(true)
	t.cancel()
}

// Registry holds at most one token per key.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{tokens: make(map[string]*Token)}
}

// Start registers key; Release must be called when the operation ends.
func (r *Registry) Start(ctx context.Context, key string) (*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[key]; ok {
		return nil, ErrAlreadyRunning
	}

	cctx, cancel := context.WithCancel(ctx)
	t := &Token{key: key, ctx: cctx, cancel: cancel}
	r.tokens[key] = t

	return t, nil
}

// Release removes the token if it is still the registered one.
func (r *Registry) Release(t *Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.tokens[t.key]; ok && cur == t {
		delete(r.tokens, t.key)
	}

	t.cancel()
}

// Stop requests the operation for key to stop. It reports whether one was running.
func (r *Registry) Stop(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[key]
	if ok {
		t.stop()
	}

	return ok
}

// StopAll requests every running operation to stop.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tokens {
		t.stop()
	}
}

// Running reports whether an operation for key is registered.
func (r *Registry) Running(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.tokens[key]

	return ok
}

// Keys lists the running keys in order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.tokens))
	for k := range r.tokens {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
