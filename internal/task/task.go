// Package task runs long-lived network loops on their own goroutine and hands
// the owner a handle that is polled once per tick.
//
// A task talks to its owner through two bounded channels: outbound items
// (decoded packets, host lists) and inbound requests. Sends never block; a
// full outbound channel drops the newest item. The owner ends a task by
// cancelling it and detects a task that ended on its own through Finished.
package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultOutBuffer is the outbound channel capacity.
	DefaultOutBuffer = 16
	// DefaultRequestBuffer is the request channel capacity.
	DefaultRequestBuffer = 8

	fullWarnInterval = 5 * time.Second
)

// Options configures a spawned task.
type Options struct {
	Name          string
	OutBuffer     int
	RequestBuffer int
	Log           zerolog.Logger
}

// Func is the body of a task. It returns when ctx is cancelled, when out
// reports the owner is gone, or on a fatal error.
type Func[T, R any] func(ctx context.Context, out *Sender[T], requests <-chan R) error

// Handle is the owner side of a running task.
type Handle[T, R any] struct {
	name     string
	out      <-chan T
	requests chan<- R
	cancel   context.CancelFunc
	done     chan struct{}
	finished atomic.Bool

	mu  sync.Mutex
	err error
}

// Spawn starts fn on a new goroutine.
func Spawn[T, R any](ctx context.Context, opts Options, fn Func[T, R]) *Handle[T, R] {
	if opts.OutBuffer <= 0 {
		opts.OutBuffer = DefaultOutBuffer
	}
	if opts.RequestBuffer <= 0 {
		opts.RequestBuffer = DefaultRequestBuffer
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan T, opts.OutBuffer)
	requests := make(chan R, opts.RequestBuffer)

	h := &Handle[T, R]{
		name:     opts.Name,
		out:      out,
		requests: requests,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	log := opts.Log.With().Str("task", opts.Name).Logger()
	sender := &Sender[T]{ctx: ctx, ch: out, log: log, limiter: NewWarnLimiter(1, fullWarnInterval)}

	go func() {
		defer close(h.done)
		defer cancel()

		err := fn(ctx, sender, requests)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Task failed")
		} else {
			log.Debug().Msg("Task stopped")
		}

		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		h.finished.Store(true)
	}()

	return h
}

// Name returns the task name.
func (h *Handle[T, R]) Name() string {
	return h.name
}

// TryRecv returns the next outbound item without blocking.
func (h *Handle[T, R]) TryRecv() (T, bool) {
	select {
	case v := <-h.out:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Request queues a request for the task without blocking. It reports false
// when the request channel is full or the task has finished.
func (h *Handle[T, R]) Request(r R) bool {
	if h.finished.Load() {
		return false
	}
	select {
	case h.requests <- r:
		return true
	default:
		return false
	}
}

// Finished reports whether the task body has returned.
func (h *Handle[T, R]) Finished() bool {
	return h.finished.Load()
}

// Err returns the error the task ended with, if any.
func (h *Handle[T, R]) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Close cancels the task. It does not wait for it to return.
func (h *Handle[T, R]) Close() {
	h.cancel()
}

// Wait blocks until the task returns or ctx is done.
func (h *Handle[T, R]) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sender is the task side of the outbound channel.
type Sender[T any] struct {
	ctx     context.Context
	ch      chan<- T
	log     zerolog.Logger
	limiter *WarnLimiter
	dropped int
}

// TrySend queues v without blocking. A full channel drops v and logs a
// warning at most every few seconds. It returns false once the owner
// cancelled the task.
func (s *Sender[T]) TrySend(v T) bool {
	if s.ctx.Err() != nil {
		return false
	}

	select {
	case s.ch <- v:
		return true
	default:
	}

	s.dropped++
	if s.limiter.Allow("full") {
		s.log.Warn().Int("dropped", s.dropped).Msg("Outbound channel full, dropping newest message")
		s.dropped = 0
	}
	return true
}
