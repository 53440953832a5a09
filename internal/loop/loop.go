// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

// Package loop provides a cooperative scheduler bound to a single goroutine.
//
// A Loop runs queued tasks one at a time. Coroutines started with Start are
// goroutines that only execute while they hold the loop, and give it back at
// every Await. At most one task or coroutine body runs on a loop at any
// moment, so state confined to a loop needs no further locking.
//
// Whether code is running on a loop is carried by the context handed to
// tasks and coroutines; see Loop.Owns.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrClosed is returned for work submitted to, or abandoned by, a loop
	// that has shut down.
	ErrClosed = errors.New("loop: closed")

	// ErrCancelled resolves futures that were cancelled.
	ErrCancelled = errors.New("loop: cancelled")

	// ErrRunning is returned when Run is called on a loop that is already running.
	ErrRunning = errors.New("loop: already running")

	// ErrNotOnLoop is returned by CallSoon when the caller does not own the loop.
	ErrNotOnLoop = errors.New("loop: caller is not running on the loop")
)

// Task is a unit of work run on the loop goroutine. ctx owns the loop for
// the duration of the call.
type Task func(ctx context.Context)

type task struct {
	run     func()
	abandon func()
}

type ctxKey struct{}

// token marks a context as belonging to a loop. held is true only while the
// holder is actually executing on the loop.
type token struct {
	loop *Loop
	co   *coroutine
	held atomic.Bool
}

func tokenFrom(ctx context.Context) *token {
	if ctx == nil {
		return nil
	}
	tok, _ := ctx.Value(ctxKey{}).(*token)
	return tok
}

// Loop is a single-goroutine task queue.
type Loop struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	ingress []task
	closed  bool
	wake    chan struct{}

	// ready is only touched by the goroutine executing Run.
	ready    []task
	stopping bool

	running   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a loop. It does nothing until Run is called.
func New(name string, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		name:   name,
		logger: logger.With("loop", name),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Name returns the loop name.
func (l *Loop) Name() string { return l.name }

// Running reports whether Run is executing.
func (l *Loop) Running() bool { return l.running.Load() }

// Done is closed once the loop has shut down.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Owns reports whether ctx belongs to code currently executing on l.
//
// The check follows the context, not the goroutine: a goroutine started by a
// task that reuses the task's ctx also passes it while the task runs. Owns
// therefore gates behavior but never grants unsynchronized access to loop
// state.
func (l *Loop) Owns(ctx context.Context) bool {
	tok := tokenFrom(ctx)
	return tok != nil && tok.loop == l && tok.held.Load()
}

// Run executes tasks on the calling goroutine until Stop is processed or ctx
// ends. Tasks still queued at that point are abandoned.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		l.running.Store(false)
		return ErrClosed
	}
	defer func() {
		l.running.Store(false)
		l.shutdown()
	}()

	l.logger.Debug("loop started")
	for {
		l.mu.Lock()
		l.ready = append(l.ready, l.ingress...)
		l.ingress = nil
		l.mu.Unlock()

		if len(l.ready) == 0 {
			select {
			case <-l.wake:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		// Run the current batch, then pick up new submissions.
		batch := len(l.ready)
		for i := 0; i < batch && len(l.ready) > 0; i++ {
			t := l.ready[0]
			l.ready[0] = task{}
			l.ready = l.ready[1:]
			l.exec(t)
			if l.stopping {
				l.logger.Debug("loop stopped")
				return nil
			}
		}
	}
}

func (l *Loop) exec(t task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked", "panic", fmt.Sprint(r))
		}
	}()
	t.run()
}

// Submit queues a task from any goroutine. It fails with ErrClosed once the
// loop has shut down.
func (l *Loop) Submit(fn Task) error {
	if fn == nil {
		return errors.New("loop: nil task")
	}
	return l.submit(l.plain(fn))
}

func (l *Loop) submit(t task) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		if t.abandon != nil {
			t.abandon()
		}
		return ErrClosed
	}
	l.ingress = append(l.ingress, t)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// CallSoon queues a task from code already running on the loop. ctx must be
// owned by l. The task runs after the current batch.
func (l *Loop) CallSoon(ctx context.Context, fn Task) error {
	if fn == nil {
		return errors.New("loop: nil task")
	}
	if !l.Owns(ctx) {
		return ErrNotOnLoop
	}
	return l.submit(l.plain(fn))
}

func (l *Loop) plain(fn Task) task {
	return task{run: func() {
		tok := &token{loop: l}
		tok.held.Store(true)
		defer tok.held.Store(false)
		fn(context.WithValue(context.Background(), ctxKey{}, tok))
	}}
}

// Stop asks the loop to return from Run once the tasks queued before it have
// run. It is safe to call from any goroutine, including the loop itself.
func (l *Loop) Stop() {
	_ = l.submit(task{run: func() { l.stopping = true }})
}

// Close stops a running loop, or shuts down one that never ran, abandoning
// its queued tasks.
func (l *Loop) Close() {
	if l.running.Load() {
		l.Stop()
		return
	}
	l.shutdown()
}

// Wait blocks until the loop has shut down or timeout elapses. It reports
// whether the loop shut down.
func (l *Loop) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-l.done:
		return true
	case <-t.C:
		return false
	}
}

func (l *Loop) shutdown() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		pending := append(l.ready, l.ingress...)
		l.ready, l.ingress = nil, nil
		l.mu.Unlock()

		for _, t := range pending {
			if t.abandon != nil {
				t.abandon()
			}
		}
		close(l.done)
	})
}
