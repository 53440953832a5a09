// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package loop

import (
	"context"
	"sync"
)

// Pending is the type-erased view of a Future, used by code that tracks or
// awaits work without knowing its result type.
type Pending interface {
	Done() <-chan struct{}
	Outcome() (any, error)
	Cancel() bool
	AfterDone(fn func())
}

// Future is a handle to the eventual result of scheduled work. It is resolved
// at most once; later resolutions are ignored.
type Future[T any] struct {
	done chan struct{}

	mu        sync.Mutex
	resolved  bool
	cancelled bool
	val       T
	err       error
	cancel    context.CancelFunc
	callbacks []func(T, error)
}

// NewFuture returns an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that is already resolved with v and err.
func Resolved[T any](v T, err error) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v, err)
	return f
}

// Failed returns a future already resolved with err.
func Failed[T any](err error) *Future[T] {
	var zero T
	return Resolved(zero, err)
}

// Resolve sets the outcome. It reports false if the future was already
// resolved or cancelled. Done callbacks run on the calling goroutine.
func (f *Future[T]) Resolve(v T, err error) bool {
	return f.resolve(v, err, false)
}

func (f *Future[T]) resolve(v T, err error, cancelled bool) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}
	f.resolved = true
	f.cancelled = cancelled
	f.val, f.err = v, err
	callbacks := f.callbacks
	f.callbacks = nil
	cancel := f.cancel
	f.mu.Unlock()

	close(f.done)
	if cancel != nil {
		cancel()
	}
	for _, cb := range callbacks {
		cb(v, err)
	}
	return true
}

// Cancel resolves the future with ErrCancelled and cancels the context of the
// work behind it. It reports false if the future was already resolved.
func (f *Future[T]) Cancel() bool {
	var zero T
	return f.resolve(zero, ErrCancelled, true)
}

// Cancelled reports whether the future was resolved by Cancel.
func (f *Future[T]) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// Done returns a channel closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future is resolved.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result blocks until the future is resolved and returns its outcome.
//
// Never call Result from a coroutine on the loop that resolves this future;
// use Await instead.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

// Wait is Result bounded by ctx. It returns ctx.Err() if ctx ends first; the
// future itself is left untouched.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Outcome implements Pending.
func (f *Future[T]) Outcome() (any, error) {
	v, err := f.Result()
	return v, err
}

// OnDone registers cb to run with the outcome. If the future is already
// resolved cb runs immediately on the calling goroutine.
func (f *Future[T]) OnDone(cb func(T, error)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	v, err := f.val, f.err
	f.mu.Unlock()
	cb(v, err)
}

// AfterDone implements Pending. fn runs once the future is resolved.
func (f *Future[T]) AfterDone(fn func()) {
	f.OnDone(func(T, error) { fn() })
}

func (f *Future[T]) bindCancel(cancel context.CancelFunc) {
	f.mu.Lock()
	resolved := f.resolved
	if !resolved {
		f.cancel = cancel
	}
	f.mu.Unlock()
	if resolved {
		cancel()
	}
}
