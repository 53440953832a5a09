// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package loop

import (
	"context"
	"fmt"
	"sync"
)

type coroutine struct {
	loop      *Loop
	tok       *token
	resume    chan struct{}
	yield     chan struct{}
	abort     chan struct{}
	abortOnce sync.Once
}

func (co *coroutine) step() task {
	return task{
		run: func() {
			co.resume <- struct{}{}
			<-co.yield
		},
		abandon: func() {
			co.abortOnce.Do(func() { close(co.abort) })
		},
	}
}

// release gives the loop back if the coroutine still holds it.
func (co *coroutine) release() {
	if co.tok.held.CompareAndSwap(true, false) {
		co.yield <- struct{}{}
	}
}

// Start schedules fn as a coroutine on l and returns its future. It may be
// called from any goroutine, including code running on l.
//
// fn receives a context derived from ctx that owns l while fn executes.
// Cancelling the future cancels that context.
func Start[T any](ctx context.Context, l *Loop, fn func(ctx context.Context) (T, error)) *Future[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	fut := NewFuture[T]()

	tok := &token{loop: l}
	co := &coroutine{
		loop:   l,
		tok:    tok,
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
		abort:  make(chan struct{}),
	}
	tok.co = co

	coCtx, cancel := context.WithCancel(ctx)
	coCtx = context.WithValue(coCtx, ctxKey{}, tok)
	fut.bindCancel(cancel)

	go func() {
		select {
		case <-co.resume:
		case <-co.abort:
			fut.Resolve(*new(T), ErrClosed)
			return
		}
		tok.held.Store(true)

		v, err := protect(coCtx, fn)
		fut.Resolve(v, err)
		co.release()
	}()

	if err := l.submit(co.step()); err != nil {
		fut.Resolve(*new(T), err)
	}
	return fut
}

func protect[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loop: coroutine panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Await runs fn with the loop released, so other work on the loop proceeds
// while fn blocks, then reacquires the loop before returning. Outside a
// coroutine Await simply calls fn.
//
// If the loop shuts down while fn runs, Await returns ErrClosed and the
// caller no longer holds the loop.
func Await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	tok := tokenFrom(ctx)
	if tok == nil || tok.co == nil || !tok.held.Load() {
		return fn()
	}
	co := tok.co

	co.release()
	v, err := fn()

	_ = co.loop.submit(co.step())
	select {
	case <-co.resume:
		tok.held.Store(true)
		return v, err
	case <-co.abort:
		var zero T
		return zero, ErrClosed
	}
}

// AwaitFuture waits for f from a coroutine without blocking its loop. The
// wait ends early with ctx.Err() if ctx is cancelled.
func AwaitFuture[T any](ctx context.Context, f *Future[T]) (T, error) {
	return Await(ctx, func() (T, error) {
		return f.Wait(ctx)
	})
}

// AwaitPending is AwaitFuture for a type-erased Pending.
func AwaitPending(ctx context.Context, p Pending) (any, error) {
	return Await(ctx, func() (any, error) {
		select {
		case <-p.Done():
			return p.Outcome()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}
