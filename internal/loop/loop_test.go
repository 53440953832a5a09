// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startLoop runs l on its own goroutine and stops it when the test ends.
func startLoop(t *testing.T, name string) *Loop {
	t.Helper()
	l := New(name, nil)
	go func() { _ = l.Run(context.Background()) }()
	t.Cleanup(func() {
		l.Stop()
		require.True(t, l.Wait(5*time.Second), "loop did not stop")
	})
	return l
}

func TestLoop_SubmitRunsInOrder(t *testing.T) {
	l := startLoop(t, "order")

	var (
		mu  sync.Mutex
		got []int
	)
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		require.NoError(t, l.Submit(func(ctx context.Context) {
			defer wg.Done()
			assert.True(t, l.Owns(ctx))
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestLoop_OwnsOnlyInsideLoopWork(t *testing.T) {
	l := startLoop(t, "owns")
	other := New("other", nil)

	assert.False(t, l.Owns(context.Background()))

	res := make(chan [2]bool, 1)
	require.NoError(t, l.Submit(func(ctx context.Context) {
		res <- [2]bool{l.Owns(ctx), other.Owns(ctx)}
	}))
	got := <-res
	assert.True(t, got[0])
	assert.False(t, got[1])
}

func TestLoop_CallSoonRequiresLoop(t *testing.T) {
	l := startLoop(t, "callsoon")

	err := l.CallSoon(context.Background(), func(context.Context) {})
	assert.ErrorIs(t, err, ErrNotOnLoop)

	ran := make(chan struct{})
	require.NoError(t, l.Submit(func(ctx context.Context) {
		assert.NoError(t, l.CallSoon(ctx, func(context.Context) { close(ran) }))
	}))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("fast path task never ran")
	}
}

func TestLoop_RunTwice(t *testing.T) {
	l := startLoop(t, "twice")

	// Wait for the first Run to be active.
	done := make(chan struct{})
	require.NoError(t, l.Submit(func(context.Context) { close(done) }))
	<-done

	assert.ErrorIs(t, l.Run(context.Background()), ErrRunning)
}

func TestLoop_PanicDoesNotKillLoop(t *testing.T) {
	l := startLoop(t, "panic")

	require.NoError(t, l.Submit(func(context.Context) { panic("boom") }))

	ran := make(chan struct{})
	require.NoError(t, l.Submit(func(context.Context) { close(ran) }))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("loop died after panic")
	}
}

func TestLoop_SubmitAfterClose(t *testing.T) {
	l := New("closed", nil)
	l.Close()

	assert.ErrorIs(t, l.Submit(func(context.Context) {}), ErrClosed)
	assert.ErrorIs(t, l.Run(context.Background()), ErrClosed)

	fut := Start(context.Background(), l, func(context.Context) (int, error) { return 1, nil })
	_, err := fut.Result()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStart_ReturnsResult(t *testing.T) {
	l := startLoop(t, "start")

	fut := Start(context.Background(), l, func(ctx context.Context) (string, error) {
		if !l.Owns(ctx) {
			return "", errors.New("not on loop")
		}
		return "ok", nil
	})

	v, err := fut.Result()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestStart_RecoversPanic(t *testing.T) {
	l := startLoop(t, "copanic")

	fut := Start(context.Background(), l, func(context.Context) (int, error) {
		panic("bad")
	})
	_, err := fut.Result()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestAwait_InterleavesCoroutines(t *testing.T) {
	l := startLoop(t, "interleave")

	release := make(chan struct{})
	var order []string // loop-confined

	first := Start(context.Background(), l, func(ctx context.Context) (struct{}, error) {
		order = append(order, "first:start")
		_, err := Await(ctx, func() (struct{}, error) {
			<-release
			return struct{}{}, nil
		})
		order = append(order, "first:end")
		return struct{}{}, err
	})

	second := Start(context.Background(), l, func(ctx context.Context) (struct{}, error) {
		order = append(order, "second")
		close(release)
		return struct{}{}, nil
	})

	_, err := second.Result()
	require.NoError(t, err)
	_, err = first.Result()
	require.NoError(t, err)

	got := Start(context.Background(), l, func(context.Context) ([]string, error) {
		return append([]string(nil), order...), nil
	})
	v, err := got.Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"first:start", "second", "first:end"}, v)
}

func TestAwait_ReleasesOwnership(t *testing.T) {
	l := startLoop(t, "release")

	fut := Start(context.Background(), l, func(ctx context.Context) ([2]bool, error) {
		inside, _ := Await(ctx, func() (bool, error) { return l.Owns(ctx), nil })
		return [2]bool{inside, l.Owns(ctx)}, nil
	})
	v, err := fut.Result()
	require.NoError(t, err)
	assert.False(t, v[0], "ownership held during Await")
	assert.True(t, v[1], "ownership not restored after Await")
}

func TestStart_NestedFastPath(t *testing.T) {
	l := startLoop(t, "nested")

	outer := Start(context.Background(), l, func(ctx context.Context) (int, error) {
		inner := Start(ctx, l, func(context.Context) (int, error) { return 21, nil })
		v, err := AwaitFuture(ctx, inner)
		return v * 2, err
	})
	v, err := outer.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestStart_FromGoroutineSharingLoopContext(t *testing.T) {
	l := startLoop(t, "shared")
	const n = 50

	var ran sync.WaitGroup
	ran.Add(2 * n)
	outer := Start(context.Background(), l, func(ctx context.Context) (struct{}, error) {
		spawned := make(chan struct{})
		go func() {
			defer close(spawned)
			for range n {
				Start(ctx, l, func(context.Context) (struct{}, error) {
					ran.Done()
					return struct{}{}, nil
				})
			}
		}()
		for range n {
			assert.NoError(t, l.CallSoon(ctx, func(context.Context) { ran.Done() }))
		}
		<-spawned
		return struct{}{}, nil
	})
	_, err := outer.Result()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		ran.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("work scheduled from a shared loop context was lost")
	}
}

func TestFuture_CancelCancelsContext(t *testing.T) {
	l := startLoop(t, "cancel")

	started := make(chan struct{})
	fut := Start(context.Background(), l, func(ctx context.Context) (int, error) {
		return Await(ctx, func() (int, error) {
			close(started)
			<-ctx.Done()
			return 0, ctx.Err()
		})
	})
	<-started

	assert.True(t, fut.Cancel())
	assert.False(t, fut.Cancel())
	assert.True(t, fut.Cancelled())

	_, err := fut.Result()
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestLoop_StopAbandonsAwaitingCoroutine(t *testing.T) {
	l := New("abandon", nil)
	go func() { _ = l.Run(context.Background()) }()

	block := make(chan struct{})
	entered := make(chan struct{})
	fut := Start(context.Background(), l, func(ctx context.Context) (int, error) {
		return Await(ctx, func() (int, error) {
			close(entered)
			<-block
			return 1, nil
		})
	})
	<-entered

	l.Stop()
	require.True(t, l.Wait(time.Second))
	close(block)

	_, err := fut.Result()
	assert.ErrorIs(t, err, ErrClosed)
}
