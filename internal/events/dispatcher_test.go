// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package events

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/connection"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/logging"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/loop"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/observability"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/proxytest"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/errutil"
	cybervectorv1 "github.com/cyb3rdog/escapepod-sdk-go/pkg/proto/cybervector/v1"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// collector records events in arrival order.
type collector struct {
	mu  sync.Mutex
	got []Event
	ch  chan Event
}

func newCollector() *collector {
	return &collector{ch: make(chan Event, 32)}
}

func (c *collector) HandleEvent(_ context.Context, e Event) error {
	c.mu.Lock()
	c.got = append(c.got, e)
	c.mu.Unlock()
	c.ch <- e
	return nil
}

func (c *collector) next(t *testing.T) Event {
	t.Helper()
	select {
	case e := <-c.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

type fixture struct {
	srv  *proxytest.Server
	conn *connection.Connection
	d    *Dispatcher
}

func setup(t *testing.T, cfg Config) *fixture {
	t.Helper()
	srv := proxytest.New()
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	conn := connection.New(connection.Config{Address: srv.Addr(), Logger: logging.Discard()})
	require.NoError(t, conn.Connect(2*time.Second))
	t.Cleanup(conn.Close)

	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &fixture{srv: srv, conn: conn, d: New(cfg)}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.d.Start(f.conn))
	t.Cleanup(f.d.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.d.WaitForEventStream(ctx))
}

func TestDispatcher_SubscribesWithKeepAlive(t *testing.T) {
	f := setup(t, Config{KeepAlive: 15})
	assert.False(t, f.d.Subscribed())
	f.start(t)

	assert.True(t, f.d.Subscribed())
	assert.NotEmpty(t, f.d.SubscriberUUID())
	assert.Equal(t, []int64{15}, f.srv.KeepAlives())
}

func TestDispatcher_DefaultKeepAlive(t *testing.T) {
	f := setup(t, Config{})
	f.start(t)
	assert.Equal(t, []int64{DefaultKeepAlive}, f.srv.KeepAlives())
}

func TestDispatcher_DeliversInStreamOrder(t *testing.T) {
	f := setup(t, Config{Subject: "robot"})
	c := newCollector()
	subscribe(t, f.d, c, ProcessIntentEvent)
	subscribe(t, f.d, c, KeepAliveEvent)
	f.start(t)

	f.srv.PushIntent("intent_hello", "hello there")
	f.srv.PushKeepAlive()

	e := c.next(t)
	assert.Equal(t, "robot", e.Subject)
	assert.Equal(t, "ProcessIntent", e.Name)
	intent, ok := e.Data.(ProcessIntent)
	require.True(t, ok)
	assert.Equal(t, "intent_hello", intent.IntentName)
	assert.Equal(t, "hello there", intent.Message)

	e = c.next(t)
	assert.Equal(t, "KeepAlive", e.Name)
	assert.IsType(t, KeepAlive{}, e.Data)
}

func TestDispatcher_SubscribedAckIsDispatched(t *testing.T) {
	f := setup(t, Config{})
	c := newCollector()
	subscribe(t, f.d, c, SubscribedEvent)
	f.start(t)

	e := c.next(t)
	ack, ok := e.Data.(Subscribed)
	require.True(t, ok)
	assert.Equal(t, f.d.SubscriberUUID(), ack.UUID)
}

func TestDispatcher_FailingCallbackIsIsolated(t *testing.T) {
	var buf syncBuffer
	reg := prometheus.NewRegistry()
	f := setup(t, Config{
		Logger:  slog.New(slog.NewTextHandler(&buf, nil)),
		Metrics: observability.NewMetrics(reg),
	})
	failing := HandlerFunc(func(context.Context, Event) error {
		return errors.New("callback exploded")
	})
	c := newCollector()
	subscribe(t, f.d, failing, ProcessIntentEvent)
	subscribe(t, f.d, c, ProcessIntentEvent)
	f.start(t)

	f.srv.PushIntent("intent_a", "a")
	f.srv.PushIntent("intent_b", "b")
	assert.Equal(t, "intent_a", c.next(t).Data.(ProcessIntent).IntentName)
	assert.Equal(t, "intent_b", c.next(t).Data.(ProcessIntent).IntentName)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(f.d.cfg.Metrics.CallbackFailures.WithLabelValues("ProcessIntent")) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, buf.String(), "callback exploded")
}

func TestDispatcher_ArityHint(t *testing.T) {
	var buf syncBuffer
	f := setup(t, Config{Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	done := make(chan struct{})
	subscribe(t, f.d, func(any) {}, ProcessIntentEvent)
	subscribe(t, f.d, func(any, string, any) { close(done) }, ProcessIntentEvent)
	f.start(t)

	f.srv.PushIntent("intent_a", "a")
	<-done
	f.d.Close()
	assert.Contains(t, buf.String(), "takes 1 positional arguments but 3 were given")
	assert.Contains(t, buf.String(), "event callbacks receive the subject")
}

func TestDispatcher_OnConnectionThread(t *testing.T) {
	f := setup(t, Config{})
	where := make(chan bool, 2)
	onConn := func(ctx context.Context, _ any, _ string, _ any) { where <- f.conn.OnLoop(ctx) }
	elsewhere := HandlerFunc(func(ctx context.Context, _ Event) error {
		where <- f.conn.OnLoop(ctx)
		return nil
	})
	sub := subscribe(t, f.d, onConn, ProcessIntentEvent, OnConnectionThread())
	f.start(t)

	f.srv.PushIntent("a", "")
	assert.True(t, <-where)

	require.True(t, f.d.Unsubscribe(sub, ProcessIntentEvent))
	subscribe(t, f.d, elsewhere, ProcessIntentEvent)
	f.srv.PushIntent("b", "")
	assert.False(t, <-where)
}

func TestDispatcher_UnknownPayloadIsSkipped(t *testing.T) {
	var buf syncBuffer
	f := setup(t, Config{Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	c := newCollector()
	subscribe(t, f.d, c, ProcessIntentEvent)
	f.start(t)

	f.srv.Push(cybervectorv1.MessageType_ProcessIntent, "{broken")
	f.srv.PushIntent("intent_ok", "")
	assert.Equal(t, "intent_ok", c.next(t).Data.(ProcessIntent).IntentName)
}

func TestDispatcher_DispatchEventByName(t *testing.T) {
	f := setup(t, Config{})
	c := newCollector()
	_, err := f.d.SubscribeByName(c, "custom", WithArgs("extra"), WithOption("k", 1))
	require.NoError(t, err)

	err = f.d.DispatchEventByName(context.Background(), "x", "custom")
	errutil.AssertErrorCode(t, err, proxyerr.CodeNotReady)

	f.start(t)
	require.NoError(t, f.d.DispatchEventByName(context.Background(), map[string]any{"n": 1}, "custom"))
	e := c.next(t)
	assert.Equal(t, "custom", e.Name)
	assert.Equal(t, map[string]any{"n": 1}, e.Data)
	assert.Equal(t, []any{"extra"}, e.Args)
	assert.Equal(t, map[string]any{"k": 1}, e.Options)

	errutil.AssertErrorCode(t, f.d.DispatchEventByName(context.Background(), nil, ""), proxyerr.CodeInvalidArgument)
}

func TestDispatcher_PendingCallbackFromConnection(t *testing.T) {
	f := setup(t, Config{})
	done := make(chan string, 1)
	cb := func(ctx context.Context, _ any, _ string, data any) *loop.Future[any] {
		return loop.Start(ctx, mustLoop(t, f.conn), func(context.Context) (any, error) {
			done <- data.(ProcessIntent).IntentName
			return nil, nil
		})
	}
	subscribe(t, f.d, cb, ProcessIntentEvent)
	f.start(t)

	f.srv.PushIntent("intent_pending", "")
	select {
	case name := <-done:
		assert.Equal(t, "intent_pending", name)
	case <-time.After(2 * time.Second):
		t.Fatal("pending callback never ran")
	}
}

func subscribe(t *testing.T, d *Dispatcher, cb any, event EventType, opts ...SubscribeOption) *Subscription {
	t.Helper()
	s, err := d.Subscribe(cb, event, opts...)
	require.NoError(t, err)
	return s
}

func mustLoop(t *testing.T, conn *connection.Connection) *loop.Loop {
	l, err := conn.Loop()
	require.NoError(t, err)
	return l
}

func TestDispatcher_CloseUnsubscribes(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := setup(t, Config{Metrics: observability.NewMetrics(reg)})
	f.start(t)
	require.Equal(t, 1, f.srv.Subscribers())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.d.cfg.Metrics.StreamSubscribed))

	f.d.Close()
	assert.False(t, f.d.Subscribed())
	assert.Equal(t, 0, f.srv.Subscribers())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.d.cfg.Metrics.StreamSubscribed))

	// Closing twice is harmless and a closed dispatcher can start again.
	f.d.Close()
	f.start(t)
	assert.True(t, f.d.Subscribed())
}

func TestDispatcher_StartTwiceIsMisuse(t *testing.T) {
	f := setup(t, Config{})
	f.start(t)
	errutil.AssertErrorCode(t, f.d.Start(f.conn), proxyerr.CodeAsyncMisuse)
}

func TestDispatcher_WaitForEventStreamTimesOut(t *testing.T) {
	d := New(Config{Logger: logging.Discard()})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	errutil.AssertErrorCode(t, d.WaitForEventStream(ctx), proxyerr.CodeTimeout)
}

func TestDispatcher_AckSequenceTracksSubscription(t *testing.T) {
	f := setup(t, Config{})
	c := newCollector()
	for _, ev := range AllEvents {
		subscribe(t, f.d, c, ev)
	}
	f.start(t)
	first := c.next(t)
	require.Equal(t, "Subscribed", first.Name)

	f.srv.Push(cybervectorv1.MessageType_Subscribed, `{"uuid":"u-2"}`)
	f.srv.PushIntent("intent_weather", "what is the weather")
	f.srv.Push(cybervectorv1.MessageType_Unsubscribed, `{"uuid":"u-2"}`)

	e := c.next(t)
	assert.Equal(t, Subscribed{UUID: "u-2"}, e.Data)
	e = c.next(t)
	assert.Equal(t, "intent_weather", e.Data.(ProcessIntent).IntentName)
	e = c.next(t)
	assert.Equal(t, Unsubscribed{UUID: "u-2"}, e.Data)

	assert.False(t, f.d.Subscribed())
	assert.Empty(t, f.d.SubscriberUUID())
}

func TestDispatcher_UnsubscribedCallbackIsNotInvoked(t *testing.T) {
	f := setup(t, Config{})
	gone, marker := newCollector(), newCollector()
	_, err := f.d.SubscribeByName(gone, "custom")
	require.NoError(t, err)
	_, err = f.d.SubscribeByName(marker, "marker")
	require.NoError(t, err)
	assert.True(t, f.d.UnsubscribeByName(gone, "custom"))
	f.start(t)

	require.NoError(t, f.d.DispatchEventByName(context.Background(), "data", "custom"))
	require.NoError(t, f.d.DispatchEventByName(context.Background(), "data", "marker"))
	marker.next(t)

	gone.mu.Lock()
	defer gone.mu.Unlock()
	assert.Empty(t, gone.got)
	assert.False(t, f.d.Registry().Has("custom"))
}

type tagged struct {
	tag string
	out chan<- string
}

func (g *tagged) onIntent(any, string, any) { g.out <- g.tag }

func TestDispatcher_DistinctFuncCallbacksAreAllInvoked(t *testing.T) {
	f := setup(t, Config{})
	out := make(chan string, 5)

	a, b := &tagged{tag: "a", out: out}, &tagged{tag: "b", out: out}
	subscribe(t, f.d, a.onIntent, ProcessIntentEvent)
	subscribe(t, f.d, b.onIntent, ProcessIntentEvent)
	for i := range 3 {
		subscribe(t, f.d, func(any, string, any) { out <- fmt.Sprint(i) }, ProcessIntentEvent)
	}
	require.Equal(t, 5, f.d.Registry().Len("ProcessIntent"))
	f.start(t)

	f.srv.PushIntent("intent_a", "")
	var got []string
	for range 5 {
		select {
		case tag := <-out:
			got = append(got, tag)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %v were invoked", got)
		}
	}
	assert.ElementsMatch(t, []string{"a", "b", "0", "1", "2"}, got)
}
