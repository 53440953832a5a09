// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/connection"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/loop"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/observability"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/errutil"
	cybervectorv1 "github.com/cyb3rdog/escapepod-sdk-go/pkg/proto/cybervector/v1"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

// DefaultKeepAlive is the keep-alive interval, in seconds, requested from the
// proxy when none is configured.
const DefaultKeepAlive int64 = 60

const (
	stopJoinTimeout    = 5 * time.Second
	unsubscribeTimeout = 5 * time.Second
)

// Config configures a Dispatcher.
type Config struct {
	// Subject is passed to every callback as its first value.
	Subject any
	// KeepAlive is the interval in seconds the proxy pings the stream at.
	KeepAlive int64
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	// Decoders overrides DefaultDecoders.
	Decoders Decoders
}

// Dispatcher consumes the proxy event stream and fans events out to
// subscribers. Callbacks run on the dispatcher's own loop unless they were
// subscribed with OnConnectionThread.
type Dispatcher struct {
	cfg      Config
	logger   *slog.Logger
	registry *Registry

	listening atomic.Bool

	mu      sync.Mutex
	conn    *connection.Connection
	loop    *loop.Loop
	stream  *loop.Future[any]
	uuid    string
	changed chan struct{}
}

// New creates a dispatcher. It does nothing until Start.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.Decoders == nil {
		cfg.Decoders = DefaultDecoders()
	}
	return &Dispatcher{
		cfg:      cfg,
		logger:   cfg.Logger,
		registry: NewRegistry(cfg.Logger),
		changed:  make(chan struct{}),
	}
}

// Registry returns the subscriber registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Start begins consuming the event stream of conn as a coroutine on the
// connection loop. conn must be connected.
func (d *Dispatcher) Start(conn *connection.Connection) error {
	d.mu.Lock()
	if d.stream != nil {
		d.mu.Unlock()
		return proxyerr.Async("event dispatcher is already started")
	}
	l := loop.New("events", d.logger)
	d.conn, d.loop = conn, l
	d.mu.Unlock()

	go func() {
		if err := l.Run(context.Background()); err != nil {
			d.logger.Error("event loop stopped", "error", err)
		}
	}()

	d.listening.Store(true)
	fut, err := conn.RunCoroutine(context.Background(), connection.Coroutine(d.consume))
	if err != nil {
		d.listening.Store(false)
		l.Stop()
		d.mu.Lock()
		d.conn, d.loop = nil, nil
		d.mu.Unlock()
		return err
	}

	d.mu.Lock()
	d.stream = fut
	d.mu.Unlock()
	return nil
}

// consume subscribes to the proxy and handles pushed messages until the
// stream ends, the context is cancelled, or listening is turned off.
func (d *Dispatcher) consume(ctx context.Context) (any, error) {
	client, err := d.conn.Interface()
	if err != nil {
		return nil, err
	}

	logger := d.logger.With("stream_id", ulid.Make().String())

	stream, err := loop.Await(ctx, func() (grpc.ServerStreamingClient[cybervectorv1.ProxyMessage], error) {
		return client.Subscribe(ctx, &cybervectorv1.SubscribeRequest{KeepAlive: d.cfg.KeepAlive})
	})
	if err != nil {
		if stopped(ctx, err) {
			logger.Info("disconnecting from the extension proxy event stream")
			return nil, nil
		}
		return nil, proxyerr.FromRPC(err)
	}

	for {
		msg, err := loop.Await(ctx, stream.Recv)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			logger.Info("event stream ended")
			d.setSubscriber("")
			return nil, nil
		case stopped(ctx, err):
			logger.Info("disconnecting from the extension proxy event stream")
			return nil, nil
		default:
			d.setSubscriber("")
			return nil, proxyerr.FromRPC(err)
		}
		if !d.listening.Load() {
			return nil, nil
		}
		d.handle(ctx, logger, msg)
	}
}

func stopped(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, loop.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		status.Code(err) == codes.Canceled
}

func (d *Dispatcher) handle(ctx context.Context, logger *slog.Logger, msg *cybervectorv1.ProxyMessage) {
	logger.Debug("event received", "type", msg.GetMessageType().String(), "data", msg.GetMessageData())

	m, err := d.cfg.Decoders.Classify(msg)
	if err != nil {
		errutil.LogWarn(logger, "unknown event payload", err)
		return
	}
	switch data := m.Data.(type) {
	case Subscribed:
		d.setSubscriber(data.UUID)
		logger.Info("successfully subscribed to the extension proxy events", "uuid", data.UUID)
	case Unsubscribed:
		d.setSubscriber("")
		logger.Info("unsubscribed from the extension proxy events", "uuid", data.UUID)
	}
	d.cfg.Metrics.RecordEvent(m.Name)
	d.dispatch(ctx, m.Name, m.Data)
}

func (d *Dispatcher) setSubscriber(uuid string) {
	d.mu.Lock()
	if d.uuid == uuid {
		d.mu.Unlock()
		return
	}
	d.uuid = uuid
	close(d.changed)
	d.changed = make(chan struct{})
	d.mu.Unlock()
	d.cfg.Metrics.SetStreamSubscribed(uuid != "")
}

// Subscribed reports whether the proxy has acknowledged the subscription.
func (d *Dispatcher) Subscribed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uuid != ""
}

// SubscriberUUID returns the uuid the proxy assigned, or "".
func (d *Dispatcher) SubscriberUUID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uuid
}

// WaitForEventStream blocks until the subscription is acknowledged or ctx
// is done.
func (d *Dispatcher) WaitForEventStream(ctx context.Context) error {
	for {
		d.mu.Lock()
		ok, changed := d.uuid != "", d.changed
		d.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return proxyerr.FromRPC(ctx.Err())
		}
	}
}

// Subscribe registers cb for a known event.
func (d *Dispatcher) Subscribe(cb any, event EventType, opts ...SubscribeOption) (*Subscription, error) {
	return d.registry.Subscribe(cb, string(event), opts...)
}

// SubscribeByName registers cb for an arbitrary event name.
func (d *Dispatcher) SubscribeByName(cb any, name string, opts ...SubscribeOption) (*Subscription, error) {
	return d.registry.Subscribe(cb, name, opts...)
}

// Unsubscribe removes target from a known event. See Registry.Unsubscribe.
func (d *Dispatcher) Unsubscribe(target any, event EventType) bool {
	return d.registry.Unsubscribe(target, string(event))
}

// UnsubscribeByName removes target from an event name.
func (d *Dispatcher) UnsubscribeByName(target any, name string) bool {
	return d.registry.Unsubscribe(target, name)
}

// DispatchEvent delivers data to the subscribers of event.
func (d *Dispatcher) DispatchEvent(ctx context.Context, data any, event EventType) error {
	return d.DispatchEventByName(ctx, data, string(event))
}

// DispatchEventByName delivers data to the subscribers of name. Each
// callback runs as its own coroutine; a failing callback is logged and does
// not affect the others.
func (d *Dispatcher) DispatchEventByName(ctx context.Context, data any, name string) error {
	if name == "" {
		d.logger.Error("bad event name in dispatch")
		return proxyerr.InvalidArgument("event_name", "event name is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.Lock()
	running := d.loop != nil
	d.mu.Unlock()
	if !running {
		return proxyerr.NotReady("event dispatcher")
	}
	d.dispatch(ctx, name, data)
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, data any) {
	for _, s := range d.registry.snapshot(name) {
		d.notify(ctx, s, name, data)
	}
}

func (d *Dispatcher) notify(ctx context.Context, s *Subscription, name string, data any) {
	d.mu.Lock()
	target, conn := d.loop, d.conn
	d.mu.Unlock()
	if target == nil {
		return
	}
	if s.onConn && conn != nil {
		if l, err := conn.Loop(); err == nil {
			target = l
		}
	}

	e := Event{Subject: d.cfg.Subject, Name: name, Data: data, Args: s.args, Options: s.options}
	fut := loop.Start(context.WithoutCancel(ctx), target, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.invoke(ctx, e)
	})
	fut.OnDone(func(_ struct{}, err error) { d.callbackDone(s, name, err) })
}

func (d *Dispatcher) callbackDone(s *Subscription, name string, err error) {
	if err == nil {
		return
	}
	logger := d.logger.With("event", name, "callback", s.label)
	if errors.Is(err, loop.ErrClosed) || errors.Is(err, loop.ErrCancelled) {
		logger.Debug("event callback abandoned", "error", err)
		return
	}
	d.cfg.Metrics.RecordCallbackFailure(name)
	errutil.LogError(logger, "event callback failed", err)
	if strings.Contains(err.Error(), "positional arguments but") {
		logger.Error("event callbacks receive the subject, the event name and the event data, followed by any bound arguments")
	}
}

// Close stops listening, unsubscribes from the proxy if subscribed, waits
// for the stream coroutine and stops the dispatcher loop. Connection-thread
// callbacks keep the connection loop; Close does not touch it.
func (d *Dispatcher) Close() {
	d.listening.Store(false)

	d.mu.Lock()
	conn, l, stream, uuid := d.conn, d.loop, d.stream, d.uuid
	d.stream, d.loop = nil, nil
	d.mu.Unlock()

	if stream == nil {
		return
	}
	if uuid != "" {
		d.unsubscribe(conn, uuid)
	}

	stream.Cancel()
	if _, err := stream.Result(); err != nil && !errors.Is(err, loop.ErrCancelled) {
		errutil.LogWarn(d.logger, "event stream closed with error", err)
	}
	d.setSubscriber("")

	l.Stop()
	if !l.Wait(stopJoinTimeout) {
		d.logger.Warn("event loop did not stop in time", "timeout", stopJoinTimeout)
	}
}

func (d *Dispatcher) unsubscribe(conn *connection.Connection, uuid string) {
	fut, err := conn.RunCoroutine(context.Background(), connection.Coroutine(func(ctx context.Context) (any, error) {
		client, err := conn.Interface()
		if err != nil {
			return nil, err
		}
		return loop.Await(ctx, func() (any, error) {
			return client.UnSubscribe(ctx, &cybervectorv1.UnsubscribeRequest{Uuid: uuid})
		})
	}))
	if err != nil {
		errutil.LogWarn(d.logger, "cannot unsubscribe from the event stream", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()
	if _, err := fut.Wait(ctx); err != nil {
		errutil.LogWarn(d.logger, "unsubscribe failed", proxyerr.FromRPC(err))
		return
	}
	d.logger.Debug("unsubscribed", "uuid", uuid)
}
