// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

// Package connection owns the gRPC channel to the extension proxy.
//
// A Connection confines the channel to one background goroutine running a
// loop.Loop. Every RPC is issued from that loop; other goroutines hand work
// to it with RunSoon, RunCoroutine or an Operation.
package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/logging"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/loop"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/observability"
	cybervectorv1 "github.com/cyb3rdog/escapepod-sdk-go/pkg/proto/cybervector/v1"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

const (
	// DefaultConnectTimeout bounds the readiness probe when Connect is given
	// no timeout.
	DefaultConnectTimeout = 10 * time.Second

	// readyWaitFactor scales the connect timeout into the caller's wait budget.
	readyWaitFactor = 4

	closeJoinTimeout = 5 * time.Second
)

// State is the lifecycle state of a Connection.
type State int32

// Connection states.
const (
	StateUnstarted State = iota
	StateConnecting
	StateReady
	StateClosed
	StateFailed
)

var stateNames = map[State]string{
	StateUnstarted:  "unstarted",
	StateConnecting: "connecting",
	StateReady:      "ready",
	StateClosed:     "closed",
	StateFailed:     "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Config holds configuration for a Connection.
type Config struct {
	// Address is the proxy address, e.g. "escapepod.local:8090".
	Address string

	// TLSConfig enables TLS. If nil, an insecure channel is used.
	TLSConfig *tls.Config

	// KeepaliveTime enables gRPC keepalive pings at this interval when set.
	KeepaliveTime time.Duration

	// KeepaliveTimeout is how long to wait for a ping ack (default: 5s).
	KeepaliveTimeout time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics

	// DialOptions are appended to the options built from the fields above.
	DialOptions []grpc.DialOption
}

// Coroutine is work that runs on the connection loop and yields a result.
type Coroutine func(ctx context.Context) (any, error)

// Connection is the thread-confined channel manager.
type Connection struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	loop    *loop.Loop
	conn    *grpc.ClientConn
	client  cybervectorv1.CyberVectorProxyServiceClient
	done    chan struct{}
	tracked map[loop.Pending]struct{}
}

// New creates an unstarted Connection.
func New(cfg Config) *Connection {
	return &Connection{
		cfg:    cfg,
		logger: logging.Component(cfg.Logger, "connection"),
	}
}

// Address returns the proxy address.
func (c *Connection) Address() string { return c.cfg.Address }

// Logger returns the connection logger.
func (c *Connection) Logger() *slog.Logger { return c.logger }

// Metrics returns the configured metrics, which may be nil.
func (c *Connection) Metrics() *observability.Metrics { return c.cfg.Metrics }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection goroutine and blocks until the channel is
// ready, the wait budget of four times timeout elapses, or connecting fails.
// A failed Connect leaves the Connection retryable.
func (c *Connection) Connect(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateReady {
		state := c.state
		c.mu.Unlock()
		return proxyerr.Async("connection to %s is already %s; close it before connecting again", c.cfg.Address, state)
	}
	l := loop.New("connection", c.logger)
	done := make(chan struct{})
	c.state = StateConnecting
	c.loop = l
	c.done = done
	c.tracked = make(map[loop.Pending]struct{})
	c.mu.Unlock()

	ready := make(chan error, 1)
	go c.run(l, timeout, ready, done)

	wait := time.NewTimer(readyWaitFactor * timeout)
	defer wait.Stop()

	var err error
	select {
	case err = <-ready:
	case <-wait.C:
		err = proxyerr.NotFound(c.cfg.Address, nil)
	}
	c.cfg.Metrics.RecordConnect(err)

	if err != nil {
		c.fail(l)
		return err
	}
	c.logger.Debug("connected", "addr", c.cfg.Address)
	return nil
}

// run is the body of the connection goroutine.
func (c *Connection) run(l *loop.Loop, timeout time.Duration, ready chan<- error, done chan<- struct{}) {
	defer close(done)

	conn, err := c.dial(timeout)
	if err != nil {
		ready <- err
		return
	}

	c.mu.Lock()
	if c.loop != l || c.state != StateConnecting {
		// Connect gave up already.
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.client = cybervectorv1.NewCyberVectorProxyServiceClient(conn)
	c.state = StateReady
	c.mu.Unlock()
	ready <- nil

	if err := l.Run(context.Background()); err != nil && !errors.Is(err, loop.ErrClosed) {
		c.logger.Warn("connection loop exited", "error", err)
	}
}

func (c *Connection) dialOptions() []grpc.DialOption {
	var opts []grpc.DialOption
	if c.cfg.KeepaliveTime > 0 {
		kaTimeout := c.cfg.KeepaliveTimeout
		if kaTimeout == 0 {
			kaTimeout = 5 * time.Second
		}
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                c.cfg.KeepaliveTime,
			Timeout:             kaTimeout,
			PermitWithoutStream: true,
		}))
	}
	if c.cfg.TLSConfig != nil {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.cfg.TLSConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	return append(opts, c.cfg.DialOptions...)
}

// dial opens the channel and probes it until it reports ready.
func (c *Connection) dial(timeout time.Duration) (*grpc.ClientConn, error) {
	if c.cfg.Address == "" {
		return nil, proxyerr.InvalidArgument("address", "address is required")
	}

	conn, err := grpc.NewClient(c.cfg.Address, c.dialOptions()...)
	if err != nil {
		return nil, oops.Code(proxyerr.CodeConnection).
			With("addr", c.cfg.Address).
			Wrapf(err, "failed to create channel")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := waitReady(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, proxyerr.NotFound(c.cfg.Address, err)
	}
	return conn, nil
}

func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("channel shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return oops.With("state", state.String()).Wrap(ctx.Err())
		}
	}
}

// fail tears down a Connect attempt that did not reach ready.
func (c *Connection) fail(l *loop.Loop) {
	c.mu.Lock()
	if c.loop != l {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.state = StateFailed
	c.loop, c.conn, c.client, c.tracked = nil, nil, nil, nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	l.Close()
}

// Close cancels every pending call, closes the channel from the loop and
// stops the connection goroutine. It always returns, waiting at most five
// seconds for the goroutine to exit.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return
	}
	l, conn, done, tracked := c.loop, c.conn, c.done, c.tracked
	c.state = StateClosed
	c.client, c.tracked = nil, nil
	c.mu.Unlock()

	for p := range tracked {
		p.Cancel()
	}

	closeConn := func() {
		if err := conn.Close(); err != nil {
			c.logger.Debug("closing channel", "error", err)
		}
	}
	if err := l.Submit(func(context.Context) { closeConn() }); err != nil {
		closeConn()
	}
	l.Stop()

	join := time.NewTimer(closeJoinTimeout)
	defer join.Stop()
	select {
	case <-done:
		c.logger.Debug("connection closed", "addr", c.cfg.Address)
	case <-join.C:
		c.logger.Warn("connection goroutine did not stop in time", "timeout", closeJoinTimeout)
	}
}

// Interface returns the proxy stub. It fails with NOT_READY until Connect
// has succeeded.
func (c *Connection) Interface() (cybervectorv1.CyberVectorProxyServiceClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady || c.client == nil {
		return nil, proxyerr.NotReady("proxy interface")
	}
	return c.client, nil
}

// Loop returns the connection loop. It fails with NOT_READY until Connect
// has succeeded.
func (c *Connection) Loop() (*loop.Loop, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady || c.loop == nil {
		return nil, proxyerr.NotReady("connection loop")
	}
	return c.loop, nil
}

// OnLoop reports whether ctx belongs to code running on the connection loop.
func (c *Connection) OnLoop(ctx context.Context) bool {
	c.mu.Lock()
	l := c.loop
	c.mu.Unlock()
	return l != nil && l.Owns(ctx)
}

// RunSoon schedules work on the connection loop without waiting for it.
// Callers already on the loop queue it behind the current batch. work may be a loop.Task,
// a func(context.Context), a func(), a Coroutine or a loop.Pending.
func (c *Connection) RunSoon(ctx context.Context, work any) error {
	l, err := c.Loop()
	if err != nil {
		return err
	}
	t, err := c.task(l, work)
	if err != nil {
		return err
	}
	if l.Owns(ctx) {
		return l.CallSoon(ctx, t)
	}
	return l.Submit(t)
}

func (c *Connection) task(l *loop.Loop, work any) (loop.Task, error) {
	switch w := work.(type) {
	case loop.Task:
		return w, nil
	case func(context.Context):
		return w, nil
	case func():
		return func(context.Context) { w() }, nil
	case Coroutine:
		return c.startTask(l, w), nil
	case func(context.Context) (any, error):
		return c.startTask(l, w), nil
	case loop.Pending:
		return func(context.Context) { c.track(w) }, nil
	case nil:
		return nil, proxyerr.Async("nil work cannot be scheduled")
	default:
		return nil, proxyerr.Async("%T cannot be scheduled on the connection loop", work)
	}
}

func (c *Connection) startTask(l *loop.Loop, fn func(context.Context) (any, error)) loop.Task {
	return func(ctx context.Context) {
		c.track(loop.Start(ctx, l, fn))
	}
}

// RunCoroutine schedules work on the connection loop and returns its future.
// It must not be called from the loop itself; use RunSoon there. work may be
// a Coroutine, a loop.Pending or a plain func() (any, error).
func (c *Connection) RunCoroutine(ctx context.Context, work any) (*loop.Future[any], error) {
	if c.OnLoop(ctx) {
		return nil, proxyerr.Async("RunCoroutine called from the connection loop; use RunSoon instead")
	}
	l, err := c.Loop()
	if err != nil {
		return nil, err
	}

	var fn func(context.Context) (any, error)
	switch w := work.(type) {
	case Coroutine:
		fn = w
	case func(context.Context) (any, error):
		fn = w
	case loop.Pending:
		fn = func(ctx context.Context) (any, error) { return loop.AwaitPending(ctx, w) }
	case func() (any, error):
		fn = func(context.Context) (any, error) { return w() }
	case nil:
		return nil, proxyerr.Async("nil work cannot be scheduled")
	default:
		return nil, proxyerr.Async("%T is not a coroutine, future or callable", work)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	fut := loop.Start(ctx, l, fn)
	c.track(fut)
	return fut, nil
}

// track registers p to be cancelled by Close while it is unresolved.
func (c *Connection) track(p loop.Pending) {
	c.mu.Lock()
	if c.tracked == nil {
		c.mu.Unlock()
		return
	}
	c.tracked[p] = struct{}{}
	c.mu.Unlock()

	p.AfterDone(func() {
		c.mu.Lock()
		delete(c.tracked, p)
		c.mu.Unlock()
	})
}

// Pending returns the number of tracked unresolved calls.
func (c *Connection) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracked)
}
