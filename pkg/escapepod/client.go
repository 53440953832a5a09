// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package escapepod

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"google.golang.org/grpc"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/connection"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/events"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/intents"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/logging"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/loop"
	cybervectorv1 "github.com/cyb3rdog/escapepod-sdk-go/pkg/proto/cybervector/v1"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

// Version is the SDK version reported in logs.
const Version = "0.3.0"

// Client is a connection to one extension proxy.
type Client struct {
	host              string
	port              string
	keepAlive         int64
	async             bool
	defaultLogging    bool
	logger            *slog.Logger
	subject           any
	tlsConfig         *tls.Config
	metrics           *Metrics
	dialOptions       []grpc.DialOption
	versionConstraint string
	constraint        *semver.Constraints

	conn      *connection.Connection
	events    *events.Dispatcher
	getStatus *connection.Operation[struct{}, *cybervectorv1.StatusResponse]

	mu      sync.Mutex
	intents *intents.Factory
}

// New creates a client for the proxy at host. host may carry a port;
// otherwise WithPort or DefaultPort applies. New does not connect.
func New(host string, opts ...Option) (*Client, error) {
	if host == "" {
		return nil, proxyerr.InvalidArgument("host", "the client requires the extension proxy IP address")
	}
	c := &Client{
		port:           strconv.Itoa(DefaultPort),
		keepAlive:      events.DefaultKeepAlive,
		defaultLogging: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	if h, p, err := net.SplitHostPort(host); err == nil {
		c.host, c.port = h, p
	} else {
		c.host = host
	}

	if c.versionConstraint != "" {
		constraint, err := semver.NewConstraint(c.versionConstraint)
		if err != nil {
			return nil, proxyerr.InvalidArgument("proxy_version", "invalid version constraint %q: %v", c.versionConstraint, err)
		}
		c.constraint = constraint
	}

	switch {
	case c.logger != nil:
	case c.defaultLogging:
		c.logger = logging.Setup("escapepod-sdk", Version, "text", nil, os.Stderr)
	default:
		c.logger = slog.Default()
	}

	c.conn = connection.New(connection.Config{
		Address:     c.Address(),
		TLSConfig:   c.tlsConfig,
		Logger:      logging.Component(c.logger, "connection"),
		Metrics:     c.metrics,
		DialOptions: c.dialOptions,
	})
	c.events = events.New(events.Config{
		Subject:   c.subject,
		KeepAlive: c.keepAlive,
		Logger:    logging.Component(c.logger, "events"),
		Metrics:   c.metrics,
	})

	var err error
	c.getStatus, err = connection.OnConnectionThread(c, "get_status",
		func(ctx context.Context, _ struct{}) (*cybervectorv1.StatusResponse, error) {
			client, err := c.conn.Interface()
			if err != nil {
				return nil, err
			}
			return loop.Await(ctx, func() (*cybervectorv1.StatusResponse, error) {
				return client.GetStatus(ctx, &cybervectorv1.StatusRequest{})
			})
		})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Address returns the proxy host:port.
func (c *Client) Address() string { return net.JoinHostPort(c.host, c.port) }

// Conn returns the underlying connection.
func (c *Client) Conn() *connection.Connection { return c.conn }

// Logger returns the client logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// ForceAsync reports whether calls return futures by default.
func (c *Client) ForceAsync() bool { return c.async }

// Events returns the event dispatcher.
func (c *Client) Events() *events.Dispatcher { return c.events }

// Intents returns the intent factory. It fails with NOT_READY until Connect
// has succeeded.
func (c *Client) Intents() (*IntentFactory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.intents == nil {
		return nil, proxyerr.NotReady("intent factory")
	}
	return c.intents, nil
}

// Connect opens the channel, starts the event stream and queries the proxy
// version. A zero timeout uses the default of ten seconds. On failure the
// client is left disconnected and Connect may be called again.
func (c *Client) Connect(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = connection.DefaultConnectTimeout
	}
	if err := c.conn.Connect(timeout); err != nil {
		return err
	}
	if err := c.events.Start(c.conn); err != nil {
		c.conn.Close()
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	status, err := c.getStatus.Call(ctx, struct{}{})
	if err != nil {
		c.Disconnect()
		return err
	}
	if err := c.checkVersion(status.GetVersion()); err != nil {
		c.Disconnect()
		return err
	}
	c.logger.Info("successfully connected to the extension proxy",
		"addr", c.Address(), "version", status.GetVersion())

	factory, err := intents.NewFactory(c)
	if err != nil {
		c.Disconnect()
		return err
	}
	c.mu.Lock()
	c.intents = factory
	c.mu.Unlock()
	return nil
}

func (c *Client) checkVersion(version string) error {
	v, err := semver.NewVersion(version)
	if c.constraint == nil {
		if err != nil {
			c.logger.Debug("proxy version is not semver", "version", version)
		}
		return nil
	}
	if err != nil {
		return proxyerr.InvalidVersion(version, c.versionConstraint, err)
	}
	if !c.constraint.Check(v) {
		return proxyerr.InvalidVersion(version, c.versionConstraint, nil)
	}
	return nil
}

// Disconnect stops the event stream and closes the channel.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intents = nil
	c.mu.Unlock()

	c.events.Close()
	c.conn.Close()
}

// WaitForEventStream blocks until the proxy acknowledges the event
// subscription or ctx is done.
func (c *Client) WaitForEventStream(ctx context.Context) error {
	return c.events.WaitForEventStream(ctx)
}

// Subscribed reports whether the event stream is subscribed.
func (c *Client) Subscribed() bool { return c.events.Subscribed() }

// GetStatus returns the proxy version and subscription state.
func (c *Client) GetStatus(ctx context.Context, opts ...CallOption) *Future[*StatusResponse] {
	return c.getStatus.Invoke(ctx, struct{}{}, opts...)
}

// Subscribe registers cb for a known event. The returned Subscription
// unsubscribes it again; Handler values may also be unsubscribed directly.
func (c *Client) Subscribe(cb any, event EventType, opts ...SubscribeOption) (*Subscription, error) {
	return c.events.Subscribe(cb, event, opts...)
}

// SubscribeByName registers cb for an arbitrary event name.
func (c *Client) SubscribeByName(cb any, name string, opts ...SubscribeOption) (*Subscription, error) {
	return c.events.SubscribeByName(cb, name, opts...)
}

// Unsubscribe removes target from a known event. target is a Subscription,
// a WithKey key or a Handler value.
func (c *Client) Unsubscribe(target any, event EventType) bool {
	return c.events.Unsubscribe(target, event)
}

// UnsubscribeByName removes target from an event name.
func (c *Client) UnsubscribeByName(target any, name string) bool {
	return c.events.UnsubscribeByName(target, name)
}

// DispatchEvent delivers data to the local subscribers of event.
func (c *Client) DispatchEvent(ctx context.Context, data any, event EventType) error {
	return c.events.DispatchEvent(ctx, data, event)
}

// DispatchEventByName delivers data to the local subscribers of name.
func (c *Client) DispatchEventByName(ctx context.Context, data any, name string) error {
	return c.events.DispatchEventByName(ctx, data, name)
}
