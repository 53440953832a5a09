// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package escapepod

import (
	"crypto/tls"
	"log/slog"
	"strconv"

	"google.golang.org/grpc"
)

// DefaultPort is the extension proxy port used when the address has none.
const DefaultPort = 8090

// Option configures a Client.
type Option func(*Client)

// WithPort sets the proxy port. It is ignored when the address passed to New
// already has one.
func WithPort(port int) Option {
	return func(c *Client) { c.port = strconv.Itoa(port) }
}

// WithKeepAlive sets the keep-alive interval, in seconds, the proxy pings
// the event stream at. The default is 60.
func WithKeepAlive(seconds int64) Option {
	return func(c *Client) { c.keepAlive = seconds }
}

// WithAsync selects the default call mode. In async mode proxy calls return
// pending futures instead of blocking.
func WithAsync(async bool) Option {
	return func(c *Client) { c.async = async }
}

// WithDefaultLogging controls whether the client sets up its own logger
// honoring SDK_LOG_LEVEL. It is on by default and ignored when WithLogger is
// given.
func WithDefaultLogging(enabled bool) Option {
	return func(c *Client) { c.defaultLogging = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithSubject sets the value passed to every callback as its first argument,
// typically a handle to the robot the extension drives.
func WithSubject(subject any) Option {
	return func(c *Client) { c.subject = subject }
}

// WithTLS dials the proxy with TLS instead of plaintext.
func WithTLS(cfg *tls.Config) Option {
	return func(c *Client) { c.tlsConfig = cfg }
}

// WithMetrics records calls, connects and events on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDialOptions appends gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) { c.dialOptions = append(c.dialOptions, opts...) }
}

// WithProxyVersion makes Connect fail with INVALID_VERSION unless the proxy
// version satisfies the semver constraint, e.g. ">= 1.2".
func WithProxyVersion(constraint string) Option {
	return func(c *Client) { c.versionConstraint = constraint }
}
