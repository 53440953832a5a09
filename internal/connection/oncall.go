// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/loop"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

var tracer = otel.Tracer("escapepod/connection")

// Owner is the component an Operation belongs to.
type Owner interface {
	// Conn returns the connection the operation runs on.
	Conn() *Connection
	Logger() *slog.Logger
	// ForceAsync selects the default call mode: true returns futures, false
	// blocks until the result is available.
	ForceAsync() bool
}

// Func is the body of an Operation. It always runs on the connection loop.
type Func[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Operation is a proxy call that runs on the connection loop no matter which
// goroutine invokes it.
type Operation[Req, Resp any] struct {
	owner    Owner
	name     string
	fn       Func[Req, Resp]
	sizeOnly bool
}

// OperationOption configures an Operation.
type OperationOption func(*operationConfig)

type operationConfig struct {
	sizeOnly bool
}

// LogSizeOnly logs the size of requests and responses instead of their text.
func LogSizeOnly() OperationOption {
	return func(c *operationConfig) { c.sizeOnly = true }
}

// OnConnectionThread defines an Operation. It fails when owner or fn is nil
// or name is empty, so misuse surfaces when the operation is defined rather
// than when it is first called.
func OnConnectionThread[Req, Resp any](owner Owner, name string, fn Func[Req, Resp], opts ...OperationOption) (*Operation[Req, Resp], error) {
	switch {
	case owner == nil:
		return nil, proxyerr.Async("operation %q has no owner", name)
	case name == "":
		return nil, proxyerr.Async("operation name is required")
	case fn == nil:
		return nil, proxyerr.Async("operation %q has no body to run on the connection loop", name)
	}

	var cfg operationConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Operation[Req, Resp]{
		owner:    owner,
		name:     name,
		fn:       fn,
		sizeOnly: cfg.sizeOnly,
	}, nil
}

// MustOnConnectionThread is OnConnectionThread for package-level setup. It
// panics on misuse.
func MustOnConnectionThread[Req, Resp any](owner Owner, name string, fn Func[Req, Resp], opts ...OperationOption) *Operation[Req, Resp] {
	op, err := OnConnectionThread(owner, name, fn, opts...)
	if err != nil {
		panic(err)
	}
	return op
}

// Name returns the operation name.
func (op *Operation[Req, Resp]) Name() string { return op.name }

// CallOption overrides per-call behavior.
type CallOption func(*callConfig)

type callConfig struct {
	async *bool
}

// ReturnFuture overrides the owner's default call mode for one call.
func ReturnFuture(async bool) CallOption {
	return func(c *callConfig) { c.async = &async }
}

// Invoke runs the operation on the connection loop.
//
// From the loop itself the call is queued on the running loop and its future
// is returned without blocking, so operations can call other operations and
// await them with loop.AwaitFuture. Sync mode requested there with
// ReturnFuture(false) fails with an async-misuse error. From any other
// goroutine the returned future is already resolved in sync mode, and
// pending in async mode.
//
// A sync call whose future is cancelled logs a warning and resolves with the
// zero value and no error.
func (op *Operation[Req, Resp]) Invoke(ctx context.Context, req Req, opts ...CallOption) *loop.Future[Resp] {
	if ctx == nil {
		ctx = context.Background()
	}
	conn := op.owner.Conn()
	if conn == nil {
		return loop.Failed[Resp](proxyerr.NotReady("connection"))
	}
	l, err := conn.Loop()
	if err != nil {
		return loop.Failed[Resp](err)
	}

	body := func(ctx context.Context) (Resp, error) { return op.logged(ctx, req) }

	cfg := callConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if l.Owns(ctx) {
		if !l.Running() {
			return loop.Failed[Resp](proxyerr.Async("%s called on a connection loop that is not running", op.name))
		}
		if cfg.async != nil && !*cfg.async {
			return loop.Failed[Resp](proxyerr.Async("%s: sync call from the connection loop; use AwaitFuture", op.name))
		}
		// The nested call outlives the caller unless the caller awaits it.
		fut := loop.Start(context.WithoutCancel(ctx), l, body)
		conn.track(fut)
		return fut
	}

	fut := loop.Start(ctx, l, body)
	conn.track(fut)

	async := op.owner.ForceAsync()
	if cfg.async != nil {
		async = *cfg.async
	}
	if async {
		return fut
	}

	v, err := fut.Wait(ctx)
	if errors.Is(err, loop.ErrCancelled) {
		op.owner.Logger().Warn(fmt.Sprintf("%s cancelled because its proxy authority was revoked", op.name))
		var zero Resp
		return loop.Resolved(zero, nil)
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		fut.Cancel()
		return loop.Failed[Resp](proxyerr.FromRPC(err))
	}
	return loop.Resolved(v, err)
}

// Call is Invoke in sync mode that returns the result directly. It fails
// with an async-misuse error when ctx is running on the connection loop.
func (op *Operation[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return op.Invoke(ctx, req, ReturnFuture(false)).Result()
}

// logged wraps fn with tracing, debug logging, metrics and error translation.
func (op *Operation[Req, Resp]) logged(ctx context.Context, req Req) (resp Resp, err error) {
	logger := op.owner.Logger()
	metrics := op.owner.Conn().Metrics()

	ctx, span := tracer.Start(ctx, "escapepod."+op.name,
		trace.WithAttributes(attribute.String("escapepod.operation", op.name)),
	)
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.RecordCall(op.name, err, time.Since(start))
	}()

	logger.DebugContext(ctx, op.describe("outgoing", req), "operation", op.name)
	resp, err = op.fn(ctx, req)
	if err != nil {
		return resp, proxyerr.FromRPC(err)
	}
	logger.DebugContext(ctx, op.describe("incoming", resp), "operation", op.name)
	return resp, nil
}

type sizer interface{ Size() int }

func (op *Operation[Req, Resp]) describe(direction string, msg any) string {
	if op.sizeOnly {
		if s, ok := msg.(sizer); ok {
			return fmt.Sprintf("%s %s: size = %d bytes", op.name, direction, s.Size())
		}
		return fmt.Sprintf("%s %s: size = %d bytes", op.name, direction, len(fmt.Sprint(msg)))
	}
	return fmt.Sprintf("%s %s: %v", op.name, direction, msg)
}
