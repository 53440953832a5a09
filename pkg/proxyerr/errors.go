// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

// Package proxyerr defines the error taxonomy of the EscapePod extension SDK.
//
// Every error carries an oops code. Programmer errors (ASYNC_MISUSE) are
// raised synchronously where the misuse happens. Transport failures are
// translated from gRPC status codes by FromRPC. Failures reported by the
// proxy inside an otherwise successful response use PROXY_FAILURE.
package proxyerr

import (
	"context"
	"errors"

	"github.com/samber/oops"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error codes.
const (
	CodeAsyncMisuse     = "ASYNC_MISUSE"
	CodeNotFound        = "NOT_FOUND"
	CodeNotReady        = "NOT_READY"
	CodeConnection      = "CONNECTION"
	CodeUnavailable     = "UNAVAILABLE"
	CodeUnimplemented   = "UNIMPLEMENTED"
	CodeTimeout         = "TIMEOUT"
	CodeProxyFailure    = "PROXY_FAILURE"
	CodeInvalidVersion  = "INVALID_VERSION"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeCancelled       = "CANCELLED"
	CodeCodec           = "CODEC"
)

// Async reports an invalid asynchronous action: calling a loop-confined API
// from the wrong goroutine, connecting twice, or scheduling something that
// cannot be scheduled.
func Async(format string, args ...any) error {
	return oops.Code(CodeAsyncMisuse).Errorf(format, args...)
}

// NotFound reports that no connection to the proxy could be established
// before the connect deadline.
func NotFound(addr string, cause error) error {
	b := oops.Code(CodeNotFound).
		With("addr", addr).
		Hint("make sure you are on the same network and the extension proxy is deployed and running")
	if cause != nil {
		return b.Wrapf(cause, "unable to establish a connection to the extension proxy at %s", addr)
	}
	return b.Errorf("unable to establish a connection to the extension proxy at %s", addr)
}

// NotReady reports use of a component before Connect completed.
func NotReady(what string) error {
	return oops.Code(CodeNotReady).
		With("component", what).
		Errorf("%s is not yet initialized", what)
}

// Proxy reports a FAILURE code returned by the proxy.
func Proxy(operation, message string) error {
	return oops.Code(CodeProxyFailure).
		With("operation", operation).
		With("proxy_message", message).
		Errorf("proxy returned failure: %s", message)
}

// InvalidArgument reports a rejected input.
func InvalidArgument(field, format string, args ...any) error {
	return oops.Code(CodeInvalidArgument).
		With("field", field).
		Errorf(format, args...)
}

// InvalidVersion reports a proxy whose version does not satisfy the
// configured constraint.
func InvalidVersion(version, constraint string, cause error) error {
	b := oops.Code(CodeInvalidVersion).
		With("version", version).
		With("constraint", constraint)
	if cause != nil {
		return b.Wrapf(cause, "unsupported extension proxy version %q", version)
	}
	return b.Errorf("extension proxy version %q does not satisfy %q", version, constraint)
}

// FromRPC translates a gRPC status error into the connection error family.
// Errors that already carry a code, and errors without a gRPC status, are
// returned unchanged.
func FromRPC(err error) error {
	if err == nil {
		return nil
	}
	if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() != nil {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return oops.Code(CodeCancelled).Wrap(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return oops.Code(CodeTimeout).Wrap(err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	code := CodeConnection
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		code = CodeTimeout
	case codes.Unimplemented:
		code = CodeUnimplemented
	case codes.Canceled:
		code = CodeCancelled
	}

	return oops.Code(code).
		With("status", st.Code().String()).
		With("details", st.Message()).
		Wrapf(err, "%s: %s", st.Code(), st.Message())
}

// Code returns the oops code of err, or "" when it has none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && Code(err) == code
}

// IsConnection reports whether err belongs to the connection error family.
func IsConnection(err error) bool {
	switch Code(err) {
	case CodeConnection, CodeUnavailable, CodeUnimplemented, CodeTimeout:
		return true
	}
	return false
}

// Status returns the gRPC status code recorded on a connection error.
func Status(err error) (codes.Code, bool) {
	if err == nil {
		return codes.OK, false
	}
	st, ok := status.FromError(err)
	if !ok {
		return codes.Unknown, false
	}
	return st.Code(), true
}
