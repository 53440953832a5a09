// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package events

import (
	"context"
	"fmt"
	"reflect"
	"runtime"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/loop"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

// Event is what a subscriber receives.
type Event struct {
	// Subject is the opaque value the client was constructed with.
	Subject any
	Name    string
	Data    any
	// Args and Options are the extra values bound at subscribe time.
	Args    []any
	Options map[string]any
}

// Handler receives events.
type Handler interface {
	HandleEvent(ctx context.Context, e Event) error
}

// HandlerFunc adapts a function to Handler. Like any func callback it is
// identified by the Subscription it was registered with.
type HandlerFunc func(ctx context.Context, e Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, e Event) error { return f(ctx, e) }

// PendingHandler receives events by starting work of its own. The dispatcher
// awaits the returned Pending.
type PendingHandler interface {
	StartEvent(ctx context.Context, e Event) loop.Pending
}

// invoker is the normalized form every callback is turned into.
type invoker func(ctx context.Context, e Event) error

var (
	ctxType     = reflect.TypeFor[context.Context]()
	errType     = reflect.TypeFor[error]()
	pendingType = reflect.TypeFor[loop.Pending]()
	optionsType = reflect.TypeFor[map[string]any]()
)

// normalize turns cb into an invoker and a label for logs.
//
// cb may implement Handler or PendingHandler, or be a func. A func is called
// with an optional leading context.Context, then subject, event name and
// event data, then the bound args, then the bound options if its last
// parameter is a map[string]any. It may return nothing, an error, a
// loop.Pending to await, or a value followed by an error.
func normalize(cb any) (invoker, string, error) {
	switch h := cb.(type) {
	case nil:
		return nil, "", proxyerr.InvalidArgument("callback", "callback is nil")
	case Handler:
		return h.HandleEvent, fmt.Sprintf("%T", h), nil
	case PendingHandler:
		return func(ctx context.Context, e Event) error {
			p := h.StartEvent(ctx, e)
			if p == nil {
				return nil
			}
			_, err := loop.AwaitPending(ctx, p)
			return err
		}, fmt.Sprintf("%T", h), nil
	}

	fn := reflect.ValueOf(cb)
	if fn.Kind() != reflect.Func {
		return nil, "", proxyerr.InvalidArgument("callback", "%T is not a callable", cb)
	}
	name := funcName(fn)
	return reflectInvoker(fn, name), name, nil
}

// identity returns the registry key of cb. Funcs are not comparable and get
// no key: the caller identifies them by their Subscription instead.
func identity(cb any) (any, error) {
	typ := reflect.TypeOf(cb)
	if typ.Kind() == reflect.Func {
		return nil, nil
	}
	if !typ.Comparable() {
		return nil, proxyerr.InvalidArgument("callback", "%T cannot be used as a subscriber; use a pointer or WithKey", cb)
	}
	return cb, nil
}

func funcName(fn reflect.Value) string {
	if f := runtime.FuncForPC(fn.Pointer()); f != nil {
		return f.Name()
	}
	return fn.Type().String()
}

func reflectInvoker(fn reflect.Value, name string) invoker {
	typ := fn.Type()
	return func(ctx context.Context, e Event) error {
		in := make([]any, 0, 4+len(e.Args))
		in = append(in, e.Subject, e.Name, e.Data)
		in = append(in, e.Args...)

		params := typ.NumIn()
		start := 0
		if params > 0 && typ.In(0) == ctxType {
			start = 1
		}
		withOptions := params-start == len(in)+1 && typ.In(params-1) == optionsType
		if withOptions {
			in = append(in, e.Options)
		}

		if typ.IsVariadic() {
			if params-start-1 > len(in) {
				return arityError(name, params-start, len(in))
			}
		} else if params-start != len(in) {
			return arityError(name, params-start, len(in))
		}

		args := make([]reflect.Value, 0, start+len(in))
		if start == 1 {
			args = append(args, reflect.ValueOf(ctx))
		}
		for i, v := range in {
			pt := paramType(typ, start+i)
			if v == nil {
				args = append(args, reflect.Zero(pt))
				continue
			}
			rv := reflect.ValueOf(v)
			if !rv.Type().AssignableTo(pt) {
				return proxyerr.InvalidArgument("callback", "%s: argument %d: cannot use %T as %s", name, i+1, v, pt)
			}
			args = append(args, rv)
		}

		return results(ctx, fn.Call(args))
	}
}

func paramType(typ reflect.Type, i int) reflect.Type {
	if typ.IsVariadic() && i >= typ.NumIn()-1 {
		return typ.In(typ.NumIn() - 1).Elem()
	}
	return typ.In(i)
}

func arityError(name string, want, got int) error {
	return proxyerr.InvalidArgument("callback", "%s() takes %d positional arguments but %d were given", name, want, got)
}

// results interprets the values returned by a reflective callback.
func results(ctx context.Context, out []reflect.Value) error {
	if len(out) == 0 {
		return nil
	}
	last := out[len(out)-1]
	switch {
	case last.Type() == errType:
		if last.IsNil() {
			return nil
		}
		return last.Interface().(error)
	case last.Type().Implements(pendingType):
		if (last.Kind() == reflect.Pointer || last.Kind() == reflect.Interface) && last.IsNil() {
			return nil
		}
		_, err := loop.AwaitPending(ctx, last.Interface().(loop.Pending))
		return err
	}
	return nil
}
