// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/loop"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/errutil"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

type recorder struct {
	got []Event
}

func (r *recorder) HandleEvent(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return nil
}

type starter struct {
	err error
}

func (s *starter) StartEvent(context.Context, Event) loop.Pending {
	return loop.Failed[any](s.err)
}

type valueHandler map[string]int

func (valueHandler) HandleEvent(context.Context, Event) error { return nil }

func invoke(t *testing.T, cb any, e Event) error {
	t.Helper()
	inv, _, err := normalize(cb)
	require.NoError(t, err)
	return inv(context.Background(), e)
}

func TestNormalize_Rejects(t *testing.T) {
	for _, cb := range []any{nil, 42, "callback"} {
		_, _, err := normalize(cb)
		errutil.AssertErrorCode(t, err, proxyerr.CodeInvalidArgument)
	}
}

func TestNormalize_Handler(t *testing.T) {
	r := &recorder{}
	e := Event{Subject: "vector", Name: "ProcessIntent", Data: 1}
	require.NoError(t, invoke(t, r, e))
	require.Len(t, r.got, 1)
	assert.Equal(t, e, r.got[0])
}

func TestNormalize_PendingHandler(t *testing.T) {
	boom := errors.New("boom")
	assert.ErrorIs(t, invoke(t, &starter{err: boom}, Event{}), boom)
	assert.NoError(t, invoke(t, &starter{}, Event{}))
}

func TestIdentity(t *testing.T) {
	r := &recorder{}
	k1, err := identity(r)
	require.NoError(t, err)
	k2, _ := identity(r)
	k3, _ := identity(&recorder{})
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)

	for _, cb := range []any{
		func(any, string, any) {},
		HandlerFunc(func(context.Context, Event) error { return nil }),
		r.HandleEvent,
	} {
		key, err := identity(cb)
		require.NoError(t, err)
		assert.Nil(t, key, "%T has no identity of its own", cb)
	}

	_, err = identity(valueHandler{})
	errutil.AssertErrorCode(t, err, proxyerr.CodeInvalidArgument)
}

func TestReflectInvoker_Positional(t *testing.T) {
	var got []any
	cb := func(subject any, name string, data any, extra int) {
		got = []any{subject, name, data, extra}
	}
	require.NoError(t, invoke(t, cb, Event{Subject: "s", Name: "n", Data: "d", Args: []any{7}}))
	assert.Equal(t, []any{"s", "n", "d", 7}, got)
}

func TestReflectInvoker_ContextAndOptions(t *testing.T) {
	var (
		gotCtx  bool
		gotOpts map[string]any
	)
	cb := func(ctx context.Context, _ any, _ string, _ any, opts map[string]any) error {
		gotCtx = ctx != nil
		gotOpts = opts
		return nil
	}
	opts := map[string]any{"volume": 3}
	require.NoError(t, invoke(t, cb, Event{Options: opts}))
	assert.True(t, gotCtx)
	assert.Equal(t, opts, gotOpts)
}

func TestReflectInvoker_Variadic(t *testing.T) {
	var n int
	cb := func(_ any, rest ...any) { n = len(rest) }
	require.NoError(t, invoke(t, cb, Event{Args: []any{1, 2}}))
	assert.Equal(t, 4, n)
}

func TestReflectInvoker_ArityMismatch(t *testing.T) {
	err := invoke(t, func(any, string) {}, Event{})
	errutil.AssertErrorCode(t, err, proxyerr.CodeInvalidArgument)
	assert.Contains(t, err.Error(), "takes 2 positional arguments but 3 were given")
}

func TestReflectInvoker_TypeMismatch(t *testing.T) {
	err := invoke(t, func(any, string, int) {}, Event{Data: "not an int"})
	errutil.AssertErrorCode(t, err, proxyerr.CodeInvalidArgument)
	assert.Contains(t, err.Error(), "argument 3")
}

func TestReflectInvoker_NilValuesBecomeZero(t *testing.T) {
	var data *ProcessIntent
	called := false
	cb := func(_ any, _ string, d *ProcessIntent) {
		called = true
		data = d
	}
	require.NoError(t, invoke(t, cb, Event{}))
	assert.True(t, called)
	assert.Nil(t, data)
}

func TestReflectInvoker_Results(t *testing.T) {
	boom := errors.New("boom")

	assert.ErrorIs(t, invoke(t, func(any, string, any) error { return boom }, Event{}), boom)
	assert.NoError(t, invoke(t, func(any, string, any) error { return nil }, Event{}))
	assert.NoError(t, invoke(t, func(any, string, any) (int, error) { return 1, nil }, Event{}))
	assert.ErrorIs(t, invoke(t, func(any, string, any) *loop.Future[int] {
		return loop.Failed[int](boom)
	}, Event{}), boom)
	assert.NoError(t, invoke(t, func(any, string, any) *loop.Future[int] { return nil }, Event{}))
}
