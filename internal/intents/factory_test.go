// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package intents

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/connection"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/logging"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/proxytest"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/errutil"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

type owner struct {
	conn  *connection.Connection
	async bool
}

func (o *owner) Conn() *connection.Connection { return o.conn }
func (o *owner) Logger() *slog.Logger         { return logging.Discard() }
func (o *owner) ForceAsync() bool             { return o.async }

func setup(t *testing.T) (*proxytest.Server, *owner, *Factory) {
	t.Helper()
	srv := proxytest.New()
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	conn := connection.New(connection.Config{Address: srv.Addr(), Logger: logging.Discard()})
	require.NoError(t, conn.Connect(2*time.Second))
	t.Cleanup(conn.Close)

	o := &owner{conn: conn}
	f, err := NewFactory(o)
	require.NoError(t, err)
	return srv, o, f
}

func TestFactory_CreateIntent(t *testing.T) {
	srv, _, f := setup(t)
	ctx := context.Background()

	id, err := f.CreateIntent(ctx, Definition{Name: "lights", Keywords: "lights on"}).Result()
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	docs := srv.Intents()
	require.Len(t, docs, 1)
	assert.Equal(t, "intent_lights", gjson.Get(docs[0], "intent").String())
	assert.Equal(t, id, gjson.Get(docs[0], "_id.$oid").String())
}

func TestFactory_CreateIntentRequiresName(t *testing.T) {
	srv, _, f := setup(t)

	_, err := f.CreateIntent(context.Background(), Definition{Keywords: "x"}).Result()
	errutil.AssertErrorCode(t, err, proxyerr.CodeProxyFailure)
	assert.Contains(t, err.Error(), "Intent name is mandatory")
	assert.Empty(t, srv.Intents())
}

func TestFactory_InsertFailureIsProxyError(t *testing.T) {
	srv, _, f := setup(t)
	srv.FailInserts("duplicate intent")

	_, err := f.CreateIntent(context.Background(), Definition{Name: "dup", Keywords: "x"}).Result()
	errutil.AssertErrorCode(t, err, proxyerr.CodeProxyFailure)
	errutil.AssertErrorContext(t, err, "proxy_message", "duplicate intent")
}

func TestFactory_InsertValidatesDocument(t *testing.T) {
	srv, _, f := setup(t)

	_, err := f.InsertIntent(context.Background(), `{"name":"n"}`).Result()
	errutil.AssertErrorCode(t, err, proxyerr.CodeInvalidArgument)
	assert.Empty(t, srv.Intents())

	resp, err := f.InsertIntent(context.Background(), `{"name":"n","intent":"i","utterance_list":"u"}`).Result()
	require.NoError(t, err)
	assert.NotEmpty(t, resp.GetInsertedOid())
}

func TestFactory_SelectIntents(t *testing.T) {
	_, _, f := setup(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := f.CreateIntent(ctx, Definition{Name: name, Keywords: name}).Result()
		require.NoError(t, err)
	}

	all, err := f.SelectIntents(ctx, "").Result()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	one, err := f.SelectIntents(ctx, `{"intent":"intent_b"}`).Result()
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "b", one[0].Name)
	assert.NotEmpty(t, one[0].ID)

	routed, err := f.SelectIntents(ctx, `{"extended_options":{"external_parser":true}}`).Result()
	require.NoError(t, err)
	assert.Len(t, routed, 3)

	_, err = f.SelectIntents(ctx, "{bad").Result()
	errutil.AssertErrorCode(t, err, proxyerr.CodeProxyFailure)
}

func TestFactory_DeleteIntent(t *testing.T) {
	srv, _, f := setup(t)
	ctx := context.Background()

	for range 2 {
		_, err := f.CreateIntent(ctx, Definition{Name: "final", Intent: "final_intent", Keywords: "cool"}).Result()
		require.NoError(t, err)
	}
	_, err := f.CreateIntent(ctx, Definition{Name: "other", Keywords: "x"}).Result()
	require.NoError(t, err)

	n, err := f.DeleteIntent(ctx, "final_intent").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, srv.Intents(), 1)

	n, err = f.DeleteIntent(ctx, "final_intent").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFactory_DeleteIntentByID(t *testing.T) {
	_, _, f := setup(t)
	ctx := context.Background()

	id, err := f.CreateIntent(ctx, Definition{Name: "x", Keywords: "x"}).Result()
	require.NoError(t, err)

	resp, err := f.DeleteIntentByID(ctx, id).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.GetDeletedCount())

	_, err = f.DeleteIntentByID(ctx, "").Result()
	errutil.AssertErrorCode(t, err, proxyerr.CodeInvalidArgument)
}

func TestFactory_AsyncMode(t *testing.T) {
	_, o, f := setup(t)
	o.async = true

	fut := f.CreateIntent(context.Background(), Definition{Name: "async", Keywords: "x"})
	id, err := fut.Result()
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	found, err := f.SelectIntents(context.Background(), `{"intent":"intent_async"}`).Result()
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestFactory_NotConnected(t *testing.T) {
	o := &owner{conn: connection.New(connection.Config{Address: "localhost:0"})}
	f, err := NewFactory(o)
	require.NoError(t, err)

	_, err = f.SelectIntents(context.Background(), "").Result()
	errutil.AssertErrorCode(t, err, proxyerr.CodeNotReady)
}
