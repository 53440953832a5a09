// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package intents

import (
	"context"

	"github.com/tidwall/sjson"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/connection"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/loop"
	cybervectorv1 "github.com/cyb3rdog/escapepod-sdk-go/pkg/proto/cybervector/v1"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

// Definition describes an intent to create.
type Definition struct {
	Name string
	// Keywords is the comma-separated list of trigger phrases.
	Keywords    string
	Description string
	// Intent defaults to intent_<Name>.
	Intent string
}

// Factory issues intent calls to the proxy. Every call runs on the
// connection loop and follows the owner's sync or async mode.
type Factory struct {
	owner connection.Owner

	create     *connection.Operation[Definition, string]
	insert     *connection.Operation[string, *cybervectorv1.InsertIntentResponse]
	selectAll  *connection.Operation[string, []Intent]
	deleteByID *connection.Operation[string, *cybervectorv1.DeleteIntentResponse]
	deleteAll  *connection.Operation[string, int64]
}

// NewFactory defines the intent operations of owner.
func NewFactory(owner connection.Owner) (*Factory, error) {
	f := &Factory{owner: owner}

	var err error
	if f.create, err = connection.OnConnectionThread(owner, "create_intent", f.doCreate); err != nil {
		return nil, err
	}
	if f.insert, err = connection.OnConnectionThread(owner, "insert_intent", f.doInsert); err != nil {
		return nil, err
	}
	if f.selectAll, err = connection.OnConnectionThread(owner, "select_intents", f.doSelect, connection.LogSizeOnly()); err != nil {
		return nil, err
	}
	if f.deleteByID, err = connection.OnConnectionThread(owner, "delete_intent_by_id", f.doDeleteByID); err != nil {
		return nil, err
	}
	if f.deleteAll, err = connection.OnConnectionThread(owner, "delete_intent", f.doDelete); err != nil {
		return nil, err
	}
	return f, nil
}

// CreateIntent stores a new intent routed to this extension and resolves
// with its object id.
func (f *Factory) CreateIntent(ctx context.Context, def Definition, opts ...connection.CallOption) *loop.Future[string] {
	return f.create.Invoke(ctx, def, opts...)
}

// InsertIntent stores a raw intent document.
func (f *Factory) InsertIntent(ctx context.Context, doc string, opts ...connection.CallOption) *loop.Future[*cybervectorv1.InsertIntentResponse] {
	return f.insert.Invoke(ctx, doc, opts...)
}

// SelectIntents resolves with the intents matching a proxy filter
// document. An empty filter selects every intent.
func (f *Factory) SelectIntents(ctx context.Context, filter string, opts ...connection.CallOption) *loop.Future[[]Intent] {
	return f.selectAll.Invoke(ctx, filter, opts...)
}

// DeleteIntentByID deletes one intent by object id.
func (f *Factory) DeleteIntentByID(ctx context.Context, id string, opts ...connection.CallOption) *loop.Future[*cybervectorv1.DeleteIntentResponse] {
	return f.deleteByID.Invoke(ctx, id, opts...)
}

// DeleteIntent deletes every intent whose intent field equals intent and
// resolves with the number of deleted documents.
func (f *Factory) DeleteIntent(ctx context.Context, intent string, opts ...connection.CallOption) *loop.Future[int64] {
	return f.deleteAll.Invoke(ctx, intent, opts...)
}

func (f *Factory) client() (cybervectorv1.CyberVectorProxyServiceClient, error) {
	return f.owner.Conn().Interface()
}

func check(operation string, r *cybervectorv1.ResponseMessage) error {
	if r.GetCode() == cybervectorv1.ResponseCode_FAILURE {
		return proxyerr.Proxy(operation, r.GetMessage())
	}
	return nil
}

func (f *Factory) doCreate(ctx context.Context, def Definition) (string, error) {
	if def.Name == "" {
		return "", proxyerr.Proxy("create_intent", "Intent name is mandatory")
	}
	doc, err := New(def.Name, def.Keywords, def.Description, def.Intent).JSON()
	if err != nil {
		return "", err
	}
	resp, err := loop.AwaitFuture(ctx, f.insert.Invoke(ctx, doc))
	if err != nil {
		return "", err
	}
	return resp.GetInsertedOid(), nil
}

func (f *Factory) doInsert(ctx context.Context, doc string) (*cybervectorv1.InsertIntentResponse, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}
	client, err := f.client()
	if err != nil {
		return nil, err
	}
	resp, err := loop.Await(ctx, func() (*cybervectorv1.InsertIntentResponse, error) {
		return client.InsertIntent(ctx, &cybervectorv1.InsertIntentRequest{IntentData: doc})
	})
	if err != nil {
		return nil, err
	}
	if err := check("insert_intent", resp.GetResponse()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *Factory) doSelect(ctx context.Context, filter string) ([]Intent, error) {
	if filter == "" {
		filter = "{}"
	}
	client, err := f.client()
	if err != nil {
		return nil, err
	}
	resp, err := loop.Await(ctx, func() (*cybervectorv1.SelectIntentResponse, error) {
		return client.SelectIntents(ctx, &cybervectorv1.SelectIntentRequest{FilterJson: filter})
	})
	if err != nil {
		return nil, err
	}
	if err := check("select_intents", resp.GetResponse()); err != nil {
		return nil, err
	}

	out := make([]Intent, 0, len(resp.GetIntentData()))
	for _, doc := range resp.GetIntentData() {
		in, err := Parse(doc)
		if err != nil {
			f.owner.Logger().Warn("skipping unreadable intent document", "error", err)
			continue
		}
		out = append(out, in)
	}
	return out, nil
}

func (f *Factory) doDeleteByID(ctx context.Context, id string) (*cybervectorv1.DeleteIntentResponse, error) {
	if id == "" {
		return nil, proxyerr.InvalidArgument("intent_id", "intent id is required")
	}
	client, err := f.client()
	if err != nil {
		return nil, err
	}
	resp, err := loop.Await(ctx, func() (*cybervectorv1.DeleteIntentResponse, error) {
		return client.DeleteIntent(ctx, &cybervectorv1.DeleteIntentRequest{IntentId: id})
	})
	if err != nil {
		return nil, err
	}
	if err := check("delete_intent_by_id", resp.GetResponse()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *Factory) doDelete(ctx context.Context, intent string) (int64, error) {
	filter, err := sjson.Set("{}", "intent", intent)
	if err != nil {
		return 0, proxyerr.InvalidArgument("intent", "cannot build filter: %v", err)
	}
	found, err := loop.AwaitFuture(ctx, f.selectAll.Invoke(ctx, filter))
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, in := range found {
		resp, err := loop.AwaitFuture(ctx, f.deleteByID.Invoke(ctx, in.ID))
		if err != nil {
			return deleted, err
		}
		deleted += resp.GetDeletedCount()
	}
	return deleted, nil
}
