// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package escapepod

import (
	"context"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/connection"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/events"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/intents"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/loop"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/observability"
	cybervectorv1 "github.com/cyb3rdog/escapepod-sdk-go/pkg/proto/cybervector/v1"
)

type (
	// Future is the handle returned by calls in async mode.
	Future[T any] = loop.Future[T]
	// CallOption overrides the call mode of one call.
	CallOption = connection.CallOption

	Event           = events.Event
	EventType       = events.EventType
	Handler         = events.Handler
	HandlerFunc     = events.HandlerFunc
	PendingHandler  = events.PendingHandler
	SubscribeOption = events.SubscribeOption
	Subscription    = events.Subscription
	KeepAlive       = events.KeepAlive
	Subscribed      = events.Subscribed
	Unsubscribed    = events.Unsubscribed
	ProcessIntent   = events.ProcessIntent

	Intent           = intents.Intent
	IntentDefinition = intents.Definition
	IntentFactory    = intents.Factory

	Metrics        = observability.Metrics
	StatusResponse = cybervectorv1.StatusResponse
)

// Known proxy events.
const (
	KeepAliveEvent     = events.KeepAliveEvent
	SubscribedEvent    = events.SubscribedEvent
	UnsubscribedEvent  = events.UnsubscribedEvent
	ProcessIntentEvent = events.ProcessIntentEvent
)

var (
	// AllEvents lists the known proxy events.
	AllEvents = events.AllEvents

	WithArgs           = events.WithArgs
	WithOption         = events.WithOption
	WithKey            = events.WithKey
	OnConnectionThread = events.OnConnectionThread
	ReturnFuture       = connection.ReturnFuture
	NewMetrics         = observability.NewMetrics
)

// AwaitFuture waits for f from inside a callback running on a loop without
// blocking that loop. Elsewhere it waits like f.Wait.
func AwaitFuture[T any](ctx context.Context, f *Future[T]) (T, error) {
	return loop.AwaitFuture(ctx, f)
}
