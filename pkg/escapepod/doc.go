// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

// Package escapepod is a client for the Cyb3rVector EscapePod extension
// proxy.
//
// A Client owns one gRPC channel confined to a background loop and one
// event stream. Proxy calls made from any goroutine are marshaled onto that
// loop. In the default sync mode they block until the result is available;
// with WithAsync(true) they return a Future instead.
//
//	client, err := escapepod.New("192.168.1.10")
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(0); err != nil {
//		return err
//	}
//	defer client.Disconnect()
//
//	sub, err := client.Subscribe(func(_ any, _ string, msg escapepod.ProcessIntent) {
//		fmt.Println("heard", msg.IntentName)
//	}, escapepod.ProcessIntentEvent)
//	...
//	client.Unsubscribe(sub, escapepod.ProcessIntentEvent)
//
// Func callbacks are not comparable, so each Subscribe of a func is its own
// registration; keep the Subscription, or pass WithKey, to remove it later.
// Handler values are compared directly and subscribing one twice is a no-op.
//
// Callbacks receive the client subject, the event name and the event data,
// followed by any values bound with WithArgs. A callback may take a leading
// context.Context and a trailing map[string]any of options bound with
// WithOption. Callbacks run on the dispatcher loop unless subscribed with
// OnConnectionThread, in which case they must not block: they await proxy
// calls with AwaitFuture instead of Result.
package escapepod
