// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package events

import (
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

// Subscription is one registered callback for one event name. Subscribe
// returns it; passing it to Unsubscribe removes exactly that registration.
type Subscription struct {
	key     any
	label   string
	name    string
	invoke  invoker
	args    []any
	options map[string]any
	onConn  bool
	seq     uint64
}

// Event returns the event name the subscription is registered under.
func (s *Subscription) Event() string { return s.name }

// Registry maps event names to sets of subscriptions. A callback appears at
// most once per event name.
type Registry struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[any]*Subscription
	seq  uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		subs:   make(map[string]map[any]*Subscription),
	}
}

// add registers s under its event name. Re-adding a key already registered
// for the name keeps the original registration and returns it.
func (r *Registry) add(s *Subscription) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[s.name]
	if !ok {
		set = make(map[any]*Subscription)
		r.subs[s.name] = set
	}
	if prev, dup := set[s.key]; dup {
		return prev
	}
	r.seq++
	s.seq = r.seq
	set[s.key] = s
	return s
}

// remove unregisters key from name. Removing something that is not
// registered is logged, not returned as an error. The name is dropped once
// its last subscriber is gone.
func (r *Registry) remove(name string, key any, label string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[name]
	if !ok {
		r.logger.Error("cannot unsubscribe: event has no subscribers", "event", name)
		return false
	}
	if _, ok := set[key]; !ok {
		r.logger.Error("callback is not subscribed", "callback", label, "event", name)
		return false
	}
	delete(set, key)
	if len(set) == 0 {
		delete(r.subs, name)
	}
	return true
}

// snapshot returns the subscriptions of name in registration order. The
// result is a copy, so callbacks may change the registry while it is walked.
func (r *Registry) snapshot(name string) []*Subscription {
	r.mu.RLock()
	set := r.subs[name]
	out := slices.Collect(maps.Values(set))
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Subscription) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of subscribers for name.
func (r *Registry) Len(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[name])
}

// Has reports whether name has any subscribers.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[name]
	return ok
}

// Names returns the event names that have subscribers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := slices.Collect(maps.Keys(r.subs))
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// SubscribeOption binds extra values to a subscription.
type SubscribeOption func(*Subscription)

// WithArgs binds extra positional values passed after the event data.
func WithArgs(args ...any) SubscribeOption {
	return func(s *Subscription) { s.args = append(s.args, args...) }
}

// WithOption binds a named value passed in Event.Options.
func WithOption(key string, value any) SubscribeOption {
	return func(s *Subscription) {
		if s.options == nil {
			s.options = make(map[string]any)
		}
		s.options[key] = value
	}
}

// OnConnectionThread runs the callback on the connection loop instead of the
// dispatcher loop. Such callbacks must not block.
func OnConnectionThread() SubscribeOption {
	return func(s *Subscription) { s.onConn = true }
}

// WithKey identifies the subscription by key instead of by the callback.
// key must be comparable. Func callbacks have no identity of their own, so
// subscribing one twice under the same key is how it is made idempotent, and
// the key is what Unsubscribe accepts in place of the func.
func WithKey(key any) SubscribeOption {
	return func(s *Subscription) { s.key = key }
}

// Subscribe registers cb for name. See normalize for the accepted shapes of
// cb.
//
// Handler and PendingHandler values are their own identity: subscribing the
// same one twice to a name returns the first Subscription. Funcs, including
// HandlerFunc, are distinct on every call unless given WithKey.
func (r *Registry) Subscribe(cb any, name string, opts ...SubscribeOption) (*Subscription, error) {
	if name == "" {
		return nil, proxyerr.InvalidArgument("event_name", "event name is required")
	}
	invoke, label, err := normalize(cb)
	if err != nil {
		return nil, err
	}
	s := &Subscription{label: label, name: name, invoke: invoke}
	for _, opt := range opts {
		opt(s)
	}
	if s.key == nil {
		key, err := identity(cb)
		if err != nil {
			return nil, err
		}
		s.key = key
		if key == nil {
			s.key = s
		}
	} else if !reflect.TypeOf(s.key).Comparable() {
		return nil, proxyerr.InvalidArgument("key", "%T cannot be used as a subscription key", s.key)
	}
	return r.add(s), nil
}

// Unsubscribe removes target from name. target is a Subscription returned by
// Subscribe, a key given with WithKey, or a Handler or PendingHandler value.
// It reports whether anything was removed.
func (r *Registry) Unsubscribe(target any, name string) bool {
	if name == "" {
		r.logger.Error("bad event name in unsubscribe")
		return false
	}
	switch t := target.(type) {
	case nil:
		r.logger.Error("cannot unsubscribe a nil callback", "event", name)
		return false
	case *Subscription:
		if t == nil {
			r.logger.Error("cannot unsubscribe a nil subscription", "event", name)
			return false
		}
		if t.name != name {
			r.logger.Error("subscription belongs to another event", "callback", t.label, "event", name, "subscribed_to", t.name)
			return false
		}
		return r.remove(name, t.key, t.label)
	}
	typ := reflect.TypeOf(target)
	if typ.Kind() == reflect.Func {
		r.logger.Error("func callbacks are unsubscribed with their Subscription or WithKey key", "callback", typ.String(), "event", name)
		return false
	}
	if !typ.Comparable() {
		r.logger.Error("cannot unsubscribe callback", "callback", typ.String(), "event", name)
		return false
	}
	return r.remove(name, target, fmt.Sprintf("%T", target))
}
