// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package events

import (
	"github.com/samber/oops"
	"github.com/tidwall/gjson"

	cybervectorv1 "github.com/cyb3rdog/escapepod-sdk-go/pkg/proto/cybervector/v1"
)

// EventType names a known proxy event.
type EventType string

// Known proxy events.
const (
	KeepAliveEvent     EventType = "KeepAlive"
	SubscribedEvent    EventType = "Subscribed"
	UnsubscribedEvent  EventType = "Unsubscribed"
	ProcessIntentEvent EventType = "ProcessIntent"
)

// AllEvents lists the known proxy events.
var AllEvents = []EventType{KeepAliveEvent, SubscribedEvent, UnsubscribedEvent, ProcessIntentEvent}

func (t EventType) String() string { return string(t) }

// Kind classifies a pushed message.
type Kind int

// Message kinds. KindUnknown carries a message type this package has no
// decoder for; its raw payload is passed through.
const (
	KindUnknown Kind = iota
	KindKeepAlive
	KindSubscribed
	KindUnsubscribed
	KindProcessIntent
)

func (k Kind) String() string {
	switch k {
	case KindKeepAlive:
		return "keep_alive"
	case KindSubscribed:
		return "subscribed"
	case KindUnsubscribed:
		return "unsubscribed"
	case KindProcessIntent:
		return "process_intent"
	default:
		return "unknown"
	}
}

// KeepAlive is the payload of a KeepAlive event.
type KeepAlive struct {
	Timestamp int64
}

// Subscribed is the payload of a Subscribed acknowledgment.
type Subscribed struct {
	UUID string
}

// Unsubscribed is the payload of an Unsubscribed acknowledgment.
type Unsubscribed struct {
	UUID string
}

// ProcessIntent is the payload of a ProcessIntent event: an intent heard by
// a robot and routed to this extension.
type ProcessIntent struct {
	IntentName string
	Message    string
	// Raw is the complete JSON payload.
	Raw string
}

// Decoder turns the JSON payload of one message type into a typed value.
type Decoder struct {
	Kind   Kind
	Decode func(raw string) (any, error)
}

// Decoders maps wire message types to their decoders.
type Decoders map[cybervectorv1.MessageType]Decoder

// DefaultDecoders returns the decoders of the known message types.
func DefaultDecoders() Decoders {
	return Decoders{
		cybervectorv1.MessageType_KeepAlive: {Kind: KindKeepAlive, Decode: func(raw string) (any, error) {
			obj, err := object(raw)
			if err != nil {
				return nil, err
			}
			return KeepAlive{Timestamp: obj.Get("timestamp").Int()}, nil
		}},
		cybervectorv1.MessageType_Subscribed: {Kind: KindSubscribed, Decode: func(raw string) (any, error) {
			obj, err := object(raw)
			if err != nil {
				return nil, err
			}
			return Subscribed{UUID: obj.Get("uuid").String()}, nil
		}},
		cybervectorv1.MessageType_Unsubscribed: {Kind: KindUnsubscribed, Decode: func(raw string) (any, error) {
			obj, err := object(raw)
			if err != nil {
				return nil, err
			}
			return Unsubscribed{UUID: obj.Get("uuid").String()}, nil
		}},
		cybervectorv1.MessageType_ProcessIntent: {Kind: KindProcessIntent, Decode: func(raw string) (any, error) {
			obj, err := object(raw)
			if err != nil {
				return nil, err
			}
			return ProcessIntent{
				IntentName: obj.Get("intent_name").String(),
				Message:    obj.Get("message").String(),
				Raw:        raw,
			}, nil
		}},
	}
}

func object(raw string) (gjson.Result, error) {
	if raw == "" {
		return gjson.Result{}, nil
	}
	if !gjson.Valid(raw) {
		return gjson.Result{}, oops.Code("UNKNOWN_PAYLOAD").Errorf("payload is not valid JSON")
	}
	obj := gjson.Parse(raw)
	if !obj.IsObject() {
		return gjson.Result{}, oops.Code("UNKNOWN_PAYLOAD").With("type", obj.Type.String()).Errorf("payload is not a JSON object")
	}
	return obj, nil
}

// Message is a classified push message.
type Message struct {
	Kind Kind
	// Name is the event name subscribers are registered under.
	Name string
	Data any
}

// Classify decodes msg with the matching decoder. Unknown message types
// yield KindUnknown with the raw payload as data.
func (d Decoders) Classify(msg *cybervectorv1.ProxyMessage) (Message, error) {
	t := msg.GetMessageType()
	name := t.String()
	dec, ok := d[t]
	if !ok {
		return Message{Kind: KindUnknown, Name: name, Data: msg.GetMessageData()}, nil
	}
	data, err := dec.Decode(msg.GetMessageData())
	if err != nil {
		return Message{Kind: dec.Kind, Name: name}, oops.With("message_type", name).Wrap(err)
	}
	return Message{Kind: dec.Kind, Name: name, Data: data}, nil
}
