// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyb3rdog/escapepod-sdk-go/pkg/errutil"
	cybervectorv1 "github.com/cyb3rdog/escapepod-sdk-go/pkg/proto/cybervector/v1"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		msg      *cybervectorv1.ProxyMessage
		wantKind Kind
		wantName string
		wantData any
	}{
		{
			name:     "keep alive",
			msg:      &cybervectorv1.ProxyMessage{MessageType: cybervectorv1.MessageType_KeepAlive, MessageData: `{"timestamp":1700000000}`},
			wantKind: KindKeepAlive,
			wantName: "KeepAlive",
			wantData: KeepAlive{Timestamp: 1700000000},
		},
		{
			name:     "subscribed",
			msg:      &cybervectorv1.ProxyMessage{MessageType: cybervectorv1.MessageType_Subscribed, MessageData: `{"uuid":"abc"}`},
			wantKind: KindSubscribed,
			wantName: "Subscribed",
			wantData: Subscribed{UUID: "abc"},
		},
		{
			name:     "unsubscribed",
			msg:      &cybervectorv1.ProxyMessage{MessageType: cybervectorv1.MessageType_Unsubscribed, MessageData: `{"uuid":"abc"}`},
			wantKind: KindUnsubscribed,
			wantName: "Unsubscribed",
			wantData: Unsubscribed{UUID: "abc"},
		},
		{
			name:     "process intent",
			msg:      &cybervectorv1.ProxyMessage{MessageType: cybervectorv1.MessageType_ProcessIntent, MessageData: `{"intent_name":"intent_hello","message":"hi"}`},
			wantKind: KindProcessIntent,
			wantName: "ProcessIntent",
			wantData: ProcessIntent{IntentName: "intent_hello", Message: "hi", Raw: `{"intent_name":"intent_hello","message":"hi"}`},
		},
		{
			name:     "empty payload",
			msg:      &cybervectorv1.ProxyMessage{MessageType: cybervectorv1.MessageType_Subscribed},
			wantKind: KindSubscribed,
			wantName: "Subscribed",
			wantData: Subscribed{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DefaultDecoders().Classify(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, m.Kind)
			assert.Equal(t, tt.wantName, m.Name)
			assert.Equal(t, tt.wantData, m.Data)
		})
	}
}

func TestClassify_UnknownTypePassesRaw(t *testing.T) {
	d := Decoders{}
	m, err := d.Classify(&cybervectorv1.ProxyMessage{MessageType: cybervectorv1.MessageType_ProcessIntent, MessageData: "raw"})
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, m.Kind)
	assert.Equal(t, "ProcessIntent", m.Name)
	assert.Equal(t, "raw", m.Data)
}

func TestClassify_BadPayload(t *testing.T) {
	for _, data := range []string{"{not json", `["a"]`, `"text"`} {
		_, err := DefaultDecoders().Classify(&cybervectorv1.ProxyMessage{
			MessageType: cybervectorv1.MessageType_ProcessIntent,
			MessageData: data,
		})
		errutil.AssertErrorCode(t, err, "UNKNOWN_PAYLOAD")
		errutil.AssertErrorContext(t, err, "message_type", "ProcessIntent")
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "process_intent", KindProcessIntent.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
