// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

// Package cybervectorv1 holds the wire messages and service descriptors of the
// cybervector.CyberVectorProxyService exposed by the EscapePod extension proxy.
//
// Messages encode to the protobuf binary format with protowire, so they
// interoperate with any protobuf peer of the same schema.
package cybervectorv1

import (
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every wire message of the proxy service.
type Message interface {
	MarshalWire() ([]byte, error)
	UnmarshalWire(b []byte) error
	Size() int
	String() string
}

// MessageType discriminates the payload carried by a ProxyMessage.
type MessageType int32

// Known message types.
const (
	MessageType_KeepAlive     MessageType = 0
	MessageType_Subscribed    MessageType = 1
	MessageType_Unsubscribed  MessageType = 2
	MessageType_ProcessIntent MessageType = 3
)

var messageTypeNames = map[MessageType]string{
	MessageType_KeepAlive:     "KeepAlive",
	MessageType_Subscribed:    "Subscribed",
	MessageType_Unsubscribed:  "Unsubscribed",
	MessageType_ProcessIntent: "ProcessIntent",
}

// String returns the schema name of the message type, or the number for
// types this package does not know.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}

// ResponseCode is the application-level result carried by proxy responses.
type ResponseCode int32

// Response codes.
const (
	ResponseCode_SUCCESS ResponseCode = 0
	ResponseCode_FAILURE ResponseCode = 1
)

func (c ResponseCode) String() string {
	switch c {
	case ResponseCode_SUCCESS:
		return "SUCCESS"
	case ResponseCode_FAILURE:
		return "FAILURE"
	default:
		return strconv.Itoa(int(c))
	}
}

// fieldReader consumes the value of one field. It returns the number of bytes
// read, or 0 when the field is not part of the message.
type fieldReader func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func readFields(b []byte, read fieldReader) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := read(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendMessage(b []byte, num protowire.Number, m Message) ([]byte, error) {
	data, err := m.MarshalWire()
	if err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, data), nil
}

func readString(typ protowire.Type, b []byte, dst *string) (int, error) {
	if typ != protowire.BytesType {
		return 0, nil
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func readVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, nil
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func readMessage(typ protowire.Type, b []byte, dst Message) (int, error) {
	if typ != protowire.BytesType {
		return 0, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if err := dst.UnmarshalWire(v); err != nil {
		return 0, err
	}
	return n, nil
}

func sizeOf(m Message) int {
	b, err := m.MarshalWire()
	if err != nil {
		return 0
	}
	return len(b)
}

// textFields renders name/value pairs in protobuf one-line text style.
func textFields(kv ...any) string {
	var sb strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		switch v := kv[i+1].(type) {
		case string:
			fmt.Fprintf(&sb, "%s:%q", kv[i], v)
		default:
			fmt.Fprintf(&sb, "%s:%v", kv[i], v)
		}
	}
	return sb.String()
}

// StatusRequest asks the proxy for its version and subscription state.
type StatusRequest struct{}

func (m *StatusRequest) MarshalWire() ([]byte, error) { return nil, nil }

func (m *StatusRequest) UnmarshalWire(b []byte) error {
	return readFields(b, func(protowire.Number, protowire.Type, []byte) (int, error) { return 0, nil })
}

func (m *StatusRequest) Size() int      { return 0 }
func (m *StatusRequest) String() string { return "" }

// StatusResponse reports the proxy version and whether it is subscribed to
// the EscapePod intent feed.
type StatusResponse struct {
	Version    string
	Subscribed bool
}

func (m *StatusResponse) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.Version)
	b = appendBool(b, 2, m.Subscribed)
	return b, nil
}

func (m *StatusResponse) UnmarshalWire(b []byte) error {
	*m = StatusResponse{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readString(typ, b, &m.Version)
		case 2:
			v, n, err := readVarint(typ, b)
			m.Subscribed = v != 0
			return n, err
		}
		return 0, nil
	})
}

func (m *StatusResponse) Size() int { return sizeOf(m) }

func (m *StatusResponse) String() string {
	return textFields("version", m.Version, "subscribed", m.Subscribed)
}

// GetVersion returns the proxy version, or "" for a nil response.
func (m *StatusResponse) GetVersion() string {
	if m == nil {
		return ""
	}
	return m.Version
}

// SubscribeRequest opens the push stream. KeepAlive is the interval, in
// seconds, at which the proxy emits KeepAlive messages.
type SubscribeRequest struct {
	KeepAlive int64
}

func (m *SubscribeRequest) MarshalWire() ([]byte, error) {
	return appendVarint(nil, 1, uint64(m.KeepAlive)), nil
}

func (m *SubscribeRequest) UnmarshalWire(b []byte) error {
	*m = SubscribeRequest{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			v, n, err := readVarint(typ, b)
			m.KeepAlive = int64(v)
			return n, err
		}
		return 0, nil
	})
}

func (m *SubscribeRequest) Size() int      { return sizeOf(m) }
func (m *SubscribeRequest) String() string { return textFields("keep_alive", m.KeepAlive) }

// UnsubscribeRequest closes the subscription identified by Uuid.
type UnsubscribeRequest struct {
	Uuid string
}

func (m *UnsubscribeRequest) MarshalWire() ([]byte, error) {
	return appendString(nil, 1, m.Uuid), nil
}

func (m *UnsubscribeRequest) UnmarshalWire(b []byte) error {
	*m = UnsubscribeRequest{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return readString(typ, b, &m.Uuid)
		}
		return 0, nil
	})
}

func (m *UnsubscribeRequest) Size() int      { return sizeOf(m) }
func (m *UnsubscribeRequest) String() string { return textFields("uuid", m.Uuid) }

// ProxyMessage is the envelope pushed on the subscription stream. MessageData
// is a JSON document whose shape depends on MessageType.
type ProxyMessage struct {
	MessageType MessageType
	MessageData string
}

func (m *ProxyMessage) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, uint64(m.MessageType))
	b = appendString(b, 2, m.MessageData)
	return b, nil
}

func (m *ProxyMessage) UnmarshalWire(b []byte) error {
	*m = ProxyMessage{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := readVarint(typ, b)
			m.MessageType = MessageType(int32(v))
			return n, err
		case 2:
			return readString(typ, b, &m.MessageData)
		}
		return 0, nil
	})
}

func (m *ProxyMessage) Size() int { return sizeOf(m) }

func (m *ProxyMessage) String() string {
	return textFields("message_type", m.MessageType, "message_data", m.MessageData)
}

// ResponseMessage is the structured result embedded in intent responses.
type ResponseMessage struct {
	Code    ResponseCode
	Message string
}

func (m *ResponseMessage) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, uint64(m.Code))
	b = appendString(b, 2, m.Message)
	return b, nil
}

func (m *ResponseMessage) UnmarshalWire(b []byte) error {
	*m = ResponseMessage{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := readVarint(typ, b)
			m.Code = ResponseCode(int32(v))
			return n, err
		case 2:
			return readString(typ, b, &m.Message)
		}
		return 0, nil
	})
}

func (m *ResponseMessage) Size() int { return sizeOf(m) }

func (m *ResponseMessage) String() string {
	if m == nil {
		return ""
	}
	return textFields("code", m.Code, "message", m.Message)
}

// GetCode returns the response code; a missing response counts as SUCCESS.
func (m *ResponseMessage) GetCode() ResponseCode {
	if m == nil {
		return ResponseCode_SUCCESS
	}
	return m.Code
}

// GetMessage returns the response text, or "" for a nil response.
func (m *ResponseMessage) GetMessage() string {
	if m == nil {
		return ""
	}
	return m.Message
}

func appendResponse(b []byte, r *ResponseMessage) ([]byte, error) {
	if r == nil {
		return b, nil
	}
	return appendMessage(b, 1, r)
}

// InsertIntentRequest stores a new intent document.
type InsertIntentRequest struct {
	IntentData string
}

func (m *InsertIntentRequest) MarshalWire() ([]byte, error) {
	return appendString(nil, 1, m.IntentData), nil
}

func (m *InsertIntentRequest) UnmarshalWire(b []byte) error {
	*m = InsertIntentRequest{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return readString(typ, b, &m.IntentData)
		}
		return 0, nil
	})
}

func (m *InsertIntentRequest) Size() int      { return sizeOf(m) }
func (m *InsertIntentRequest) String() string { return textFields("intent_data", m.IntentData) }

// InsertIntentResponse returns the object id of the stored intent.
type InsertIntentResponse struct {
	Response    *ResponseMessage
	InsertedOid string
}

func (m *InsertIntentResponse) MarshalWire() ([]byte, error) {
	b, err := appendResponse(nil, m.Response)
	if err != nil {
		return nil, err
	}
	return appendString(b, 2, m.InsertedOid), nil
}

func (m *InsertIntentResponse) UnmarshalWire(b []byte) error {
	*m = InsertIntentResponse{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Response = &ResponseMessage{}
			return readMessage(typ, b, m.Response)
		case 2:
			return readString(typ, b, &m.InsertedOid)
		}
		return 0, nil
	})
}

func (m *InsertIntentResponse) Size() int { return sizeOf(m) }

func (m *InsertIntentResponse) String() string {
	return textFields("response", fmt.Sprintf("{%s}", m.Response.String()), "inserted_oid", m.InsertedOid)
}

// SelectIntentRequest queries intents with a MongoDB-style JSON filter.
type SelectIntentRequest struct {
	FilterJson string
}

func (m *SelectIntentRequest) MarshalWire() ([]byte, error) {
	return appendString(nil, 1, m.FilterJson), nil
}

func (m *SelectIntentRequest) UnmarshalWire(b []byte) error {
	*m = SelectIntentRequest{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return readString(typ, b, &m.FilterJson)
		}
		return 0, nil
	})
}

func (m *SelectIntentRequest) Size() int      { return sizeOf(m) }
func (m *SelectIntentRequest) String() string { return textFields("filter_json", m.FilterJson) }

// SelectIntentResponse carries one JSON document per matching intent.
type SelectIntentResponse struct {
	Response   *ResponseMessage
	IntentData []string
}

func (m *SelectIntentResponse) MarshalWire() ([]byte, error) {
	b, err := appendResponse(nil, m.Response)
	if err != nil {
		return nil, err
	}
	for _, doc := range m.IntentData {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, doc)
	}
	return b, nil
}

func (m *SelectIntentResponse) UnmarshalWire(b []byte) error {
	*m = SelectIntentResponse{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Response = &ResponseMessage{}
			return readMessage(typ, b, m.Response)
		case 2:
			var doc string
			n, err := readString(typ, b, &doc)
			if n > 0 {
				m.IntentData = append(m.IntentData, doc)
			}
			return n, err
		}
		return 0, nil
	})
}

func (m *SelectIntentResponse) Size() int { return sizeOf(m) }

func (m *SelectIntentResponse) String() string {
	return textFields("response", fmt.Sprintf("{%s}", m.Response.String()), "intent_data", len(m.IntentData))
}

// DeleteIntentRequest removes the intent with the given object id.
type DeleteIntentRequest struct {
	IntentId string
}

func (m *DeleteIntentRequest) MarshalWire() ([]byte, error) {
	return appendString(nil, 1, m.IntentId), nil
}

func (m *DeleteIntentRequest) UnmarshalWire(b []byte) error {
	*m = DeleteIntentRequest{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return readString(typ, b, &m.IntentId)
		}
		return 0, nil
	})
}

func (m *DeleteIntentRequest) Size() int      { return sizeOf(m) }
func (m *DeleteIntentRequest) String() string { return textFields("intent_id", m.IntentId) }

// DeleteIntentResponse reports how many documents were removed.
type DeleteIntentResponse struct {
	Response     *ResponseMessage
	DeletedCount int64
}

func (m *DeleteIntentResponse) MarshalWire() ([]byte, error) {
	b, err := appendResponse(nil, m.Response)
	if err != nil {
		return nil, err
	}
	return appendVarint(b, 2, uint64(m.DeletedCount)), nil
}

func (m *DeleteIntentResponse) UnmarshalWire(b []byte) error {
	*m = DeleteIntentResponse{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Response = &ResponseMessage{}
			return readMessage(typ, b, m.Response)
		case 2:
			v, n, err := readVarint(typ, b)
			m.DeletedCount = int64(v)
			return n, err
		}
		return 0, nil
	})
}

func (m *DeleteIntentResponse) Size() int { return sizeOf(m) }

func (m *DeleteIntentResponse) String() string {
	return textFields("response", fmt.Sprintf("{%s}", m.Response.String()), "deleted_count", m.DeletedCount)
}
