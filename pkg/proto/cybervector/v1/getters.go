// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package cybervectorv1

// Nil-safe field accessors.

func (m *StatusResponse) GetSubscribed() bool {
	if m == nil {
		return false
	}
	return m.Subscribed
}

func (m *SubscribeRequest) GetKeepAlive() int64 {
	if m == nil {
		return 0
	}
	return m.KeepAlive
}

func (m *UnsubscribeRequest) GetUuid() string {
	if m == nil {
		return ""
	}
	return m.Uuid
}

func (m *ProxyMessage) GetMessageType() MessageType {
	if m == nil {
		return MessageType_KeepAlive
	}
	return m.MessageType
}

func (m *ProxyMessage) GetMessageData() string {
	if m == nil {
		return ""
	}
	return m.MessageData
}

func (m *InsertIntentRequest) GetIntentData() string {
	if m == nil {
		return ""
	}
	return m.IntentData
}

func (m *InsertIntentResponse) GetResponse() *ResponseMessage {
	if m == nil {
		return nil
	}
	return m.Response
}

func (m *InsertIntentResponse) GetInsertedOid() string {
	if m == nil {
		return ""
	}
	return m.InsertedOid
}

func (m *SelectIntentRequest) GetFilterJson() string {
	if m == nil {
		return ""
	}
	return m.FilterJson
}

func (m *SelectIntentResponse) GetResponse() *ResponseMessage {
	if m == nil {
		return nil
	}
	return m.Response
}

func (m *SelectIntentResponse) GetIntentData() []string {
	if m == nil {
		return nil
	}
	return m.IntentData
}

func (m *DeleteIntentRequest) GetIntentId() string {
	if m == nil {
		return ""
	}
	return m.IntentId
}

func (m *DeleteIntentResponse) GetResponse() *ResponseMessage {
	if m == nil {
		return nil
	}
	return m.Response
}

func (m *DeleteIntentResponse) GetDeletedCount() int64 {
	if m == nil {
		return 0
	}
	return m.DeletedCount
}
