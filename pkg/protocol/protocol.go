// Package protocol defines the WebSocket wire frames exchanged with
// gateway clients.
package protocol

import "encoding/json"

// ProtocolVersion is bumped on incompatible frame changes.
const ProtocolVersion = 1

// Frame types.
const (
	TypeRequest  = "req"
	TypeResponse = "res"
	TypeEvent    = "event"
)

// Client → server methods.
const (
	MethodChatSend     = "chat.send"
	MethodSessionsList = "sessions.list"
	MethodPing         = "ping"
)

// Server → client event names.
const (
	EventChatChunk = "chat.chunk"
	EventChatDone  = "chat.done"
	EventError     = "error"
)

// RequestFrame is a client request.
type RequestFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame answers one request by id.
type ResponseFrame struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	OK      bool        `json:"ok"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// EventFrame is a server push not tied to a request.
type EventFrame struct {
	Type    string      `json:"type"`
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// NewEvent builds an event frame.
func NewEvent(name string, payload interface{}) *EventFrame {
	return &EventFrame{Type: TypeEvent, Name: name, Payload: payload}
}

// OKResponse builds a success response for a request id.
func OKResponse(id string, payload interface{}) *ResponseFrame {
	return &ResponseFrame{Type: TypeResponse, ID: id, OK: true, Payload: payload}
}

// ErrResponse builds an error response for a request id.
func ErrResponse(id, msg string) *ResponseFrame {
	return &ResponseFrame{Type: TypeResponse, ID: id, OK: false, Error: msg}
}

// ChatSendParams are the params for chat.send.
type ChatSendParams struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	AgentKey  string `json:"agent_key,omitempty"`
}
