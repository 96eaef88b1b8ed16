// Package mcp provides MCP message types and JSON-RPC codec utilities for
// the contextify gateway.
package mcp

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// ProtocolVersion is the MCP protocol version the gateway speaks.
const ProtocolVersion = "2025-06-18"

// Message wraps a decoded JSON-RPC message with gateway metadata. It keeps
// the raw bytes so ids can be echoed byte-for-byte regardless of their JSON
// type.
type Message struct {
	// Raw contains the original bytes of the message.
	Raw []byte

	// Decoded contains the parsed JSON-RPC message. The concrete type is
	// either *jsonrpc.Request or *jsonrpc.Response.
	Decoded jsonrpc.Message

	// Timestamp records when the message was received.
	Timestamp time.Time
}

// IsRequest returns true if the message is a JSON-RPC request.
func (m *Message) IsRequest() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Request)
	return ok
}

// Method returns the method name if this is a request, empty string otherwise.
func (m *Message) Method() string {
	req := m.Request()
	if req == nil {
		return ""
	}
	return req.Method
}

// Request returns the underlying Request, or nil for non-requests.
func (m *Message) Request() *jsonrpc.Request {
	if m.Decoded == nil {
		return nil
	}
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Params returns the raw request params, or nil.
func (m *Message) Params() json.RawMessage {
	req := m.Request()
	if req == nil {
		return nil
	}
	return json.RawMessage(req.Params)
}

// RawID extracts the request id from the raw bytes as json.RawMessage,
// preserving the original format (number or string). Returns nil for
// notifications and undecodable messages.
func (m *Message) RawID() json.RawMessage {
	return ExtractRawID(m.Raw)
}

// ExtractRawID pulls the id member out of a raw JSON-RPC frame, preserving
// its original bytes. It works on frames that fail full decoding, such as
// ones with a wrong version tag. Returns nil when the frame is not a JSON
// object, carries no id, or the id is null.
func ExtractRawID(raw []byte) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	id := obj["id"]
	if string(id) == "null" {
		return nil
	}
	return id
}

// IsNotification reports whether the message is a request without an id.
func (m *Message) IsNotification() bool {
	return m.IsRequest() && m.RawID() == nil
}
