package mcp

import "testing"

func TestWrapMessage_Request(t *testing.T) {
	msg, err := WrapMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{"cursor":"x"}}`))
	if err != nil {
		t.Fatalf("WrapMessage() error = %v", err)
	}
	if !msg.IsRequest() {
		t.Error("IsRequest() = false")
	}
	if msg.IsNotification() {
		t.Error("IsNotification() = true for a request with an id")
	}
	if msg.Method() != "tools/list" {
		t.Errorf("Method() = %q", msg.Method())
	}
	if string(msg.Params()) != `{"cursor":"x"}` {
		t.Errorf("Params() = %s", msg.Params())
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestWrapMessage_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "truncated", raw: `{"jsonrpc":"2.0",`},
		{name: "not an object", raw: `"hello"`},
		{name: "empty", raw: ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := WrapMessage([]byte(tt.raw)); err == nil {
				t.Errorf("WrapMessage(%q) succeeded, want error", tt.raw)
			}
		})
	}
}

func TestMessage_RawID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "number id", raw: `{"jsonrpc":"2.0","id":42,"method":"ping"}`, want: `42`},
		{name: "string id", raw: `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, want: `"abc"`},
		{name: "large number id", raw: `{"jsonrpc":"2.0","id":9007199254740993,"method":"ping"}`, want: `9007199254740993`},
		{name: "missing id", raw: `{"jsonrpc":"2.0","method":"notifications/initialized"}`, want: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := WrapMessage([]byte(tt.raw))
			if err != nil {
				t.Fatalf("WrapMessage() error = %v", err)
			}
			got := string(msg.RawID())
			if got != tt.want {
				t.Errorf("RawID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractRawID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "wrong version frame", raw: `{"jsonrpc":"1.0","id":7,"method":"ping"}`, want: `7`},
		{name: "string id", raw: `{"id":"abc"}`, want: `"abc"`},
		{name: "null id", raw: `{"id":null}`, want: ``},
		{name: "no id", raw: `{"method":"ping"}`, want: ``},
		{name: "invalid json", raw: `{`, want: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(ExtractRawID([]byte(tt.raw)))
			if got != tt.want {
				t.Errorf("ExtractRawID(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMessage_IsNotification(t *testing.T) {
	msg, err := WrapMessage([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if err != nil {
		t.Fatalf("WrapMessage() error = %v", err)
	}
	if !msg.IsNotification() {
		t.Error("IsNotification() = false for an id-less request")
	}
}

func TestMessage_ResponseIsNotRequest(t *testing.T) {
	msg, err := WrapMessage([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	if err != nil {
		t.Fatalf("WrapMessage() error = %v", err)
	}
	if msg.IsRequest() {
		t.Error("IsRequest() = true for a response")
	}
	if msg.Method() != "" {
		t.Errorf("Method() = %q, want empty", msg.Method())
	}
	if msg.Params() != nil {
		t.Errorf("Params() = %s, want nil", msg.Params())
	}
}
