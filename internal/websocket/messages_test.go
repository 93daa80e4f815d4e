package websocket

import (
	"encoding/json"
	"testing"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{"start command", `{"type":"command","action":"start"}`, false},
		{"stop command", `{"type":"command","action":"stop"}`, false},
		{"toggle command", `{"type":"command","action":"toggle"}`, false},
		{"text command", `{"type":"command","action":"text","text":"hello"}`, false},
		{"text without text", `{"type":"command","action":"text"}`, true},
		{"unknown action", `{"type":"command","action":"dance"}`, true},
		{"ping", `{"type":"ping","data":"x"}`, false},
		{"unsupported type", `{"type":"snapshot"}`, true},
		{"invalid json", `{"type":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseMessage_Types(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"command","action":"text","text":"What is 2+3?"}`))
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	cmd, ok := msg.(*CommandMessage)
	if !ok {
		t.Fatalf("Expected *CommandMessage, got %T", msg)
	}
	if cmd.Action != ActionText || cmd.Text != "What is 2+3?" {
		t.Errorf("Unexpected command %+v", cmd)
	}

	msg, err = ParseMessage([]byte(`{"type":"ping","data":"abc"}`))
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	if ping, ok := msg.(*PingMessage); !ok || ping.Data != "abc" {
		t.Errorf("Expected ping with data, got %#v", msg)
	}
}

func TestOutboundMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  any
		want MessageType
	}{
		{"snapshot", NewSnapshotMessage(map[string]string{"state": "idle"}), MessageTypeSnapshot},
		{"error", NewErrorMessage("invalid_message", "bad"), MessageTypeError},
		{"pong", NewPongMessage("x"), MessageTypePong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			var base BaseMessage
			if err := json.Unmarshal(data, &base); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if base.Type != tt.want {
				t.Errorf("Expected type %s, got %s", tt.want, base.Type)
			}
			if base.Timestamp == "" {
				t.Error("Expected timestamp to be set")
			}
		})
	}
}
