package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeSnapshot MessageType = "snapshot"
	MessageTypeCommand  MessageType = "command"
	MessageTypePing     MessageType = "ping"
	MessageTypePong     MessageType = "pong"
	MessageTypeError    MessageType = "error"
)

// CommandAction names a call command sent by a feed client
type CommandAction string

const (
	ActionStart  CommandAction = "start"
	ActionStop   CommandAction = "stop"
	ActionToggle CommandAction = "toggle"
	ActionText   CommandAction = "text"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// SnapshotMessage carries the current call state to the UI
type SnapshotMessage struct {
	BaseMessage
	Call any `json:"call"`
}

// CommandMessage asks the call process to act
type CommandMessage struct {
	BaseMessage
	Action CommandAction `json:"action"`
	// Text is required for ActionText
	Text string `json:"text,omitempty"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// ParseMessage decodes and validates a client message. It returns
// *CommandMessage or *PingMessage.
func ParseMessage(messageBytes []byte) (any, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeCommand:
		var msg CommandMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid command message: %w", err)
		}
		if err := validateCommand(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %q", base.Type)
	}
}

func validateCommand(msg *CommandMessage) error {
	switch msg.Action {
	case ActionStart, ActionStop, ActionToggle:
		return nil
	case ActionText:
		if msg.Text == "" {
			return fmt.Errorf("text is required for the text action")
		}
		return nil
	default:
		return fmt.Errorf("action must be one of: start, stop, toggle, text")
	}
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// NewSnapshotMessage wraps a call snapshot
func NewSnapshotMessage(call any) *SnapshotMessage {
	return &SnapshotMessage{BaseMessage: newBase(MessageTypeSnapshot), Call: call}
}

// NewErrorMessage creates a standardized error message
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{BaseMessage: newBase(MessageTypeError), Code: code, Message: message}
}

// NewPongMessage creates a pong response message
func NewPongMessage(data string) *PongMessage {
	return &PongMessage{BaseMessage: newBase(MessageTypePong), Data: data}
}
