package entities

import (
	"encoding/json"
	"time"
)

// CallSession is the bookkeeping of the call currently in progress
type CallSession struct {
	// CallRecordID is empty until the call record has been created
	CallRecordID string
	StartedAt    time.Time
}

// DurationSeconds returns whole seconds elapsed since the call started
func (s *CallSession) DurationSeconds(now time.Time) int {
	if s == nil || s.StartedAt.IsZero() {
		return 0
	}
	d := now.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

const (
	callMessageType = "call"
	callToolName    = "voiceCall"
)

// CallResult is the mutable part of a call record
type CallResult struct {
	Duration       int       `json:"duration"`
	StartTimestamp time.Time `json:"startTimestamp"`
}

// CallContent is the message content stored for a voice call
type CallContent struct {
	MessageType string     `json:"messageType"`
	ToolCallID  string     `json:"toolCallId"`
	ToolName    string     `json:"toolName"`
	Result      CallResult `json:"result"`
}

// NewCallContent builds the content of a fresh call record
func NewCallContent(toolCallID string, startedAt time.Time, durationSeconds int) CallContent {
	return CallContent{
		MessageType: callMessageType,
		ToolCallID:  toolCallID,
		ToolName:    callToolName,
		Result: CallResult{
			Duration:       durationSeconds,
			StartTimestamp: startedAt.UTC(),
		},
	}
}

// ParseCallContent decodes message content written by NewCallContent
func ParseCallContent(raw json.RawMessage) (CallContent, bool) {
	var c CallContent
	if err := json.Unmarshal(raw, &c); err != nil {
		return CallContent{}, false
	}
	return c, c.MessageType == callMessageType
}
