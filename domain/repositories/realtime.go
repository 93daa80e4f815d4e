package repositories

import (
	"context"
	"encoding/json"
)

// TurnDetection tunes the server-side voice activity detection of a realtime session
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

// RealtimeSessionRequest describes the realtime voice session to mint
type RealtimeSessionRequest struct {
	Model         string        `json:"model"`
	Voice         string        `json:"voice"`
	Modalities    []string      `json:"modalities"`
	Instructions  string        `json:"instructions"`
	ToolChoice    string        `json:"tool_choice"`
	TurnDetection TurnDetection `json:"turn_detection"`
}

// RealtimeSessionMinter asks the voice provider for an ephemeral session and
// returns the provider's JSON response untouched.
type RealtimeSessionMinter interface {
	MintSession(ctx context.Context, req RealtimeSessionRequest) (json.RawMessage, error)
}
