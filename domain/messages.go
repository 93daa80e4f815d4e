package domain

import (
	"encoding/json"

	"github.com/MareskoY/tutor-ai/domain/entities"
)

// StreamRequest asks the tutor API for an ephemeral realtime credential
type StreamRequest struct {
	ChatID   string            `json:"chatId"`
	ChatType entities.ChatType `json:"chatType"`
	Voice    string            `json:"voice,omitempty"`
}

// StreamResponse is the subset of the minted realtime session the caller needs
type StreamResponse struct {
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// MessagePayload is a chat message as sent by a client
type MessagePayload struct {
	ID      string          `json:"id,omitempty"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// SaveMessageRequest stores a message, creating its chat on first use
type SaveMessageRequest struct {
	ID       string            `json:"id"`
	Message  MessagePayload    `json:"message"`
	ChatType entities.ChatType `json:"chatType,omitempty"`
}

// SaveMessageResponse acknowledges a stored message
type SaveMessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

// UpdateMessageRequest replaces the content of an existing message
type UpdateMessageRequest struct {
	ID      string          `json:"id"`
	Content json.RawMessage `json:"content"`
}

// SaveTranscriptionsRequest appends transcript entries to a call message
type SaveTranscriptionsRequest struct {
	ChatID         string                     `json:"chatId"`
	CallMessageID  string                     `json:"callMessageId"`
	Transcriptions []entities.TranscriptEntry `json:"transcriptions"`
}

// SuccessResponse is the generic acknowledgement of a write
type SuccessResponse struct {
	Success bool `json:"success"`
}

// CallSummaryResponse carries a generated summary of a finished call
type CallSummaryResponse struct {
	CallMessageID string `json:"callMessageId"`
	Summary       string `json:"summary"`
}

// UserPreferenceResponse is the body of GET /api/user. StudentPreference is
// omitted for users who never saved one.
type UserPreferenceResponse struct {
	StudentPreference *entities.StudentPreference `json:"studentPreference,omitempty"`
}

// UpdatePreferenceRequest is the body of PATCH /api/user
type UpdatePreferenceRequest struct {
	StudentPreference *entities.StudentPreference `json:"studentPreference"`
}
