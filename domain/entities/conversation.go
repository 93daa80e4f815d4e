package entities

import (
	"time"

	"github.com/google/uuid"
)

// Role represents who spoke a conversation entry
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// EntryStatus tracks the lifecycle of a user turn
type EntryStatus string

const (
	EntryStatusSpeaking   EntryStatus = "speaking"
	EntryStatusProcessing EntryStatus = "processing"
	EntryStatusFinal      EntryStatus = "final"
)

// ConversationEntry is one turn of the live call transcript
type ConversationEntry struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
	IsFinal   bool        `json:"isFinal"`
	Status    EntryStatus `json:"status,omitempty"`
	Saved     bool        `json:"saved"`
}

// NewUserEntry creates an empty user turn that is still being spoken
func NewUserEntry(now time.Time) ConversationEntry {
	return ConversationEntry{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Timestamp: now,
		Status:    EntryStatusSpeaking,
	}
}

// NewAssistantEntry creates a streaming assistant turn seeded with text
func NewAssistantEntry(text string, now time.Time) ConversationEntry {
	return ConversationEntry{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Text:      text,
		Timestamp: now,
	}
}

// Persistable reports whether the entry is due for the next transcript flush
func (e ConversationEntry) Persistable() bool {
	if e.Role != RoleUser && e.Role != RoleAssistant {
		return false
	}
	return e.IsFinal && !e.Saved
}

// TranscriptEntry is the persisted shape of a finalized conversation entry
type TranscriptEntry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ToTranscript converts a live entry to its persisted shape
func (e ConversationEntry) ToTranscript() TranscriptEntry {
	return TranscriptEntry{
		ID:        e.ID,
		Role:      e.Role,
		Text:      e.Text,
		Timestamp: e.Timestamp,
	}
}
