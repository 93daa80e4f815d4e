package entities

import (
	"encoding/json"
	"errors"
	"time"
)

// ChatType selects the tutoring domain of a chat
type ChatType string

const (
	ChatTypeDefault   ChatType = "default"
	ChatTypeMath      ChatType = "math"
	ChatTypeChemistry ChatType = "chemistry"
	ChatTypePhysics   ChatType = "physics"
	ChatTypeHistory   ChatType = "history"
)

// ChatTypeConfig holds the display title and domain prompt of a chat type
type ChatTypeConfig struct {
	Title  string
	Prompt string
}

var chatTypes = map[ChatType]ChatTypeConfig{
	ChatTypeDefault: {
		Title:  "Default Chat",
		Prompt: "You are a helpful AI assistant ready to discuss any topic.",
	},
	ChatTypeMath: {
		Title:  "Math Tutor",
		Prompt: "You are an expert math tutor. Provide detailed solutions for math problems.",
	},
	ChatTypeChemistry: {
		Title:  "Chemistry Tutor",
		Prompt: "You are a chemistry tutor. Explain chemical concepts and equations clearly.",
	},
	ChatTypePhysics: {
		Title:  "Physics Tutor",
		Prompt: "You are a physics tutor. Provide step-by-step explanations of physical phenomena.",
	},
	ChatTypeHistory: {
		Title:  "History Tutor",
		Prompt: "You are a history tutor. Discuss historical events, timelines, and context.",
	},
}

// Config returns the configuration of the chat type; unknown types get an empty config
func (t ChatType) Config() ChatTypeConfig {
	return chatTypes[t]
}

// Valid reports whether t is a known chat type
func (t ChatType) Valid() bool {
	_, ok := chatTypes[t]
	return ok
}

// Visibility of a chat
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Chat groups messages of one conversation
type Chat struct {
	ID         string     `json:"id" bson:"_id" db:"id"`
	CreatedAt  time.Time  `json:"createdAt" bson:"created_at" db:"createdAt"`
	Title      string     `json:"title" bson:"title" db:"title"`
	UserID     string     `json:"userId" bson:"user_id" db:"userId"`
	Visibility Visibility `json:"visibility" bson:"visibility" db:"visibility"`
	Type       ChatType   `json:"type" bson:"type" db:"type"`
}

// Validate validates the chat data
func (c *Chat) Validate() error {
	if c.ID == "" {
		return errors.New("chat id is required")
	}
	if c.UserID == "" {
		return errors.New("user id is required")
	}
	if !c.Type.Valid() {
		return errors.New("invalid chat type")
	}
	return nil
}

// MessageRoleCall marks a message that records a voice call
const MessageRoleCall = "call"

// Message is a chat message; Content is stored as opaque JSON
type Message struct {
	ID        string          `json:"id" bson:"_id" db:"id"`
	ChatID    string          `json:"chatId" bson:"chat_id" db:"chatId"`
	Role      string          `json:"role" bson:"role" db:"role"`
	Content   json.RawMessage `json:"content" bson:"content" db:"content"`
	CreatedAt time.Time       `json:"createdAt" bson:"created_at" db:"createdAt"`
}

// CallTranscription is one persisted transcript line of a voice call
type CallTranscription struct {
	ID            string    `json:"id" bson:"_id" db:"id"`
	ChatID        string    `json:"chatId" bson:"chat_id" db:"chatId"`
	CallMessageID string    `json:"callMessageId" bson:"call_message_id" db:"callMessageId"`
	Role          Role      `json:"role" bson:"role" db:"role"`
	Text          string    `json:"text" bson:"text" db:"text"`
	CreatedAt     time.Time `json:"createdAt" bson:"created_at" db:"createdAt"`
}
