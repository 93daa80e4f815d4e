package repositories

import (
	"context"

	"github.com/MareskoY/tutor-ai/domain/entities"
)

// UserRepository defines data access methods for users
type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id string) (*entities.User, error)
	// UpdatePreference replaces the student preference, creating the user
	// record when it does not exist yet
	UpdatePreference(ctx context.Context, id string, pref entities.StudentPreference) error
}

// ChatRepository defines data access methods for chats
type ChatRepository interface {
	Create(ctx context.Context, chat *entities.Chat) error
	// GetByID returns domain.ErrNotFound when the chat does not exist
	GetByID(ctx context.Context, id string) (*entities.Chat, error)
}

// MessageRepository defines data access methods for chat messages
type MessageRepository interface {
	Create(ctx context.Context, message *entities.Message) error
	GetByID(ctx context.Context, id string) (*entities.Message, error)
	// UpdateContent replaces the message content, domain.ErrNotFound if missing
	UpdateContent(ctx context.Context, id string, content []byte) error
}

// TranscriptionRepository defines data access methods for call transcriptions
type TranscriptionRepository interface {
	// Upsert writes the rows keyed by ID so a repeated flush is harmless
	Upsert(ctx context.Context, rows []entities.CallTranscription) error
	// ListByCallMessage returns rows ordered by CreatedAt ascending
	ListByCallMessage(ctx context.Context, callMessageID string) ([]entities.CallTranscription, error)
}

// Store bundles the repositories backed by one storage driver
type Store interface {
	Users() UserRepository
	Chats() ChatRepository
	Messages() MessageRepository
	Transcriptions() TranscriptionRepository
	Close(ctx context.Context) error
}
