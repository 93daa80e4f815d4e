package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/domain/entities"
	"github.com/MareskoY/tutor-ai/domain/repositories"
)

// Store is an in-memory implementation of repositories.Store. It is the
// default driver for development and the backing store of handler tests.
type Store struct {
	mu             sync.RWMutex
	users          map[string]*entities.User
	chats          map[string]*entities.Chat
	messages       map[string]*entities.Message
	transcriptions map[string]*entities.CallTranscription
	byCallMessage  map[string][]string // call message id -> transcription ids
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		users:          make(map[string]*entities.User),
		chats:          make(map[string]*entities.Chat),
		messages:       make(map[string]*entities.Message),
		transcriptions: make(map[string]*entities.CallTranscription),
		byCallMessage:  make(map[string][]string),
	}
}

func (s *Store) Users() repositories.UserRepository { return (*userRepo)(s) }
func (s *Store) Chats() repositories.ChatRepository { return (*chatRepo)(s) }
func (s *Store) Messages() repositories.MessageRepository { return (*messageRepo)(s) }
func (s *Store) Transcriptions() repositories.TranscriptionRepository { return (*transcriptionRepo)(s) }

// Close implements repositories.Store
func (s *Store) Close(ctx context.Context) error { return nil }

type userRepo Store

// Create implements repositories.UserRepository
func (r *userRepo) Create(ctx context.Context, user *entities.User) error {
	if user == nil {
		return errors.New("user cannot be nil")
	}
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; exists {
		return errors.New("user already exists")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	userCopy := *user
	r.users[user.ID] = &userCopy
	return nil
}

// GetByID implements repositories.UserRepository
func (r *userRepo) GetByID(ctx context.Context, id string) (*entities.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	userCopy := *user
	userCopy.StudentPreference = user.StudentPreference.Clone()
	return &userCopy, nil
}

// UpdatePreference implements repositories.UserRepository
func (r *userRepo) UpdatePreference(ctx context.Context, id string, pref entities.StudentPreference) error {
	if id == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[id]
	if !exists {
		user = &entities.User{ID: id, CreatedAt: time.Now()}
		r.users[id] = user
	}
	user.StudentPreference = pref.Clone()
	return nil
}

type chatRepo Store

// Create implements repositories.ChatRepository
func (r *chatRepo) Create(ctx context.Context, chat *entities.Chat) error {
	if chat == nil {
		return errors.New("chat cannot be nil")
	}
	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}
	if err := chat.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.chats[chat.ID]; exists {
		return errors.New("chat already exists")
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}

	chatCopy := *chat
	r.chats[chat.ID] = &chatCopy
	return nil
}

// GetByID implements repositories.ChatRepository
func (r *chatRepo) GetByID(ctx context.Context, id string) (*entities.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chat, exists := r.chats[id]
	if !exists {
		return nil, fmt.Errorf("chat %s: %w", id, domain.ErrNotFound)
	}
	chatCopy := *chat
	return &chatCopy, nil
}

type messageRepo Store

// Create implements repositories.MessageRepository
func (r *messageRepo) Create(ctx context.Context, message *entities.Message) error {
	if message == nil {
		return errors.New("message cannot be nil")
	}
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.chats[message.ChatID]; !exists {
		return fmt.Errorf("chat %s: %w", message.ChatID, domain.ErrNotFound)
	}
	if _, exists := r.messages[message.ID]; exists {
		return fmt.Errorf("%w: message %s already exists", domain.ErrInvalidInput, message.ID)
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	messageCopy := *message
	messageCopy.Content = append([]byte(nil), message.Content...)
	r.messages[message.ID] = &messageCopy
	return nil
}

// GetByID implements repositories.MessageRepository
func (r *messageRepo) GetByID(ctx context.Context, id string) (*entities.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	message, exists := r.messages[id]
	if !exists {
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	messageCopy := *message
	messageCopy.Content = append([]byte(nil), message.Content...)
	return &messageCopy, nil
}

// UpdateContent implements repositories.MessageRepository
func (r *messageRepo) UpdateContent(ctx context.Context, id string, content []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, exists := r.messages[id]
	if !exists {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	message.Content = append([]byte(nil), content...)
	return nil
}

type transcriptionRepo Store

// Upsert implements repositories.TranscriptionRepository
func (r *transcriptionRepo) Upsert(ctx context.Context, rows []entities.CallTranscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range rows {
		if row.ID == "" {
			return fmt.Errorf("%w: transcription id is required", domain.ErrInvalidInput)
		}
		if _, exists := r.transcriptions[row.ID]; !exists {
			r.byCallMessage[row.CallMessageID] = append(r.byCallMessage[row.CallMessageID], row.ID)
		}
		rowCopy := row
		r.transcriptions[row.ID] = &rowCopy
	}
	return nil
}

// ListByCallMessage implements repositories.TranscriptionRepository
func (r *transcriptionRepo) ListByCallMessage(ctx context.Context, callMessageID string) ([]entities.CallTranscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byCallMessage[callMessageID]
	result := make([]entities.CallTranscription, 0, len(ids))
	for _, id := range ids {
		result = append(result, *r.transcriptions[id])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
