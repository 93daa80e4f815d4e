package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/domain/entities"
	"github.com/MareskoY/tutor-ai/domain/repositories"
)

const (
	usersCollection          = "users"
	chatsCollection          = "chats"
	messagesCollection       = "messages"
	transcriptionsCollection = "call_transcriptions"
)

// Store implements repositories.Store on MongoDB
type Store struct {
	client *Client
	logger *zap.Logger
}

// NewStore creates the store and its indexes
func NewStore(ctx context.Context, client *Client, logger *zap.Logger) (*Store, error) {
	s := &Store{client: client, logger: logger}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string]mongo.IndexModel{
		messagesCollection: {
			Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: 1}},
		},
		transcriptionsCollection: {
			Keys: bson.D{{Key: "call_message_id", Value: 1}, {Key: "created_at", Value: 1}},
		},
	}
	for name, model := range indexes {
		if _, err := s.client.Database.Collection(name).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Users() repositories.UserRepository {
	return &userRepository{collection: s.client.Database.Collection(usersCollection)}
}

func (s *Store) Chats() repositories.ChatRepository {
	return &chatRepository{collection: s.client.Database.Collection(chatsCollection)}
}

func (s *Store) Messages() repositories.MessageRepository {
	return &messageRepository{collection: s.client.Database.Collection(messagesCollection)}
}

func (s *Store) Transcriptions() repositories.TranscriptionRepository {
	return &transcriptionRepository{collection: s.client.Database.Collection(transcriptionsCollection)}
}

// Close disconnects the underlying client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

type userRepository struct {
	collection *mongo.Collection
}

func (r *userRepository) Create(ctx context.Context, user *entities.User) error {
	if user == nil {
		return errors.New("user cannot be nil")
	}
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if _, err := r.collection.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	var user entities.User
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) UpdatePreference(ctx context.Context, id string, pref entities.StudentPreference) error {
	if id == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	update := bson.M{
		"$set":         bson.M{"student_preference": pref},
		"$setOnInsert": bson.M{"email": "", "created_at": time.Now()},
	}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to update student preference: %w", err)
	}
	return nil
}

type chatRepository struct {
	collection *mongo.Collection
}

func (r *chatRepository) Create(ctx context.Context, chat *entities.Chat) error {
	if chat == nil {
		return errors.New("chat cannot be nil")
	}
	if err := chat.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	if _, err := r.collection.InsertOne(ctx, chat); err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

func (r *chatRepository) GetByID(ctx context.Context, id string) (*entities.Chat, error) {
	var chat entities.Chat
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&chat); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("chat %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &chat, nil
}

// messageDocument stores the opaque JSON content as a string
type messageDocument struct {
	ID        string    `bson:"_id"`
	ChatID    string    `bson:"chat_id"`
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
}

type messageRepository struct {
	collection *mongo.Collection
}

func (r *messageRepository) Create(ctx context.Context, message *entities.Message) error {
	if message == nil {
		return errors.New("message cannot be nil")
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	doc := messageDocument{
		ID:        message.ID,
		ChatID:    message.ChatID,
		Role:      message.Role,
		Content:   string(message.Content),
		CreatedAt: message.CreatedAt,
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: message %s already exists", domain.ErrInvalidInput, message.ID)
		}
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*entities.Message, error) {
	var doc messageDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &entities.Message{
		ID:        doc.ID,
		ChatID:    doc.ChatID,
		Role:      doc.Role,
		Content:   []byte(doc.Content),
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, id string, content []byte) error {
	result, err := r.collection.UpdateByID(ctx, id, bson.M{"$set": bson.M{"content": string(content)}})
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

type transcriptionRepository struct {
	collection *mongo.Collection
}

func (r *transcriptionRepository) Upsert(ctx context.Context, rows []entities.CallTranscription) error {
	if len(rows) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			return fmt.Errorf("%w: transcription id is required", domain.ErrInvalidInput)
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": row.ID}).
			SetReplacement(row).
			SetUpsert(true))
	}

	if _, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to upsert transcriptions: %w", err)
	}
	return nil
}

func (r *transcriptionRepository) ListByCallMessage(ctx context.Context, callMessageID string) ([]entities.CallTranscription, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"call_message_id": callMessageID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find transcriptions: %w", err)
	}
	defer cursor.Close(ctx)

	rows := []entities.CallTranscription{}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode transcriptions: %w", err)
	}
	return rows, nil
}
