package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/domain/entities"
	"github.com/MareskoY/tutor-ai/domain/repositories"
	"github.com/MareskoY/tutor-ai/internal/metrics"
)

const callChatTitle = "Call with"

// CallService stores call records and their transcriptions for the tutor API
type CallService struct {
	store  repositories.Store
	llm    repositories.LargeLanguageModel
	now    func() time.Time
	logger *zap.Logger
}

// NewCallService creates a new call service
func NewCallService(store repositories.Store, llm repositories.LargeLanguageModel, logger *zap.Logger) *CallService {
	return &CallService{
		store:  store,
		llm:    llm,
		now:    time.Now,
		logger: logger,
	}
}

// SaveMessage stores a message in chat req.ID, creating the chat on first use,
// and returns the message id
func (s *CallService) SaveMessage(ctx context.Context, userID string, req domain.SaveMessageRequest) (string, error) {
	if req.ID == "" || req.Message.Role == "" || len(req.Message.Content) == 0 {
		return "", fmt.Errorf("%w: id, message.role and message.content are required", domain.ErrInvalidInput)
	}

	chat, err := s.store.Chats().GetByID(ctx, req.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		chatType := req.ChatType
		if chatType == "" {
			chatType = entities.ChatTypeDefault
		}
		chat = &entities.Chat{
			ID:         req.ID,
			CreatedAt:  s.now(),
			Title:      callChatTitle,
			UserID:     userID,
			Visibility: entities.VisibilityPrivate,
			Type:       chatType,
		}
		if err := s.store.Chats().Create(ctx, chat); err != nil {
			return "", fmt.Errorf("failed to create chat: %w", err)
		}
		s.logger.Info("Chat created for call", zap.String("chatID", chat.ID), zap.String("userID", userID))
	case err != nil:
		return "", fmt.Errorf("failed to load chat: %w", err)
	case chat.UserID != userID:
		return "", fmt.Errorf("%w: chat %s belongs to another user", domain.ErrForbidden, chat.ID)
	}

	messageID := req.Message.ID
	if messageID == "" {
		messageID = uuid.New().String()
	}
	message := &entities.Message{
		ID:        messageID,
		ChatID:    chat.ID,
		Role:      req.Message.Role,
		Content:   req.Message.Content,
		CreatedAt: s.now(),
	}
	if err := s.store.Messages().Create(ctx, message); err != nil {
		return "", fmt.Errorf("failed to save message: %w", err)
	}

	s.logger.Debug("Message saved",
		zap.String("chatID", chat.ID),
		zap.String("messageID", messageID),
		zap.String("role", message.Role))
	return messageID, nil
}

// UpdateMessage replaces the content of a message owned by the user
func (s *CallService) UpdateMessage(ctx context.Context, userID string, req domain.UpdateMessageRequest) error {
	if req.ID == "" || len(req.Content) == 0 {
		return fmt.Errorf("%w: id and content are required", domain.ErrInvalidInput)
	}

	message, err := s.store.Messages().GetByID(ctx, req.ID)
	if err != nil {
		return fmt.Errorf("failed to load message: %w", err)
	}
	if err := s.authorizeChat(ctx, userID, message.ChatID); err != nil {
		return err
	}

	if err := s.store.Messages().UpdateContent(ctx, req.ID, req.Content); err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

// SaveTranscriptions upserts transcript entries of a call message. Entry ids
// are kept so a repeated flush overwrites instead of duplicating.
func (s *CallService) SaveTranscriptions(ctx context.Context, userID string, req domain.SaveTranscriptionsRequest) (int, error) {
	if req.ChatID == "" || req.CallMessageID == "" {
		return 0, fmt.Errorf("%w: chatId and callMessageId are required", domain.ErrInvalidInput)
	}
	if len(req.Transcriptions) == 0 {
		return 0, nil
	}
	if err := s.authorizeChat(ctx, userID, req.ChatID); err != nil {
		return 0, err
	}

	rows := make([]entities.CallTranscription, 0, len(req.Transcriptions))
	for _, t := range req.Transcriptions {
		if t.ID == "" {
			return 0, fmt.Errorf("%w: transcription id is required", domain.ErrInvalidInput)
		}
		createdAt := t.Timestamp
		if createdAt.IsZero() {
			createdAt = s.now()
		}
		rows = append(rows, entities.CallTranscription{
			ID:            t.ID,
			ChatID:        req.ChatID,
			CallMessageID: req.CallMessageID,
			Role:          t.Role,
			Text:          t.Text,
			CreatedAt:     createdAt,
		})
	}

	if err := s.store.Transcriptions().Upsert(ctx, rows); err != nil {
		return 0, fmt.Errorf("failed to save transcriptions: %w", err)
	}

	metrics.TranscriptionsStored.Add(float64(len(rows)))
	s.logger.Debug("Transcriptions saved",
		zap.String("callMessageID", req.CallMessageID),
		zap.Int("count", len(rows)))
	return len(rows), nil
}

// ListTranscriptions returns the transcript of a call message, oldest first
func (s *CallService) ListTranscriptions(ctx context.Context, userID, callMessageID string) ([]entities.CallTranscription, error) {
	if callMessageID == "" {
		return nil, fmt.Errorf("%w: callMessageId is required", domain.ErrInvalidInput)
	}

	rows, err := s.store.Transcriptions().ListByCallMessage(ctx, callMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcriptions: %w", err)
	}
	if len(rows) > 0 {
		if err := s.authorizeChat(ctx, userID, rows[0].ChatID); err != nil {
			return nil, err
		}
	}
	if rows == nil {
		rows = []entities.CallTranscription{}
	}
	return rows, nil
}

// Summarize asks the language model for a short summary of a finished call
func (s *CallService) Summarize(ctx context.Context, userID, callMessageID string) (string, error) {
	rows, err := s.ListTranscriptions(ctx, userID, callMessageID)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("call %s has no transcript: %w", callMessageID, domain.ErrNotFound)
	}

	summary, err := s.llm.Generate(ctx, summaryPrompt(rows))
	if err != nil {
		return "", fmt.Errorf("failed to summarize call: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

func summaryPrompt(rows []entities.CallTranscription) string {
	var b strings.Builder
	b.WriteString("Summarize this tutoring call between a student and a voice tutor in three sentences. ")
	b.WriteString("Mention the topics covered and where the student struggled.\n\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "%s: %s\n", row.Role, row.Text)
	}
	return b.String()
}

func (s *CallService) authorizeChat(ctx context.Context, userID, chatID string) error {
	chat, err := s.store.Chats().GetByID(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to load chat: %w", err)
	}
	if chat.UserID != userID {
		return fmt.Errorf("%w: chat %s belongs to another user", domain.ErrForbidden, chatID)
	}
	return nil
}
