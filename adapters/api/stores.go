package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/domain/entities"
	"github.com/MareskoY/tutor-ai/domain/repositories"
)

// CredentialClient obtains realtime credentials from POST /api/stream
type CredentialClient struct {
	client   *Client
	chatID   string
	chatType entities.ChatType
	voice    string
}

// NewCredentialClient creates a credential provider for one chat
func NewCredentialClient(client *Client, chatID string, chatType entities.ChatType, voice string) *CredentialClient {
	return &CredentialClient{client: client, chatID: chatID, chatType: chatType, voice: voice}
}

var _ repositories.CredentialProvider = (*CredentialClient)(nil)

// AcquireEphemeralCredential implements repositories.CredentialProvider
func (c *CredentialClient) AcquireEphemeralCredential(ctx context.Context) (string, error) {
	var resp domain.StreamResponse
	err := c.client.do(ctx, http.MethodPost, "/api/stream", domain.StreamRequest{
		ChatID:   c.chatID,
		ChatType: c.chatType,
		Voice:    c.voice,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCredential, err)
	}
	if resp.ClientSecret.Value == "" {
		return "", fmt.Errorf("%w: response carries no client secret", domain.ErrCredential)
	}
	return resp.ClientSecret.Value, nil
}

// CallRecordClient stores call records as role=call chat messages. It keeps
// the content of records it created so updates only change the duration.
type CallRecordClient struct {
	client   *Client
	chatType entities.ChatType
	now      func() time.Time
	logger   *zap.Logger

	// only the latest record is tracked; a client drives one call at a time
	mu        sync.Mutex
	currentID string
	current   entities.CallContent
}

// NewCallRecordClient creates a call record store
func NewCallRecordClient(client *Client, chatType entities.ChatType, logger *zap.Logger) *CallRecordClient {
	return &CallRecordClient{
		client:   client,
		chatType: chatType,
		now:      time.Now,
		logger:   logger,
	}
}

var _ repositories.CallRecordStore = (*CallRecordClient)(nil)

// CreateCallRecord implements repositories.CallRecordStore
func (c *CallRecordClient) CreateCallRecord(ctx context.Context, chatID string) (string, error) {
	id := uuid.New().String()
	content := entities.NewCallContent("call_"+uuid.New().String(), c.now(), 0)

	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to encode call content: %w", err)
	}

	var resp domain.SaveMessageResponse
	err = c.client.do(ctx, http.MethodPost, "/api/message", domain.SaveMessageRequest{
		ID: chatID,
		Message: domain.MessagePayload{
			ID:      id,
			Role:    entities.MessageRoleCall,
			Content: raw,
		},
		ChatType: c.chatType,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to create call record: %w", err)
	}
	if resp.MessageID != "" {
		id = resp.MessageID
	}

	c.mu.Lock()
	c.currentID, c.current = id, content
	c.mu.Unlock()

	c.logger.Info("Created call record", zap.String("callRecordID", id), zap.String("chatID", chatID))
	return id, nil
}

// UpdateCallRecord implements repositories.CallRecordStore
func (c *CallRecordClient) UpdateCallRecord(ctx context.Context, callRecordID string, durationSeconds int) error {
	c.mu.Lock()
	content, ok := c.current, c.currentID == callRecordID && callRecordID != ""
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("call record %s: %w", callRecordID, domain.ErrNotFound)
	}

	content.Result.Duration = durationSeconds
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to encode call content: %w", err)
	}

	if err := c.client.do(ctx, http.MethodPatch, "/api/message", domain.UpdateMessageRequest{
		ID:      callRecordID,
		Content: raw,
	}, nil); err != nil {
		return fmt.Errorf("failed to update call record: %w", err)
	}

	c.mu.Lock()
	if c.currentID == callRecordID {
		c.current = content
	}
	c.mu.Unlock()
	return nil
}

// TranscriptClient appends transcript entries via POST /api/message/call-transcriptions
type TranscriptClient struct {
	client *Client
}

// NewTranscriptClient creates a transcript store
func NewTranscriptClient(client *Client) *TranscriptClient {
	return &TranscriptClient{client: client}
}

var _ repositories.TranscriptStore = (*TranscriptClient)(nil)

// AppendTranscriptEntries implements repositories.TranscriptStore
func (c *TranscriptClient) AppendTranscriptEntries(ctx context.Context, chatID, callRecordID string, entries []entities.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := c.client.do(ctx, http.MethodPost, "/api/message/call-transcriptions", domain.SaveTranscriptionsRequest{
		ChatID:         chatID,
		CallMessageID:  callRecordID,
		Transcriptions: entries,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to save call transcriptions: %w", err)
	}
	return nil
}
