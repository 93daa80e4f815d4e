package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/adapters/llm"
	"github.com/MareskoY/tutor-ai/adapters/memory"
	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/domain/entities"
)

// MockFailingLLM fails every generation
type MockFailingLLM struct{}

func (MockFailingLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("model unavailable")
}

func newCallService() (*CallService, *memory.Store) {
	store := memory.NewStore()
	svc := NewCallService(store, llm.NewMockLLM(), zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC) }
	return svc, store
}

func callContent(t *testing.T, duration int) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(entities.NewCallContent("call_1", time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), duration))
	if err != nil {
		t.Fatalf("Failed to encode call content: %v", err)
	}
	return raw
}

func TestCallService_SaveMessageCreatesChat(t *testing.T) {
	svc, store := newCallService()
	ctx := context.Background()

	id, err := svc.SaveMessage(ctx, "user-1", domain.SaveMessageRequest{
		ID:       "chat-1",
		ChatType: entities.ChatTypeMath,
		Message:  domain.MessagePayload{Role: entities.MessageRoleCall, Content: callContent(t, 0)},
	})
	if err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected generated message id")
	}

	chat, err := store.Chats().GetByID(ctx, "chat-1")
	if err != nil {
		t.Fatalf("Expected chat to be created: %v", err)
	}
	if chat.Title != "Call with" || chat.UserID != "user-1" || chat.Type != entities.ChatTypeMath {
		t.Errorf("Unexpected chat %+v", chat)
	}

	second, err := svc.SaveMessage(ctx, "user-1", domain.SaveMessageRequest{
		ID:      "chat-1",
		Message: domain.MessagePayload{ID: "msg-2", Role: "user", Content: json.RawMessage(`"hello"`)},
	})
	if err != nil {
		t.Fatalf("Second SaveMessage failed: %v", err)
	}
	if second != "msg-2" {
		t.Errorf("Expected client supplied id msg-2, got %s", second)
	}
}

func TestCallService_SaveMessageRejects(t *testing.T) {
	svc, _ := newCallService()
	ctx := context.Background()

	if _, err := svc.SaveMessage(ctx, "owner", domain.SaveMessageRequest{
		ID:      "chat-1",
		Message: domain.MessagePayload{Role: "call", Content: callContent(t, 0)},
	}); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	tests := []struct {
		name   string
		userID string
		req    domain.SaveMessageRequest
		want   error
	}{
		{"missing chat id", "owner", domain.SaveMessageRequest{Message: domain.MessagePayload{Role: "call", Content: json.RawMessage(`{}`)}}, domain.ErrInvalidInput},
		{"missing content", "owner", domain.SaveMessageRequest{ID: "chat-1", Message: domain.MessagePayload{Role: "call"}}, domain.ErrInvalidInput},
		{"foreign chat", "intruder", domain.SaveMessageRequest{ID: "chat-1", Message: domain.MessagePayload{Role: "call", Content: json.RawMessage(`{}`)}}, domain.ErrForbidden},
		{"unknown chat type", "owner", domain.SaveMessageRequest{ID: "chat-2", ChatType: "astronomy", Message: domain.MessagePayload{Role: "call", Content: json.RawMessage(`{}`)}}, domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SaveMessage(ctx, tt.userID, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCallService_UpdateMessage(t *testing.T) {
	svc, store := newCallService()
	ctx := context.Background()

	id, err := svc.SaveMessage(ctx, "user-1", domain.SaveMessageRequest{
		ID:      "chat-1",
		Message: domain.MessagePayload{Role: "call", Content: callContent(t, 0)},
	})
	if err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	if err := svc.UpdateMessage(ctx, "user-1", domain.UpdateMessageRequest{ID: id, Content: callContent(t, 42)}); err != nil {
		t.Fatalf("UpdateMessage failed: %v", err)
	}

	msg, err := store.Messages().GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	content, ok := entities.ParseCallContent(msg.Content)
	if !ok || content.Result.Duration != 42 {
		t.Errorf("Expected duration 42, got %+v", content)
	}

	if err := svc.UpdateMessage(ctx, "someone-else", domain.UpdateMessageRequest{ID: id, Content: callContent(t, 1)}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
	if err := svc.UpdateMessage(ctx, "user-1", domain.UpdateMessageRequest{ID: "missing", Content: callContent(t, 1)}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCallService_Transcriptions(t *testing.T) {
	svc, _ := newCallService()
	ctx := context.Background()

	callID, err := svc.SaveMessage(ctx, "user-1", domain.SaveMessageRequest{
		ID:      "chat-1",
		Message: domain.MessagePayload{Role: "call", Content: callContent(t, 0)},
	})
	if err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	req := domain.SaveTranscriptionsRequest{
		ChatID:        "chat-1",
		CallMessageID: callID,
		Transcriptions: []entities.TranscriptEntry{
			{ID: "e2", Role: entities.RoleAssistant, Text: "Five!", Timestamp: base.Add(2 * time.Second)},
			{ID: "e1", Role: entities.RoleUser, Text: "What is two plus three?", Timestamp: base},
		},
	}

	n, err := svc.SaveTranscriptions(ctx, "user-1", req)
	if err != nil || n != 2 {
		t.Fatalf("SaveTranscriptions returned %d, %v", n, err)
	}
	if _, err := svc.SaveTranscriptions(ctx, "user-1", req); err != nil {
		t.Fatalf("Repeated SaveTranscriptions failed: %v", err)
	}

	rows, err := svc.ListTranscriptions(ctx, "user-1", callID)
	if err != nil {
		t.Fatalf("ListTranscriptions failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected re-flush to be idempotent, got %d rows", len(rows))
	}
	if rows[0].ID != "e1" || rows[1].ID != "e2" {
		t.Errorf("Expected rows ordered by timestamp, got %s, %s", rows[0].ID, rows[1].ID)
	}
	if !rows[0].CreatedAt.Equal(base) {
		t.Errorf("Expected createdAt from entry timestamp, got %v", rows[0].CreatedAt)
	}

	if _, err := svc.ListTranscriptions(ctx, "intruder", callID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
	if _, err := svc.ListTranscriptions(ctx, "user-1", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if n, err := svc.SaveTranscriptions(ctx, "user-1", domain.SaveTranscriptionsRequest{ChatID: "chat-1", CallMessageID: callID}); err != nil || n != 0 {
		t.Errorf("Expected empty batch to be a no-op, got %d, %v", n, err)
	}

	summary, err := svc.Summarize(ctx, "user-1", callID)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary != "The student and the tutor exchanged 2 messages during the call." {
		t.Errorf("Unexpected summary %q", summary)
	}
}

func TestCallService_SummarizeErrors(t *testing.T) {
	svc, _ := newCallService()
	ctx := context.Background()

	if _, err := svc.Summarize(ctx, "user-1", "no-such-call"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for empty transcript, got %v", err)
	}

	if _, err := svc.SaveTranscriptions(ctx, "user-1", domain.SaveTranscriptionsRequest{
		ChatID:         "chat-1",
		CallMessageID:  "call-1",
		Transcriptions: []entities.TranscriptEntry{{ID: "e1", Role: entities.RoleUser, Text: "hi"}},
	}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown chat, got %v", err)
	}

	svc.llm = MockFailingLLM{}
	if _, err := svc.SaveMessage(ctx, "user-1", domain.SaveMessageRequest{
		ID:      "chat-1",
		Message: domain.MessagePayload{ID: "call-1", Role: "call", Content: callContent(t, 0)},
	}); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	if _, err := svc.SaveTranscriptions(ctx, "user-1", domain.SaveTranscriptionsRequest{
		ChatID:         "chat-1",
		CallMessageID:  "call-1",
		Transcriptions: []entities.TranscriptEntry{{ID: "e1", Role: entities.RoleUser, Text: "hi"}},
	}); err != nil {
		t.Fatalf("SaveTranscriptions failed: %v", err)
	}
	if _, err := svc.Summarize(ctx, "user-1", "call-1"); err == nil {
		t.Error("Expected model failure to surface")
	}
}
