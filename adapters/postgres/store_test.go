package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/domain/entities"
)

func TestMigrationsAreOrdered(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("Failed to read migrations: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("Expected at least 2 migrations, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Name() >= entries[i].Name() {
			t.Errorf("Migrations out of order: %s before %s", entries[i-1].Name(), entries[i].Name())
		}
		if !strings.HasSuffix(entries[i].Name(), ".sql") {
			t.Errorf("Unexpected migration file %s", entries[i].Name())
		}
	}
}

// TestStore_Integration requires a PostgreSQL database (skipped if POSTGRES_URL is not set)
func TestStore_Integration(t *testing.T) {
	connStr := os.Getenv("POSTGRES_URL")
	if connStr == "" {
		t.Skip("Skipping PostgreSQL integration test - POSTGRES_URL not set")
	}

	ctx := context.Background()
	store, err := Open(ctx, connStr, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close(ctx)

	// migrations must be safe to apply twice
	again, err := Open(ctx, connStr, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	again.Close(ctx)

	chatID := uuid.NewString()
	messageID := uuid.NewString()

	chat := &entities.Chat{ID: chatID, Title: "Call with", UserID: "user-1", Type: entities.ChatTypePhysics}
	if err := store.Chats().Create(ctx, chat); err != nil {
		t.Fatalf("Failed to create chat: %v", err)
	}
	if err := store.Messages().Create(ctx, &entities.Message{ID: messageID, ChatID: chatID, Role: entities.MessageRoleCall, Content: []byte(`{"messageType":"call"}`)}); err != nil {
		t.Fatalf("Failed to create message: %v", err)
	}
	if err := store.Messages().UpdateContent(ctx, uuid.NewString(), []byte(`{}`)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown message, got %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	rows := []entities.CallTranscription{
		{ID: uuid.NewString(), ChatID: chatID, CallMessageID: messageID, Role: entities.RoleAssistant, Text: "Hi!", CreatedAt: base.Add(time.Second)},
		{ID: uuid.NewString(), ChatID: chatID, CallMessageID: messageID, Role: entities.RoleUser, Text: "Hello", CreatedAt: base},
	}
	for i := 0; i < 2; i++ {
		if err := store.Transcriptions().Upsert(ctx, rows); err != nil {
			t.Fatalf("Upsert %d failed: %v", i, err)
		}
	}

	got, err := store.Transcriptions().ListByCallMessage(ctx, messageID)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(got) != 2 || got[0].Text != "Hello" {
		t.Errorf("Expected 2 ordered rows, got %+v", got)
	}

	userID := uuid.NewString()
	for _, age := range []string{"6", "9"} {
		if err := store.Users().UpdatePreference(ctx, userID, entities.StudentPreference{Name: "Mia", Age: age}); err != nil {
			t.Fatalf("UpdatePreference failed: %v", err)
		}
	}
	user, err := store.Users().GetByID(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if user.StudentPreference.Name != "Mia" || user.StudentPreference.Age != "9" {
		t.Errorf("Expected the latest preference, got %+v", user.StudentPreference)
	}
}
