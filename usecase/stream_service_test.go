package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/adapters/memory"
	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/domain/entities"
	"github.com/MareskoY/tutor-ai/domain/repositories"
)

// MockMinter records the last session request
type MockMinter struct {
	err      error
	requests []repositories.RealtimeSessionRequest
}

func (m *MockMinter) MintSession(ctx context.Context, req repositories.RealtimeSessionRequest) (json.RawMessage, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return json.RawMessage(`{"client_secret":{"value":"ek_test","expires_at":1}}`), nil
}

// MockLimiter admits a fixed number of requests
type MockLimiter struct {
	remaining int
	err       error
}

func (m *MockLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.remaining <= 0 {
		return false, nil
	}
	m.remaining--
	return true, nil
}

func newStreamService(t *testing.T, limiter *MockLimiter) (*StreamService, *MockMinter, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	minter := &MockMinter{}
	svc := NewStreamService(store.Users(), minter, limiter, "gpt-4o-mini-realtime-preview-2024-12-17", "", zap.NewNop())
	return svc, minter, store
}

func TestStreamService_CreateSession(t *testing.T) {
	svc, minter, store := newStreamService(t, &MockLimiter{remaining: 10})
	ctx := context.Background()

	err := store.Users().Create(ctx, &entities.User{
		ID:    "user-1",
		Email: "kid@example.com",
		StudentPreference: entities.StudentPreference{
			Name:             "Mia",
			Age:              "6",
			Language:         "German",
			ChatsPreferences: map[string]string{"math": "She likes counting apples."},
		},
	})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	session, err := svc.CreateSession(ctx, "user-1", domain.StreamRequest{ChatID: "chat-1", ChatType: entities.ChatTypeMath})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	var resp domain.StreamResponse
	if err := json.Unmarshal(session, &resp); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	if resp.ClientSecret.Value != "ek_test" {
		t.Errorf("Expected client secret ek_test, got %q", resp.ClientSecret.Value)
	}

	if len(minter.requests) != 1 {
		t.Fatalf("Expected 1 mint request, got %d", len(minter.requests))
	}
	req := minter.requests[0]
	if req.Voice != "alloy" {
		t.Errorf("Expected default voice alloy, got %q", req.Voice)
	}
	if req.ToolChoice != "auto" || len(req.Modalities) != 2 {
		t.Errorf("Unexpected session shape %+v", req)
	}
	if req.TurnDetection.SilenceDurationMs != 2500 || req.TurnDetection.Threshold != 0.3 || req.TurnDetection.PrefixPaddingMs != 700 {
		t.Errorf("Unexpected turn detection for a six year old: %+v", req.TurnDetection)
	}
	for _, want := range []string{"math tutor", `"Mia"`, "She likes counting apples.", `"Hi" in German`} {
		if !strings.Contains(req.Instructions, want) {
			t.Errorf("Expected instructions to contain %q", want)
		}
	}
}

func TestStreamService_UnknownUserUsesDefaults(t *testing.T) {
	svc, minter, _ := newStreamService(t, &MockLimiter{remaining: 1})

	_, err := svc.CreateSession(context.Background(), "ghost", domain.StreamRequest{ChatID: "c", ChatType: entities.ChatTypeDefault, Voice: "verse"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	req := minter.requests[0]
	if req.Voice != "verse" {
		t.Errorf("Expected requested voice, got %q", req.Voice)
	}
	if req.TurnDetection.SilenceDurationMs != 1300 {
		t.Errorf("Expected default age tuning 1300ms, got %d", req.TurnDetection.SilenceDurationMs)
	}
	if !strings.Contains(req.Instructions, `"Unknown"`) {
		t.Error("Expected placeholder student name")
	}
}

func TestStreamService_Errors(t *testing.T) {
	tests := []struct {
		name    string
		req     domain.StreamRequest
		limiter *MockLimiter
		mintErr error
		want    error
	}{
		{"missing chat id", domain.StreamRequest{ChatType: entities.ChatTypeMath}, &MockLimiter{remaining: 1}, nil, domain.ErrInvalidInput},
		{"missing chat type", domain.StreamRequest{ChatID: "c"}, &MockLimiter{remaining: 1}, nil, domain.ErrInvalidInput},
		{"rate limited", domain.StreamRequest{ChatID: "c", ChatType: entities.ChatTypeMath}, &MockLimiter{}, nil, domain.ErrRateLimited},
		{"upstream failure", domain.StreamRequest{ChatID: "c", ChatType: entities.ChatTypeMath}, &MockLimiter{remaining: 1}, domain.ErrCredential, domain.ErrCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, minter, _ := newStreamService(t, tt.limiter)
			minter.err = tt.mintErr

			_, err := svc.CreateSession(context.Background(), "user-1", tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestStreamService_LimiterFailureAdmits(t *testing.T) {
	svc, minter, _ := newStreamService(t, &MockLimiter{err: errors.New("redis down")})

	if _, err := svc.CreateSession(context.Background(), "user-1", domain.StreamRequest{ChatID: "c", ChatType: entities.ChatTypeMath}); err != nil {
		t.Fatalf("Expected request to be admitted, got %v", err)
	}
	if len(minter.requests) != 1 {
		t.Error("Expected session to be minted")
	}
}

func TestTurnDetectionFor(t *testing.T) {
	tests := []struct {
		age       string
		silence   int
		threshold float64
		padding   int
	}{
		{"3", 3000, 0.3, 700},
		{"5", 3000, 0.3, 700},
		{"5.5", 2500, 0.3, 700},
		{"7", 2500, 0.3, 700},
		{"8", 1700, 0.5, 500},
		{"10", 1300, 0.5, 500},
		{"", 1300, 0.5, 500},
		{"13", 1000, 0.5, 500},
		{"16", 800, 0.5, 500},
		{"30", 600, 0.5, 500},
		{"2", 600, 0.5, 500},
		{"ten", 600, 0.5, 500},
	}

	for _, tt := range tests {
		t.Run("age "+tt.age, func(t *testing.T) {
			got := TurnDetectionFor(entities.StudentPreference{Age: tt.age})
			if got.Type != "server_vad" || !got.CreateResponse {
				t.Errorf("Unexpected detection type %+v", got)
			}
			if got.SilenceDurationMs != tt.silence || got.Threshold != tt.threshold || got.PrefixPaddingMs != tt.padding {
				t.Errorf("Expected %d/%v/%d, got %d/%v/%d",
					tt.silence, tt.threshold, tt.padding,
					got.SilenceDurationMs, got.Threshold, got.PrefixPaddingMs)
			}
		})
	}
}

func TestBuildCallTutorPrompt(t *testing.T) {
	prompt := BuildCallTutorPrompt(entities.ChatTypeHistory, entities.StudentPreference{})

	if !strings.HasPrefix(prompt, entities.ChatTypeHistory.Config().Prompt) {
		t.Error("Expected prompt to open with the chat type prompt")
	}
	for _, want := range []string{"unknown age", "unknown country", "no specific", `"Hi" in English`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}
	if strings.Contains(prompt, "Parent/Guardian note") {
		t.Error("Expected no parent note section without a note")
	}

	unknown := BuildCallTutorPrompt("astronomy", entities.StudentPreference{})
	if !strings.HasPrefix(unknown, "1) ") {
		t.Error("Expected unknown chat type to start with the rules")
	}
}
