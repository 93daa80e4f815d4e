package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/adapters/llm"
	"github.com/MareskoY/tutor-ai/adapters/memory"
	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/domain/entities"
	"github.com/MareskoY/tutor-ai/domain/repositories"
	"github.com/MareskoY/tutor-ai/internal/auth"
	"github.com/MareskoY/tutor-ai/internal/ratelimit"
	"github.com/MareskoY/tutor-ai/usecase"
)

// MockMinter returns a fixed realtime session
type MockMinter struct {
	err  error
	last repositories.RealtimeSessionRequest
}

func (m *MockMinter) MintSession(ctx context.Context, req repositories.RealtimeSessionRequest) (json.RawMessage, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return json.RawMessage(`{"client_secret":{"value":"ek_test","expires_at":1}}`), nil
}

type testServer struct {
	echo   *echo.Echo
	tokens *auth.TokenManager
	minter *MockMinter
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	tokens, err := auth.NewTokenManager("test-secret")
	if err != nil {
		t.Fatalf("NewTokenManager failed: %v", err)
	}

	logger := zap.NewNop()
	store := memory.NewStore()
	minter := &MockMinter{}
	stream := usecase.NewStreamService(store.Users(), minter, ratelimit.NewMemoryLimiter(2, time.Minute), "gpt-4o-mini-realtime-preview-2024-12-17", "alloy", logger)
	calls := usecase.NewCallService(store, llm.NewMockLLM(), logger)
	users := usecase.NewUserService(store.Users(), logger)

	e := echo.New()
	InitRoutes(e, tokens, stream, calls, users, logger)
	return &testServer{echo: e, tokens: tokens, minter: minter}
}

func (s *testServer) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != "" {
		token, err := s.tokens.GenerateUserToken(userID, time.Hour)
		if err != nil {
			t.Fatalf("GenerateUserToken failed: %v", err)
		}
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Status != "ok" {
		t.Errorf("Unexpected health response %s", rec.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	s := setupServer(t)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", "missing_token"},
		{"wrong scheme", "Basic abc", "missing_token"},
		{"garbage token", "Bearer nope", "invalid_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/stream", strings.NewReader(`{}`))
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			s.echo.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("Expected 401, got %d", rec.Code)
			}
			var resp ErrorResponse
			json.Unmarshal(rec.Body.Bytes(), &resp)
			if resp.Error != tt.want {
				t.Errorf("Expected error %s, got %s", tt.want, resp.Error)
			}
		})
	}
}

func TestCreateStream(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodPost, "/api/stream", "user-1", `{"chatId":"chat-1","chatType":"math"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.StreamResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ClientSecret.Value != "ek_test" {
		t.Errorf("Expected client secret, got %s", rec.Body.String())
	}

	if rec := s.do(t, http.MethodPost, "/api/stream", "user-1", `{"chatId":"chat-1"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without chatType, got %d", rec.Code)
	}

	// the limiter admits two requests per minute and the 400 above consumed none
	s.do(t, http.MethodPost, "/api/stream", "user-1", `{"chatId":"chat-1","chatType":"math"}`)
	if rec := s.do(t, http.MethodPost, "/api/stream", "user-1", `{"chatId":"chat-1","chatType":"math"}`); rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 once the limit is reached, got %d", rec.Code)
	}
}

func TestCreateStream_UpstreamFailure(t *testing.T) {
	s := setupServer(t)
	s.minter.err = domain.ErrCredential

	rec := s.do(t, http.MethodPost, "/api/stream", "user-1", `{"chatId":"chat-1","chatType":"math"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", rec.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Message != "Failed to fetch session data" {
		t.Errorf("Unexpected message %q", resp.Message)
	}
}

func TestCallRecordFlow(t *testing.T) {
	s := setupServer(t)

	content := `{"messageType":"call","toolCallId":"call_1","toolName":"voiceCall","result":{"duration":0,"startTimestamp":"2025-01-01T09:00:00Z"}}`
	rec := s.do(t, http.MethodPost, "/api/message", "user-1", `{"id":"chat-1","chatType":"math","message":{"role":"call","content":`+content+`}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var saved domain.SaveMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil || !saved.Success || saved.MessageID == "" {
		t.Fatalf("Unexpected save response %s", rec.Body.String())
	}

	updated := strings.Replace(content, `"duration":0`, `"duration":5`, 1)
	rec = s.do(t, http.MethodPatch, "/api/message", "user-1", `{"id":"`+saved.MessageID+`","content":`+updated+`}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on update, got %d: %s", rec.Code, rec.Body.String())
	}

	if rec := s.do(t, http.MethodPatch, "/api/message", "user-2", `{"id":"`+saved.MessageID+`","content":`+updated+`}`); rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for another user, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPatch, "/api/message", "user-1", `{"id":"missing","content":{}}`); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown message, got %d", rec.Code)
	}

	batch := `{"chatId":"chat-1","callMessageId":"` + saved.MessageID + `","transcriptions":[` +
		`{"id":"e1","role":"user","text":"What is two plus three?","timestamp":"2025-01-01T09:00:01Z"},` +
		`{"id":"e2","role":"assistant","text":"Let's count together.","timestamp":"2025-01-01T09:00:03Z"}]}`
	rec = s.do(t, http.MethodPost, "/api/message/call-transcriptions", "user-1", batch)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on transcriptions, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/message/call-transcriptions?callMessageId="+saved.MessageID, "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on list, got %d", rec.Code)
	}
	var rows []entities.CallTranscription
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("Failed to decode transcriptions: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "e1" || rows[1].Role != entities.RoleAssistant {
		t.Errorf("Unexpected transcriptions %+v", rows)
	}

	if rec := s.do(t, http.MethodGet, "/api/message/call-transcriptions", "user-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without callMessageId, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/message/"+saved.MessageID+"/summary", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on summary, got %d: %s", rec.Code, rec.Body.String())
	}
	var summary domain.CallSummaryResponse
	json.Unmarshal(rec.Body.Bytes(), &summary)
	if !strings.Contains(summary.Summary, "2 messages") {
		t.Errorf("Unexpected summary %q", summary.Summary)
	}
}

func TestUserPreference(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodGet, "/api/user", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "{}" {
		t.Errorf("Expected no preference for a new user, got %s", body)
	}

	pref := `{"studentPreference":{"name":"Mia","age":"6","language":"Spanish","chats-preferences":{"math":"Use apples when counting"}}}`
	if rec := s.do(t, http.MethodPatch, "/api/user", "user-1", pref); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on update, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/user", "user-1", "")
	var resp domain.UserPreferenceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.StudentPreference == nil {
		t.Fatalf("Unexpected preference response %s", rec.Body.String())
	}
	if resp.StudentPreference.Name != "Mia" || resp.StudentPreference.ParentNote(entities.ChatTypeMath) != "Use apples when counting" {
		t.Errorf("Unexpected stored preference %+v", resp.StudentPreference)
	}

	// the saved age drives the voice session tuning
	if rec := s.do(t, http.MethodPost, "/api/stream", "user-1", `{"chatId":"chat-1","chatType":"math"}`); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on stream, got %d", rec.Code)
	}
	if got := s.minter.last.TurnDetection.SilenceDurationMs; got != 2500 {
		t.Errorf("Expected 2500ms silence for a six year old, got %d", got)
	}
	if !strings.Contains(s.minter.last.Instructions, "Use apples when counting") {
		t.Error("Expected the parent note in the instructions")
	}

	tests := []struct {
		name string
		body string
	}{
		{"missing preference", `{}`},
		{"non numeric age", `{"studentPreference":{"age":"six"}}`},
		{"unknown chat type", `{"studentPreference":{"chats-preferences":{"poetry":"rhymes"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(t, http.MethodPatch, "/api/user", "user-1", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
		})
	}

	if rec := s.do(t, http.MethodGet, "/api/user", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("Expected default Go collectors in metrics output")
	}
}
