package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/domain/repositories"
)

const sessionsPath = "realtime/sessions"

// SessionMinter mints ephemeral realtime sessions through the OpenAI API
type SessionMinter struct {
	client openai.Client
	logger *zap.Logger
}

// NewSessionMinter creates a minter. baseURL may be empty for the public API.
func NewSessionMinter(apiKey, baseURL string, logger *zap.Logger, opts ...option.RequestOption) (*SessionMinter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	clientOpts = append(clientOpts, opts...)

	return &SessionMinter{
		client: openai.NewClient(clientOpts...),
		logger: logger,
	}, nil
}

var _ repositories.RealtimeSessionMinter = (*SessionMinter)(nil)

// MintSession implements repositories.RealtimeSessionMinter
func (m *SessionMinter) MintSession(ctx context.Context, req repositories.RealtimeSessionRequest) (json.RawMessage, error) {
	var session json.RawMessage
	if err := m.client.Post(ctx, sessionsPath, req, &session); err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			m.logger.Error("Realtime session request rejected",
				zap.Int("status", apiErr.StatusCode),
				zap.String("model", req.Model))
			if apiErr.StatusCode == http.StatusTooManyRequests {
				return nil, fmt.Errorf("%w: upstream: %v", domain.ErrRateLimited, err)
			}
		}
		return nil, fmt.Errorf("%w: failed to create realtime session: %v", domain.ErrCredential, err)
	}

	m.logger.Debug("Minted realtime session", zap.String("model", req.Model), zap.String("voice", req.Voice))
	return session, nil
}
