package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/domain/entities"
	"github.com/MareskoY/tutor-ai/domain/repositories"
	"github.com/MareskoY/tutor-ai/internal/metrics"
	"github.com/MareskoY/tutor-ai/internal/ratelimit"
)

const defaultVoice = "alloy"

// StreamService mints ephemeral realtime sessions tuned to the student
type StreamService struct {
	users   repositories.UserRepository
	minter  repositories.RealtimeSessionMinter
	limiter ratelimit.Limiter
	model   string
	voice   string
	logger  *zap.Logger
}

// NewStreamService creates a new stream service. An empty voice falls back to alloy.
func NewStreamService(
	users repositories.UserRepository,
	minter repositories.RealtimeSessionMinter,
	limiter ratelimit.Limiter,
	model, voice string,
	logger *zap.Logger,
) *StreamService {
	if voice == "" {
		voice = defaultVoice
	}
	return &StreamService{
		users:   users,
		minter:  minter,
		limiter: limiter,
		model:   model,
		voice:   voice,
		logger:  logger,
	}
}

// CreateSession builds the tutor instructions for the user and chat type and
// returns the provider's session JSON, which carries client_secret.value
func (s *StreamService) CreateSession(ctx context.Context, userID string, req domain.StreamRequest) (json.RawMessage, error) {
	if req.ChatID == "" || req.ChatType == "" {
		return nil, fmt.Errorf("%w: chatId and chatType are required", domain.ErrInvalidInput)
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, userID)
		if err != nil {
			s.logger.Warn("Rate limiter unavailable, admitting request", zap.String("userID", userID), zap.Error(err))
		} else if !allowed {
			metrics.CredentialRequests.WithLabelValues("rate_limited").Inc()
			return nil, domain.ErrRateLimited
		}
	}

	pref, err := s.studentPreference(ctx, userID)
	if err != nil {
		metrics.CredentialRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	voice := req.Voice
	if voice == "" {
		voice = s.voice
	}

	session, err := s.minter.MintSession(ctx, repositories.RealtimeSessionRequest{
		Model:         s.model,
		Voice:         voice,
		Modalities:    []string{"audio", "text"},
		Instructions:  BuildCallTutorPrompt(req.ChatType, pref),
		ToolChoice:    "auto",
		TurnDetection: TurnDetectionFor(pref),
	})
	if err != nil {
		status := "error"
		if errors.Is(err, domain.ErrRateLimited) {
			status = "upstream_rate_limited"
		}
		metrics.CredentialRequests.WithLabelValues(status).Inc()
		s.logger.Error("Failed to mint realtime session",
			zap.String("userID", userID),
			zap.String("chatID", req.ChatID),
			zap.Error(err))
		return nil, err
	}

	metrics.CredentialRequests.WithLabelValues("ok").Inc()
	s.logger.Info("Realtime session minted",
		zap.String("userID", userID),
		zap.String("chatID", req.ChatID),
		zap.String("chatType", string(req.ChatType)),
		zap.String("voice", voice))
	return session, nil
}

// studentPreference returns the stored preference; users without a record get
// the empty preference
func (s *StreamService) studentPreference(ctx context.Context, userID string) (entities.StudentPreference, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return entities.StudentPreference{}, nil
	}
	if err != nil {
		return entities.StudentPreference{}, fmt.Errorf("failed to load user: %w", err)
	}
	return user.StudentPreference, nil
}

// TurnDetectionFor tunes server VAD to the student's age: younger children
// get longer silences and a more sensitive threshold
func TurnDetectionFor(pref entities.StudentPreference) repositories.TurnDetection {
	age, ok := pref.AgeYears()
	if !ok {
		// unparsable ages match no bracket
		age = -1
	}
	return repositories.TurnDetection{
		Type:              "server_vad",
		Threshold:         vadThreshold(age),
		PrefixPaddingMs:   prefixPadding(age),
		SilenceDurationMs: silenceDuration(age),
		CreateResponse:    true,
	}
}

func silenceDuration(age float64) int {
	switch {
	case age >= 3 && age <= 5:
		return 3000
	case age > 5 && age <= 7:
		return 2500
	case age > 7 && age <= 9:
		return 1700
	case age > 9 && age <= 12:
		return 1300
	case age > 12 && age <= 14:
		return 1000
	case age > 14 && age <= 17:
		return 800
	default:
		return 600
	}
}

func vadThreshold(age float64) float64 {
	if age >= 3 && age <= 7 {
		return 0.3
	}
	return 0.5
}

func prefixPadding(age float64) int {
	if age >= 3 && age <= 7 {
		return 700
	}
	return 500
}
