package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/domain/entities"
	"github.com/MareskoY/tutor-ai/domain/repositories"
)

// UserService reads and edits what the tutor knows about a student
type UserService struct {
	users  repositories.UserRepository
	logger *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(users repositories.UserRepository, logger *zap.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// GetPreference returns the stored preference, or nil when the user has
// never saved one
func (s *UserService) GetPreference(ctx context.Context, userID string) (*entities.StudentPreference, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user.StudentPreference, nil
}

// UpdatePreference replaces the student preference of userID
func (s *UserService) UpdatePreference(ctx context.Context, userID string, pref *entities.StudentPreference) error {
	if pref == nil {
		return fmt.Errorf("%w: studentPreference is required", domain.ErrInvalidInput)
	}
	if err := pref.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	if err := s.users.UpdatePreference(ctx, userID, *pref); err != nil {
		return fmt.Errorf("failed to update student preference: %w", err)
	}

	s.logger.Info("Student preference updated",
		zap.String("userID", userID),
		zap.String("age", pref.Age),
		zap.String("language", pref.Language))
	return nil
}
