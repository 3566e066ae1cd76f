package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"easyform/internal/log"
	"easyform/internal/models"
	"easyform/internal/repositories"
)

const tokenRandomBytes = 24

// UserService manages users, personal instructions and API tokens.
type UserService struct {
	userRepo        repositories.UserRepository
	instructionsMax int
	logger          *slog.Logger
}

// NewUserService creates the user service. instructionsMax bounds the length
// of stored personal instructions.
func NewUserService(userRepo repositories.UserRepository, instructionsMax int) *UserService {
	return &UserService{
		userRepo:        userRepo,
		instructionsMax: instructionsMax,
		logger:          log.WithModule("user_service"),
	}
}

// GetOrCreateUser resolves a user record, creating it on first sight.
func (s *UserService) GetOrCreateUser(ctx context.Context, id string) (*models.User, error) {
	return s.userRepo.GetOrCreateUser(ctx, id)
}

// PersonalInstructions returns the user's stored instructions, empty when the
// user is unknown.
func (s *UserService) PersonalInstructions(ctx context.Context, userID string) string {
	user, err := s.userRepo.GetUser(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load personal instructions", "user_id", userID, "error", err)
		return ""
	}
	return user.PersonalInstructions
}

// UpdateInstructions sanitizes and stores the user's personal instructions.
func (s *UserService) UpdateInstructions(ctx context.Context, userID, instructions string) error {
	instructions = SanitizeText(instructions)
	if len(instructions) > s.instructionsMax {
		return &models.ValidationError{
			Field:   "personal_instructions",
			Message: fmt.Sprintf("personal instructions exceed %d characters", s.instructionsMax),
		}
	}
	if _, err := s.userRepo.GetOrCreateUser(ctx, userID); err != nil {
		return err
	}
	return s.userRepo.UpdateInstructions(ctx, userID, instructions)
}

// CreateToken issues a new API token for the user.
func (s *UserService) CreateToken(ctx context.Context, userID, name string) (*models.APIToken, error) {
	random := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(random); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	if _, err := s.userRepo.GetOrCreateUser(ctx, userID); err != nil {
		return nil, err
	}

	token := &models.APIToken{
		Token:     models.TokenPrefix + hex.EncodeToString(random),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := s.userRepo.CreateToken(ctx, token); err != nil {
		return nil, err
	}
	s.logger.Info("API token created", "user_id", userID, "name", name)
	return token, nil
}

// ResolveToken maps a presented bearer token to its owning user id.
func (s *UserService) ResolveToken(ctx context.Context, token string) (string, error) {
	return s.userRepo.ResolveToken(ctx, token)
}

// ListTokens returns the user's tokens, oldest first.
func (s *UserService) ListTokens(ctx context.Context, userID string) ([]*models.APIToken, error) {
	return s.userRepo.ListTokensByUser(ctx, userID)
}

// DeleteToken revokes one of the user's tokens.
func (s *UserService) DeleteToken(ctx context.Context, userID, token string) error {
	return s.userRepo.DeleteToken(ctx, userID, token)
}
