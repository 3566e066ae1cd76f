package repositories

import (
	"context"

	"easyform/internal/models"
)

// UserRepository persists users and their API tokens.
type UserRepository interface {
	// Users
	GetOrCreateUser(ctx context.Context, id string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateInstructions(ctx context.Context, id, instructions string) error

	// API tokens
	CreateToken(ctx context.Context, token *models.APIToken) error
	ResolveToken(ctx context.Context, token string) (string, error)
	ListTokensByUser(ctx context.Context, userID string) ([]*models.APIToken, error)
	DeleteToken(ctx context.Context, userID, token string) error

	// Health
	Ping(ctx context.Context) error
}

// UserRepositoryError represents errors from the user repository
type UserRepositoryError struct {
	Operation string
	UserID    string
	Err       error
	Message   string
}

func (e *UserRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	prefix := e.Operation
	if e.UserID != "" {
		prefix += " (user: " + e.UserID + ")"
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *UserRepositoryError) Unwrap() error {
	return e.Err
}

// NewUserRepositoryError creates a new user repository error
func NewUserRepositoryError(operation, userID string, err error, message string) *UserRepositoryError {
	return &UserRepositoryError{
		Operation: operation,
		UserID:    userID,
		Err:       err,
		Message:   message,
	}
}

// TokenNotFoundError signals an unknown API token
func TokenNotFoundError() error {
	return NewUserRepositoryError("resolve_token", "", nil, "unknown API token")
}

// IsTokenNotFound reports whether err is a token-not-found error
func IsTokenNotFound(err error) bool {
	repoErr, ok := err.(*UserRepositoryError)
	return ok && repoErr.Operation == "resolve_token" && repoErr.Err == nil
}
