package repositories

import (
	"context"
	"time"

	"easyform/internal/models"
)

// FormRequestRepository persists form requests, their append-only progress
// log, and their resulting actions. Progress and actions cascade on delete.
type FormRequestRepository interface {
	// Request rows
	CreateRequest(ctx context.Context, request *models.FormRequest) error
	GetRequest(ctx context.Context, id string) (*models.FormRequest, error)
	GetActiveRequestByUser(ctx context.Context, userID string) (*models.FormRequest, error)
	UpdateStatus(ctx context.Context, id string, status models.FormRequestStatus, fieldsDetected *int, errorMessage string) error
	DeleteRequest(ctx context.Context, id string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Progress log
	LogProgress(ctx context.Context, requestID, stage, message string, progress *int, payload map[string]interface{}) error
	GetProgress(ctx context.Context, requestID string) ([]*models.FormRequestProgress, error)

	// Actions
	SaveActions(ctx context.Context, requestID string, actions []*models.FormAction) error
	GetActions(ctx context.Context, requestID string) ([]*models.FormAction, error)

	// Health
	Ping(ctx context.Context) error
}

// RequestRepositoryError represents errors from the form request repository
type RequestRepositoryError struct {
	Operation string
	RequestID string
	Err       error
	Message   string
}

func (e *RequestRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	prefix := e.Operation
	if e.RequestID != "" {
		prefix += " (request: " + e.RequestID + ")"
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *RequestRepositoryError) Unwrap() error {
	return e.Err
}

// NewRequestRepositoryError creates a new form request repository error
func NewRequestRepositoryError(operation, requestID string, err error, message string) *RequestRepositoryError {
	return &RequestRepositoryError{
		Operation: operation,
		RequestID: requestID,
		Err:       err,
		Message:   message,
	}
}

// RequestNotFoundError signals a missing request row
func RequestNotFoundError(requestID string) error {
	return NewRequestRepositoryError("get_request", requestID, nil, "form request not found: "+requestID)
}

// IsRequestNotFound reports whether err is a request-not-found error
func IsRequestNotFound(err error) bool {
	repoErr, ok := err.(*RequestRepositoryError)
	return ok && repoErr.Operation == "get_request" && repoErr.Err == nil
}
