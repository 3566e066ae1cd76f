package repositories

import (
	"context"

	"easyform/internal/models"
)

// FileRepository persists uploaded file metadata. File bytes are not kept
// after ingestion; only chunks and vectors survive.
type FileRepository interface {
	CreateFile(ctx context.Context, file *models.File) error
	GetFile(ctx context.Context, id string) (*models.File, error)
	ListFilesByUser(ctx context.Context, userID string) ([]*models.File, error)
	UpdateFile(ctx context.Context, file *models.File) error
	DeleteFile(ctx context.Context, id string) error

	// Health
	Ping(ctx context.Context) error
}

// FileRepositoryError represents errors from the file repository
type FileRepositoryError struct {
	Operation string
	FileID    string
	Err       error
	Message   string
}

func (e *FileRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	prefix := e.Operation
	if e.FileID != "" {
		prefix += " (file: " + e.FileID + ")"
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *FileRepositoryError) Unwrap() error {
	return e.Err
}

// NewFileRepositoryError creates a new file repository error
func NewFileRepositoryError(operation, fileID string, err error, message string) *FileRepositoryError {
	return &FileRepositoryError{
		Operation: operation,
		FileID:    fileID,
		Err:       err,
		Message:   message,
	}
}

// FileNotFoundError signals a missing file row
func FileNotFoundError(fileID string) error {
	return NewFileRepositoryError("get_file", fileID, nil, "file not found: "+fileID)
}

// IsFileNotFound reports whether err is a file-not-found error
func IsFileNotFound(err error) bool {
	repoErr, ok := err.(*FileRepositoryError)
	return ok && repoErr.Operation == "get_file" && repoErr.Err == nil
}
