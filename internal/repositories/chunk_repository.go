package repositories

import (
	"context"

	"easyform/internal/models"
)

// ChunkRepository is the canonical store for document chunks. The vector
// indexes share ids with this store.
type ChunkRepository interface {
	// CreateChunks inserts a batch of chunks.
	CreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error

	// GetChunksByIDs returns the chunks that exist among the given ids.
	// Missing ids are tolerated and reported back to the caller.
	GetChunksByIDs(ctx context.Context, ids []string) ([]*models.DocumentChunk, []string, error)

	// GetChunksByFile returns a file's chunks ordered by chunk_index.
	GetChunksByFile(ctx context.Context, fileID string) ([]*models.DocumentChunk, error)

	// DeleteChunksByFile removes all chunks of a file and returns their ids.
	DeleteChunksByFile(ctx context.Context, fileID string) ([]string, error)

	// Health
	Ping(ctx context.Context) error
}

// ChunkRepositoryError represents errors from the chunk repository
type ChunkRepositoryError struct {
	Operation string
	ChunkID   string
	Err       error
	Message   string
}

func (e *ChunkRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	prefix := e.Operation
	if e.ChunkID != "" {
		prefix += " (chunk: " + e.ChunkID + ")"
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *ChunkRepositoryError) Unwrap() error {
	return e.Err
}

// NewChunkRepositoryError creates a new chunk repository error
func NewChunkRepositoryError(operation, chunkID string, err error, message string) *ChunkRepositoryError {
	return &ChunkRepositoryError{
		Operation: operation,
		ChunkID:   chunkID,
		Err:       err,
		Message:   message,
	}
}
