package repositories

import (
	"context"

	"easyform/internal/models"
)

// VectorRepository abstracts one ChromaDB collection pair member. The text
// and image indexes are two instances of this interface over different
// collections; both key vectors by chunk id.
type VectorRepository interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context) error

	// AddEmbeddings stores vectors keyed by chunk id. documents carries the
	// embedded text (chunk content or OCR caption) for inspection.
	AddEmbeddings(ctx context.Context, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]interface{}) error

	// Query returns the topK nearest hits for the embedding, filtered to one
	// user's chunks.
	Query(ctx context.Context, embedding []float32, topK int, userID string) ([]models.VectorHit, error)

	// DeleteByFile removes every vector belonging to a file.
	DeleteByFile(ctx context.Context, userID, fileID string) (int, error)

	// DeleteByIDs removes specific vectors.
	DeleteByIDs(ctx context.Context, ids []string) error

	// Health
	Ping(ctx context.Context) error
}

// VectorRepositoryError represents errors from the vector repository
type VectorRepositoryError struct {
	Operation  string
	Collection string
	Err        error
	Message    string
}

func (e *VectorRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	prefix := e.Operation
	if e.Collection != "" {
		prefix += " (collection: " + e.Collection + ")"
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *VectorRepositoryError) Unwrap() error {
	return e.Err
}

// NewVectorRepositoryError creates a new vector repository error
func NewVectorRepositoryError(operation, collection string, err error, message string) *VectorRepositoryError {
	return &VectorRepositoryError{
		Operation:  operation,
		Collection: collection,
		Err:        err,
		Message:    message,
	}
}
