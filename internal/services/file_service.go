package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"easyform/internal/log"
	"easyform/internal/models"
	"easyform/internal/repositories"
)

// FileService handles upload admission and drives background ingestion
// through the retrieval stack.
type FileService struct {
	fileRepo       repositories.FileRepository
	rag            *RAGService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewFileService creates the file service.
func NewFileService(fileRepo repositories.FileRepository, rag *RAGService, maxUploadBytes int64) *FileService {
	return &FileService{
		fileRepo:       fileRepo,
		rag:            rag,
		maxUploadBytes: maxUploadBytes,
		logger:         log.WithModule("file_service"),
	}
}

// Upload validates the file, persists a pending record and starts background
// ingestion. The raw bytes are not retained beyond ingestion.
func (s *FileService) Upload(ctx context.Context, userID, filename, contentType string, data []byte) (*models.File, error) {
	if int64(len(data)) > s.maxUploadBytes {
		return nil, &models.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file exceeds maximum size of %d bytes", s.maxUploadBytes),
		}
	}
	if !models.AllowedContentTypes[contentType] {
		return nil, &models.ValidationError{
			Field:   "content_type",
			Message: "unsupported content type: " + contentType,
		}
	}

	now := time.Now()
	file := &models.File{
		ID:          uuid.New().String(),
		UserID:      userID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Status:      models.FileStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	if err := s.fileRepo.CreateFile(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	// Ingestion outlives the upload request.
	go func() {
		ingestCtx := context.Background()
		if err := s.rag.IngestFile(ingestCtx, file, data); err != nil {
			s.logger.Error("background ingestion failed", "file_id", file.ID, "error", err)
		}
	}()

	s.logger.Info("file upload accepted",
		"file_id", file.ID, "user_id", userID, "filename", filename, "size", len(data))
	return file, nil
}

// GetFileForUser fetches a file and enforces ownership.
func (s *FileService) GetFileForUser(ctx context.Context, fileID, userID string) (*models.File, error) {
	file, err := s.fileRepo.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.UserID != userID {
		return nil, repositories.FileNotFoundError(fileID)
	}
	return file, nil
}

// ListFiles returns the user's files, newest first.
func (s *FileService) ListFiles(ctx context.Context, userID string) ([]*models.File, error) {
	return s.fileRepo.ListFilesByUser(ctx, userID)
}

// DeleteFile removes the file record with its chunks and vectors.
func (s *FileService) DeleteFile(ctx context.Context, fileID, userID string) error {
	if _, err := s.GetFileForUser(ctx, fileID, userID); err != nil {
		return err
	}
	return s.rag.DeleteFile(ctx, userID, fileID)
}
