package models

import (
	"time"
)

// File represents an uploaded user document
type File struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	Status      FileStatus `json:"status"`
	PageCount   *int       `json:"page_count,omitempty"`
	ChunkCount  int        `json:"chunk_count"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// FileStatus represents the indexing status of a file
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
)

// IsValid checks if file status is valid
func (s FileStatus) IsValid() bool {
	switch s {
	case FileStatusPending, FileStatusProcessing, FileStatusCompleted, FileStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of file status
func (s FileStatus) String() string {
	return string(s)
}

// AllowedContentTypes is the upload whitelist.
var AllowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/gif":       true,
	"image/webp":      true,
}

// IsImageContentType reports whether the content type is a whitelisted image.
func IsImageContentType(contentType string) bool {
	return AllowedContentTypes[contentType] && contentType != "application/pdf"
}

// FileDTO represents the API view of a file
type FileDTO struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	Status      string `json:"status"`
	PageCount   *int   `json:"page_count,omitempty"`
	ChunkCount  int    `json:"chunk_count"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ToDTO converts File domain model to DTO
func (f *File) ToDTO() FileDTO {
	return FileDTO{
		ID:          f.ID,
		Filename:    f.Filename,
		ContentType: f.ContentType,
		SizeBytes:   f.SizeBytes,
		Status:      string(f.Status),
		PageCount:   f.PageCount,
		ChunkCount:  f.ChunkCount,
		Error:       f.Error,
		CreatedAt:   f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   f.UpdatedAt.Format(time.RFC3339),
	}
}

// Validate checks if the file is valid
func (f *File) Validate() error {
	if f.ID == "" {
		return &ValidationError{Field: "id", Message: "file ID is required"}
	}
	if f.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "user ID is required"}
	}
	if f.Filename == "" {
		return &ValidationError{Field: "filename", Message: "filename is required"}
	}
	if !AllowedContentTypes[f.ContentType] {
		return &ValidationError{Field: "content_type", Message: "unsupported content type: " + f.ContentType}
	}
	if f.SizeBytes < 0 {
		return &ValidationError{Field: "size_bytes", Message: "file size cannot be negative"}
	}
	if !f.Status.IsValid() {
		return &ValidationError{Field: "status", Message: "invalid file status: " + string(f.Status)}
	}
	return nil
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
