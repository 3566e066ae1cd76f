package models

import (
	"time"
)

// ChunkType distinguishes text chunks from extracted images
type ChunkType string

const (
	ChunkTypeText  ChunkType = "TEXT"
	ChunkTypeImage ChunkType = "IMAGE"
)

// IsValid checks if chunk type is valid
func (t ChunkType) IsValid() bool {
	return t == ChunkTypeText || t == ChunkTypeImage
}

// String returns the string representation of chunk type
func (t ChunkType) String() string {
	return string(t)
}

// DocumentChunk is the unit of retrieval. Its ID doubles as the vector id in
// the text collection and, for IMAGE chunks, in the image collection.
type DocumentChunk struct {
	ID         string                 `json:"id"`
	FileID     string                 `json:"file_id"`
	UserID     string                 `json:"user_id"`
	ChunkIndex int                    `json:"chunk_index"`
	ChunkType  ChunkType              `json:"chunk_type"`
	Content    string                 `json:"content"`
	RawContent []byte                 `json:"raw_content,omitempty"` // downscaled PNG, IMAGE chunks only
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Validate checks if the chunk is valid
func (c *DocumentChunk) Validate() error {
	if c.ID == "" {
		return &ValidationError{Field: "id", Message: "chunk ID is required"}
	}
	if c.FileID == "" {
		return &ValidationError{Field: "file_id", Message: "file ID is required"}
	}
	if c.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "user ID is required"}
	}
	if c.ChunkIndex < 0 {
		return &ValidationError{Field: "chunk_index", Message: "chunk index cannot be negative"}
	}
	if !c.ChunkType.IsValid() {
		return &ValidationError{Field: "chunk_type", Message: "invalid chunk type: " + string(c.ChunkType)}
	}
	if c.ChunkType == ChunkTypeImage && len(c.RawContent) == 0 {
		return &ValidationError{Field: "raw_content", Message: "image chunks must carry raw content"}
	}
	return nil
}

// PageNumber returns the page metadata entry if present.
func (c *DocumentChunk) PageNumber() (int, bool) {
	if c.Metadata == nil {
		return 0, false
	}
	switch v := c.Metadata["page"].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// VectorHit is one raw result from a vector collection query.
type VectorHit struct {
	ChunkID  string                 `json:"chunk_id"`
	Distance float32                `json:"distance"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Similarity converts cosine distance to a similarity score.
func (h VectorHit) Similarity() float32 {
	return 1 - h.Distance
}

// RetrievedChunk joins a vector hit with its chunk-store row. Similarity is
// the maximum over the collections the chunk appeared in.
type RetrievedChunk struct {
	Chunk       *DocumentChunk `json:"chunk"`
	Similarity  float32        `json:"similarity"`
	SourceLabel string         `json:"source_label"`
}
