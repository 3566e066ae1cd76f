package agents

import (
	"context"
)

// PartKind discriminates multimodal prompt parts
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
	PartFile  PartKind = "file"
)

// Part is one piece of a multimodal user message. Image and file parts carry
// raw bytes; the client encodes them as data URLs.
type Part struct {
	Kind     PartKind
	Text     string
	Data     []byte
	MimeType string
	Filename string
}

// TextPart builds a text part
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// ImagePart builds an image part from raw bytes
func ImagePart(data []byte, mimeType string) Part {
	return Part{Kind: PartImage, Data: data, MimeType: mimeType}
}

// FilePart builds a file part (PDF) from raw bytes
func FilePart(data []byte, mimeType, filename string) Part {
	return Part{Kind: PartFile, Data: data, MimeType: mimeType, Filename: filename}
}

// CompletionRequest is one chat completion call
type CompletionRequest struct {
	Model     string
	System    string
	Parts     []Part
	MaxTokens int
}

// LLMClient abstracts the chat completion backend so agents can be tested
// against a fake.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
