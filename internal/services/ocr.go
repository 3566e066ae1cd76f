package services

import (
	"context"
	"log/slog"
	"strings"

	"easyform/internal/agents"
	"easyform/internal/log"
)

const ocrInstructions = `Transcribe all text visible in the image.
If the image contains no text, describe its content in one short sentence.
Output the transcription only, no commentary.`

// OCRProvider produces a text caption for an image. Failures are expected
// and non-fatal; callers substitute an empty caption.
type OCRProvider interface {
	Caption(ctx context.Context, imageBytes []byte) (string, error)
}

// LLMOCRProvider implements OCR through a multimodal chat completion.
type LLMOCRProvider struct {
	client agents.LLMClient
	model  string
	logger *slog.Logger
}

// NewLLMOCRProvider creates an OCR provider backed by a vision model.
func NewLLMOCRProvider(client agents.LLMClient, model string) *LLMOCRProvider {
	return &LLMOCRProvider{
		client: client,
		model:  model,
		logger: log.WithModule("ocr"),
	}
}

// Caption transcribes the image.
func (p *LLMOCRProvider) Caption(ctx context.Context, imageBytes []byte) (string, error) {
	text, err := p.client.Complete(ctx, agents.CompletionRequest{
		Model:  p.model,
		System: ocrInstructions,
		Parts: []agents.Part{
			agents.TextPart("Transcribe this image."),
			agents.ImagePart(imageBytes, "image/png"),
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
