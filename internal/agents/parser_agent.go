package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"easyform/internal/log"
	"easyform/internal/models"
)

const parserInstructions = `You analyze web pages and extract every fillable form question.
Return strict JSON with this shape:
{
  "total_inputs": <number of individual input elements detected>,
  "questions": [
    {
      "id": "<stable question id>",
      "type": "<text|email|number|date|select|radio|checkbox|textarea|file|other>",
      "question_data": {
        "question": "<the human readable prompt>",
        "rag_context": "<surrounding context useful for document retrieval, optional>",
        "context": "<hints for answering: placeholder, validation rules, help text, optional>",
        "selection_mode": "<single|multiple|none>",
        "available_options": ["<option>", ...]
      },
      "interaction_data": {
        "primary_selector": "<unique CSS selector>",
        "action_type": "<suggested action type>",
        "targets": [{"selector": "<css>", "value": <raw value or null>, "label": "<label>"}]
      }
    }
  ]
}
Group related controls into one logical question (radio options in one group, grouped checkboxes, address blocks).
Selectors must uniquely address the live page elements. Output JSON only, no prose.`

// ParseInput carries everything the parser agent sees.
type ParseInput struct {
	Model                string
	HTML                 string
	VisibleText          string
	Clipboard            string
	PersonalInstructions string
	Screenshots          [][]byte
}

// ParseResult is the decoded phase-1 output.
type ParseResult struct {
	TotalInputs int
	Questions   []*models.Question
	RawResponse string
}

// ParserAgent extracts logical questions from an HTML page.
type ParserAgent struct {
	client     LLMClient
	maxRetries int
	retryDelay time.Duration
	maxTokens  int
	logger     *slog.Logger
}

// NewParserAgent creates the phase-1 agent.
func NewParserAgent(client LLMClient, maxRetries int, retryDelay time.Duration, maxTokens int) *ParserAgent {
	return &ParserAgent{
		client:     client,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		maxTokens:  maxTokens,
		logger:     log.WithModule("parser_agent"),
	}
}

// Parse runs the parser agent over the page and decodes its questions.
func (a *ParserAgent) Parse(ctx context.Context, in ParseInput) (*ParseResult, error) {
	query := fmt.Sprintf(`Please analyze the following HTML and extract all form questions.
Group related fields together when it makes sense (e.g., address fields, radio groups).

HTML Code:
`+"```html\n%s\n```"+`

Visible Text Content:
%s

Clipboard Content:
%s

Personal Instructions:
%s`,
		in.HTML,
		orDefault(in.VisibleText, "No visible text provided"),
		orDefault(in.Clipboard, "No clipboard content provided"),
		orDefault(in.PersonalInstructions, "None"),
	)

	parts := []Part{TextPart(query)}
	for _, screenshot := range in.Screenshots {
		parts = append(parts, ImagePart(screenshot, "image/png"))
	}

	runner := NewRunner(a.client, a.maxRetries, a.retryDelay)
	parsed, err := runner.RunStructured(ctx, CompletionRequest{
		Model:     in.Model,
		System:    parserInstructions,
		Parts:     parts,
		MaxTokens: a.maxTokens,
	}, validateQuestions)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{RawResponse: runner.LastRawResponse()}

	rawQuestions, ok := parsed["questions"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("parser output has no questions array")
	}

	encoded, err := json.Marshal(rawQuestions)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode questions: %w", err)
	}
	if err := json.Unmarshal(encoded, &result.Questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}

	if total, ok := parsed["total_inputs"].(float64); ok && int(total) >= 0 {
		result.TotalInputs = int(total)
	} else {
		result.TotalInputs = len(result.Questions)
	}

	a.logger.Debug("parsed form structure",
		"questions", len(result.Questions), "total_inputs", result.TotalInputs)
	return result, nil
}

func validateQuestions(parsed map[string]interface{}) error {
	questions, ok := parsed["questions"]
	if !ok {
		return fmt.Errorf("missing questions key")
	}
	if _, ok := questions.([]interface{}); !ok {
		return fmt.Errorf("questions is not an array")
	}
	return nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
