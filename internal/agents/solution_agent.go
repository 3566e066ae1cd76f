package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"easyform/internal/log"
	"easyform/internal/models"
)

const solverInstructions = `You answer a single form question on behalf of the user.
Use the provided instructions and document context. Treat session instructions as authoritative.
Provide a best-effort answer; keep it fluent and human-sounding.
For selection questions pick from the available options.
Answer with the value only, no preamble and no markdown.`

const (
	maxContextExcerpts = 5
	maxExcerptChars    = 500
)

// ContextExcerpt is one retrieved text snippet fed into the solver prompt.
type ContextExcerpt struct {
	SourceLabel string
	Text        string
}

// SolveInput carries everything one solver call sees.
type SolveInput struct {
	Model                string
	SessionInstructions  string
	PersonalInstructions string
	Excerpts             []ContextExcerpt
	Images               [][]byte
	Question             *models.Question
}

// SolutionAgent generates a plain-text answer for one question.
type SolutionAgent struct {
	client     LLMClient
	maxRetries int
	retryDelay time.Duration
	maxTokens  int
	logger     *slog.Logger
}

// NewSolutionAgent creates the phase-2 agent.
func NewSolutionAgent(client LLMClient, maxRetries int, retryDelay time.Duration, maxTokens int) *SolutionAgent {
	return &SolutionAgent{
		client:     client,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		maxTokens:  maxTokens,
		logger:     log.WithModule("solution_agent"),
	}
}

// Solve runs the solver for one question and returns the raw answer text.
func (a *SolutionAgent) Solve(ctx context.Context, in SolveInput) (string, error) {
	questionJSON, err := json.MarshalIndent(in.Question.SolverView(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode question data: %w", err)
	}

	var prompt strings.Builder
	prompt.WriteString("Session Instructions:\n")
	prompt.WriteString(orDefault(in.SessionInstructions, "None"))
	prompt.WriteString("\n\nPersonal Instructions:\n")
	prompt.WriteString(orDefault(in.PersonalInstructions, "None"))
	prompt.WriteString("\n\n")
	prompt.WriteString(formatDocumentContext(in.Excerpts, len(in.Images)))
	prompt.WriteString("\nQuestion:\n```json\n")
	prompt.Write(questionJSON)
	prompt.WriteString("\n```")

	parts := []Part{TextPart(prompt.String())}
	for _, image := range in.Images {
		parts = append(parts, ImagePart(image, "image/png"))
	}

	runner := NewRunner(a.client, a.maxRetries, a.retryDelay)
	answer, err := runner.RunText(ctx, CompletionRequest{
		Model:     in.Model,
		System:    solverInstructions,
		Parts:     parts,
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// formatDocumentContext renders up to maxContextExcerpts retrieved snippets
// plus a note for attached images.
func formatDocumentContext(excerpts []ContextExcerpt, imageCount int) string {
	if len(excerpts) == 0 && imageCount == 0 {
		return "Document Context:\nNo relevant context retrieved from documents.\n"
	}

	var b strings.Builder
	b.WriteString("Document Context:\n")
	for i, excerpt := range excerpts {
		if i >= maxContextExcerpts {
			break
		}
		text := truncateOnRuneBoundary(excerpt.Text, maxExcerptChars)
		b.WriteString(fmt.Sprintf("[%s] %s\n", excerpt.SourceLabel, text))
	}
	if imageCount > 0 {
		b.WriteString(fmt.Sprintf("%d relevant image(s) from the user's documents are attached below.\n", imageCount))
	}
	return b.String()
}

// truncateOnRuneBoundary cuts text to at most max bytes without splitting a
// UTF-8 sequence.
func truncateOnRuneBoundary(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
