package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"easyform/internal/log"
)

// Runner drives one LLM call with retries, fence stripping, JSON repair and
// schema validation. One Runner instance is used per agent invocation; the
// last raw response is retained for diagnostic logging.
type Runner struct {
	client     LLMClient
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger

	lastRaw string
}

// NewRunner creates a runner over the given client. maxRetries is the number
// of retries after the first attempt; retryDelay is a fixed backoff.
func NewRunner(client LLMClient, maxRetries int, retryDelay time.Duration) *Runner {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Runner{
		client:     client,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     log.WithModule("agent_runner"),
	}
}

// LastRawResponse returns the most recent raw model output, empty if the
// model was never reached.
func (r *Runner) LastRawResponse() string {
	return r.lastRaw
}

// RunText performs the unstructured variant: the raw response text on
// success, retrying transient failures.
func (r *Runner) RunText(ctx context.Context, req CompletionRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := r.sleepBeforeRetry(ctx, attempt); err != nil {
			return "", err
		}

		raw, err := r.client.Complete(ctx, req)
		if err != nil {
			lastErr = err
			r.logger.Warn("agent call failed", "attempt", attempt+1, "error", err)
			continue
		}
		r.lastRaw = raw
		return raw, nil
	}
	return "", fmt.Errorf("agent failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

// RunStructured performs the structured variant. validate checks the parsed
// object against the agent's output schema; when validation fails but the
// response is well-formed JSON, the raw parsed object is used as a fallback.
func (r *Runner) RunStructured(ctx context.Context, req CompletionRequest, validate func(map[string]interface{}) error) (map[string]interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := r.sleepBeforeRetry(ctx, attempt); err != nil {
			return nil, err
		}

		raw, err := r.client.Complete(ctx, req)
		if err != nil {
			lastErr = err
			r.logger.Warn("agent call failed", "attempt", attempt+1, "error", err)
			continue
		}
		r.lastRaw = raw

		parsed, err := ParseTolerant(raw)
		if err != nil {
			lastErr = fmt.Errorf("unparseable response: %w", err)
			r.logger.Warn("agent response unparseable", "attempt", attempt+1, "error", err)
			continue
		}

		if validate != nil {
			if err := validate(parsed); err != nil {
				r.logger.Warn("agent output failed schema validation, using raw JSON",
					"attempt", attempt+1, "error", err)
			}
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("agent failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *Runner) sleepBeforeRetry(ctx context.Context, attempt int) error {
	if attempt == 0 || r.retryDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.retryDelay):
		return nil
	}
}
