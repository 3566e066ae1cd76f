package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"easyform/internal/log"
)

const actionInstructions = `You convert answered form questions into concrete browser actions.
Return strict JSON with this shape:
{
  "actions": [
    {
      "action_type": "<fillText|selectDropdown|selectRadio|selectCheckbox|click>",
      "selector": "<CSS selector of the target element>",
      "value": <value to apply, or null when none can be determined>,
      "label": "<human readable field label>",
      "question": "<the original question text>"
    }
  ]
}
Use the selectors from interaction_data exactly as given.
Output a flat list of all actions across all questions. Output JSON only, no prose.`

// GeneratedAction is one raw action decoded from the model, before the
// orchestrator's alias/null/duplicate post-processing.
type GeneratedAction struct {
	ActionType string      `json:"action_type"`
	Selector   string      `json:"selector"`
	Value      interface{} `json:"value"`
	Label      string      `json:"label,omitempty"`
	Question   string      `json:"question,omitempty"`
}

// ActionAgent turns question/solution pairs into executable actions.
type ActionAgent struct {
	client     LLMClient
	maxRetries int
	retryDelay time.Duration
	maxTokens  int
	logger     *slog.Logger
}

// NewActionAgent creates the phase-3 agent.
func NewActionAgent(client LLMClient, maxRetries int, retryDelay time.Duration, maxTokens int) *ActionAgent {
	return &ActionAgent{
		client:     client,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		maxTokens:  maxTokens,
		logger:     log.WithModule("action_agent"),
	}
}

// GenerateActions runs one batch of question/solution entries through the
// action agent and decodes the flat action list.
func (a *ActionAgent) GenerateActions(ctx context.Context, model string, entries []map[string]interface{}) ([]GeneratedAction, error) {
	entriesJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch entries: %w", err)
	}

	query := fmt.Sprintf(`Generate browser actions for the following answered form questions.

Questions and Solutions:
`+"```json\n%s\n```", entriesJSON)

	runner := NewRunner(a.client, a.maxRetries, a.retryDelay)
	parsed, err := runner.RunStructured(ctx, CompletionRequest{
		Model:     model,
		System:    actionInstructions,
		Parts:     []Part{TextPart(query)},
		MaxTokens: a.maxTokens,
	}, validateActions)
	if err != nil {
		return nil, err
	}

	rawActions, ok := parsed["actions"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("action output has no actions array")
	}

	encoded, err := json.Marshal(rawActions)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode actions: %w", err)
	}
	var actions []GeneratedAction
	if err := json.Unmarshal(encoded, &actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions: %w", err)
	}

	a.logger.Debug("generated actions", "batch_size", len(entries), "actions", len(actions))
	return actions, nil
}

func validateActions(parsed map[string]interface{}) error {
	actions, ok := parsed["actions"]
	if !ok {
		return fmt.Errorf("missing actions key")
	}
	if _, ok := actions.([]interface{}); !ok {
		return fmt.Errorf("actions is not an array")
	}
	return nil
}
