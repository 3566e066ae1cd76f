package models

import "strings"

// SelectionMode describes how a question's options are chosen
type SelectionMode string

const (
	SelectionSingle   SelectionMode = "single"
	SelectionMultiple SelectionMode = "multiple"
	SelectionNone     SelectionMode = "none"
)

// QuestionData is the slice of a question shown to the solver phase.
type QuestionData struct {
	Question         string        `json:"question"`
	RAGContext       string        `json:"rag_context,omitempty"`
	Context          string        `json:"context,omitempty"`
	SelectionMode    SelectionMode `json:"selection_mode,omitempty"`
	AvailableOptions []string      `json:"available_options,omitempty"`
}

// Target is one concrete element an action may address.
type Target struct {
	Selector string      `json:"selector"`
	Value    interface{} `json:"value,omitempty"`
	Label    string      `json:"label,omitempty"`
}

// InteractionData is the slice of a question shown to the action phase.
type InteractionData struct {
	PrimarySelector string   `json:"primary_selector"`
	ActionType      string   `json:"action_type,omitempty"`
	Targets         []Target `json:"targets,omitempty"`
}

// Question is the in-memory unit passed between pipeline phases. It never
// leaves the running pipeline.
type Question struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	QuestionData    QuestionData    `json:"question_data"`
	InteractionData InteractionData `json:"interaction_data"`
}

// QuestionSolution pairs a question with its phase-2 answer.
type QuestionSolution struct {
	Question *Question `json:"question"`
	Solution string    `json:"solution"`
}

// SolverView returns the question_data-only map fed to the solution agent,
// with empty optional fields stripped.
func (q *Question) SolverView() map[string]interface{} {
	view := map[string]interface{}{
		"question": q.QuestionData.Question,
	}
	if s := strings.TrimSpace(q.QuestionData.RAGContext); s != "" {
		view["rag_context"] = s
	}
	if s := strings.TrimSpace(q.QuestionData.Context); s != "" {
		view["context"] = s
	}
	if q.QuestionData.SelectionMode != "" && q.QuestionData.SelectionMode != SelectionNone {
		view["selection_mode"] = string(q.QuestionData.SelectionMode)
	}
	if len(q.QuestionData.AvailableOptions) > 0 {
		view["available_options"] = q.QuestionData.AvailableOptions
	}
	return view
}

// ActionView returns the map fed to the action agent: identity, the original
// question text, the interaction slice, and the solution.
func (q *Question) ActionView(index int, solution string) map[string]interface{} {
	interaction := map[string]interface{}{
		"primary_selector": q.InteractionData.PrimarySelector,
	}
	if q.InteractionData.ActionType != "" {
		interaction["action_type"] = q.InteractionData.ActionType
	}
	if len(q.InteractionData.Targets) > 0 {
		targets := make([]map[string]interface{}, 0, len(q.InteractionData.Targets))
		for _, t := range q.InteractionData.Targets {
			target := map[string]interface{}{"selector": t.Selector}
			if t.Value != nil {
				target["value"] = t.Value
			}
			if t.Label != "" {
				target["label"] = t.Label
			}
			targets = append(targets, target)
		}
		interaction["targets"] = targets
	}

	return map[string]interface{}{
		"index":            index,
		"question_id":      q.ID,
		"question_type":    q.Type,
		"question":         q.QuestionData.Question,
		"interaction_data": interaction,
		"solution":         solution,
	}
}

// RetrievalQuery builds the text used to query the vector indexes for this
// question: rag context, question text, and up to maxOptions options.
func (q *Question) RetrievalQuery(maxOptions int) string {
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(q.QuestionData.RAGContext); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(q.QuestionData.Question); s != "" {
		parts = append(parts, s)
	}
	options := q.QuestionData.AvailableOptions
	if len(options) > maxOptions {
		options = options[:maxOptions]
	}
	for _, opt := range options {
		if s := strings.TrimSpace(opt); s != "" {
			parts = append(parts, s)
		}
	}
	query := strings.TrimSpace(strings.Join(parts, " "))
	if query == "" {
		return "form question context"
	}
	return query
}
