package models

import (
	"time"
)

// FormRequest represents one asynchronous form analysis job
type FormRequest struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Status         FormRequestStatus `json:"status"`
	FieldsDetected int               `json:"fields_detected"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// FormRequestStatus represents the current status of a form request
type FormRequestStatus string

const (
	RequestStatusPending         FormRequestStatus = "pending"
	RequestStatusProcessing      FormRequestStatus = "processing"
	RequestStatusProcessingStep1 FormRequestStatus = "processing_step_1"
	RequestStatusProcessingStep2 FormRequestStatus = "processing_step_2"
	RequestStatusCompleted       FormRequestStatus = "completed"
	RequestStatusFailed          FormRequestStatus = "failed"
)

// IsValid checks if the status is valid
func (s FormRequestStatus) IsValid() bool {
	switch s {
	case RequestStatusPending, RequestStatusProcessing, RequestStatusProcessingStep1,
		RequestStatusProcessingStep2, RequestStatusCompleted, RequestStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status
func (s FormRequestStatus) String() string {
	return string(s)
}

// IsActive returns true while the request still occupies the per-user slot
func (s FormRequestStatus) IsActive() bool {
	switch s {
	case RequestStatusPending, RequestStatusProcessing,
		RequestStatusProcessingStep1, RequestStatusProcessingStep2:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status is a terminal state
func (s FormRequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusFailed
}

// IsProcessing returns true for any of the processing states
func (s FormRequestStatus) IsProcessing() bool {
	switch s {
	case RequestStatusProcessing, RequestStatusProcessingStep1, RequestStatusProcessingStep2:
		return true
	default:
		return false
	}
}

// Duration returns the time the request has spent running
func (r *FormRequest) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	if r.CompletedAt == nil {
		return time.Since(*r.StartedAt)
	}
	return r.CompletedAt.Sub(*r.StartedAt)
}

// Validate checks if the request is valid
func (r *FormRequest) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Message: "request ID is required"}
	}
	if r.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "user ID is required"}
	}
	if !r.Status.IsValid() {
		return &ValidationError{Field: "status", Message: "invalid request status: " + string(r.Status)}
	}
	if r.FieldsDetected < 0 {
		return &ValidationError{Field: "fields_detected", Message: "fields detected cannot be negative"}
	}
	return nil
}

// FormRequestDTO represents the API view of a form request
type FormRequestDTO struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FieldsDetected int    `json:"fields_detected"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      string `json:"created_at"`
	StartedAt      string `json:"started_at,omitempty"`
	CompletedAt    string `json:"completed_at,omitempty"`
}

// ToDTO converts FormRequest domain model to DTO
func (r *FormRequest) ToDTO() FormRequestDTO {
	dto := FormRequestDTO{
		ID:             r.ID,
		Status:         string(r.Status),
		FieldsDetected: r.FieldsDetected,
		ErrorMessage:   r.ErrorMessage,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
	}
	if r.StartedAt != nil {
		dto.StartedAt = r.StartedAt.Format(time.RFC3339)
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

// Progress log stages emitted by the pipeline.
const (
	StageQueued             = "queued"
	StageInputsSanitized    = "inputs_sanitized"
	StageParserStarted      = "parser_started"
	StageParserFailed       = "parser_failed"
	StageParserCompleted    = "parser_completed"
	StageNoQuestions        = "no_questions"
	StageSolutionsStarted   = "solutions_started"
	StageSolutionsProgress  = "solutions_progress"
	StageSolutionsCompleted = "solutions_completed"
	StageActionsStarted     = "actions_started"
	StageActionsGenerated   = "actions_generated"
	StageActionsFailed      = "actions_failed"
	StageActionsSaved       = "actions_saved"
	StageCompleted          = "completed"
	StageFailed             = "failed"
	StageCancelled          = "cancelled"
)

// FormRequestProgress is one append-only progress log entry
type FormRequestProgress struct {
	ID        int64                  `json:"id"`
	RequestID string                 `json:"request_id"`
	Stage     string                 `json:"stage"`
	Message   string                 `json:"message"`
	Progress  *int                   `json:"progress,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// FormRequestProgressDTO represents the API view of a progress entry
type FormRequestProgressDTO struct {
	ID        int64                  `json:"id"`
	Stage     string                 `json:"stage"`
	Message   string                 `json:"message"`
	Progress  *int                   `json:"progress,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt string                 `json:"created_at"`
}

// ToDTO converts FormRequestProgress to DTO
func (p *FormRequestProgress) ToDTO() FormRequestProgressDTO {
	return FormRequestProgressDTO{
		ID:        p.ID,
		Stage:     p.Stage,
		Message:   p.Message,
		Progress:  p.Progress,
		Payload:   p.Payload,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

// FormRequestStatusDTO is the polling payload for GET /form/request/{id}/status
type FormRequestStatusDTO struct {
	FormRequestDTO
	Progress []FormRequestProgressDTO `json:"progress"`
}
