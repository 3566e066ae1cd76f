package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"easyform/internal/log"
	"easyform/internal/metrics"
	"easyform/internal/models"
	"easyform/internal/repositories"
	"easyform/internal/workers"
)

// ErrActiveRequestExists signals the one-active-request-per-user rule; the
// boundary maps it to 409.
var ErrActiveRequestExists = errors.New("an active form request already exists for this user")

const cancelWaitTimeout = 10 * time.Second

// RequestService manages the form request lifecycle: admission, scheduling,
// cancellation, cleanup, and status reads. The pipeline itself runs inside a
// registry task created by Schedule.
type RequestService struct {
	requestRepo repositories.FormRequestRepository
	registry    *workers.Registry
	logger      *slog.Logger
}

// NewRequestService creates the lifecycle manager.
func NewRequestService(requestRepo repositories.FormRequestRepository, registry *workers.Registry) *RequestService {
	return &RequestService{
		requestRepo: requestRepo,
		registry:    registry,
		logger:      log.WithModule("request_service"),
	}
}

// CreateRequest admits and persists a new pending request with its first
// progress event. Returns ErrActiveRequestExists when the user already has a
// request in flight; the admission check races with concurrent creates and
// the loser's insert is the one that returns Conflict.
func (s *RequestService) CreateRequest(ctx context.Context, userID string) (*models.FormRequest, error) {
	active, err := s.requestRepo.GetActiveRequestByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active request: %w", err)
	}
	if active != nil {
		return nil, ErrActiveRequestExists
	}

	request := &models.FormRequest{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    models.RequestStatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.requestRepo.CreateRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	zero := 0
	if err := s.requestRepo.LogProgress(ctx, request.ID, models.StageQueued, "Request queued", &zero, nil); err != nil {
		s.logger.Warn("failed to log queued progress", "request_id", request.ID, "error", err)
	}

	metrics.RequestsCreated.Inc()
	s.logger.Info("form request created", "request_id", request.ID, "user_id", userID)
	return request, nil
}

// Schedule registers the pipeline task for a created request.
func (s *RequestService) Schedule(requestID, userID string, run func(ctx context.Context)) error {
	return s.registry.Run(requestID, userID, run)
}

// GetRequestForUser fetches a request and enforces ownership. A request owned
// by another user is reported as not found.
func (s *RequestService) GetRequestForUser(ctx context.Context, requestID, userID string) (*models.FormRequest, error) {
	request, err := s.requestRepo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.UserID != userID {
		return nil, repositories.RequestNotFoundError(requestID)
	}
	return request, nil
}

// GetStatus returns the polling payload: request fields plus the ordered
// progress log.
func (s *RequestService) GetStatus(ctx context.Context, requestID, userID string) (*models.FormRequestStatusDTO, error) {
	request, err := s.GetRequestForUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	progress, err := s.requestRepo.GetProgress(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress log: %w", err)
	}

	dto := &models.FormRequestStatusDTO{FormRequestDTO: request.ToDTO()}
	dto.Progress = make([]models.FormRequestProgressDTO, len(progress))
	for i, entry := range progress {
		dto.Progress[i] = entry.ToDTO()
	}
	return dto, nil
}

// GetActions returns the request and, when completed, its ordered actions.
func (s *RequestService) GetActions(ctx context.Context, requestID, userID string) (*models.FormRequest, []*models.FormAction, error) {
	request, err := s.GetRequestForUser(ctx, requestID, userID)
	if err != nil {
		return nil, nil, err
	}
	if request.Status != models.RequestStatusCompleted {
		return request, nil, nil
	}

	actions, err := s.requestRepo.GetActions(ctx, requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load actions: %w", err)
	}
	return request, actions, nil
}

// Cancel signals the running pipeline for a request, if any, and waits for it
// to wind down. Safe on finished or unknown requests.
func (s *RequestService) Cancel(requestID string) {
	s.registry.CancelAndWait(requestID, cancelWaitTimeout)
}

// DeleteRequest cancels any running pipeline and deletes the request with its
// progress log and actions.
func (s *RequestService) DeleteRequest(ctx context.Context, requestID, userID string) error {
	if _, err := s.GetRequestForUser(ctx, requestID, userID); err != nil {
		return err
	}

	s.Cancel(requestID)
	if err := s.requestRepo.DeleteRequest(ctx, requestID); err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	s.logger.Info("form request deleted", "request_id", requestID, "user_id", userID)
	return nil
}

// CleanupOlderThan deletes requests created before the age threshold,
// cascading their progress logs and actions.
func (s *RequestService) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	deleted, err := s.requestRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("cleaned up old form requests", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// Shutdown cancels all running pipelines, waits up to timeout, and marks
// requests that outlived the deadline as failed.
func (s *RequestService) Shutdown(ctx context.Context, timeout time.Duration) {
	stragglers := s.registry.Shutdown(timeout)
	for _, requestID := range stragglers {
		err := s.requestRepo.UpdateStatus(ctx, requestID, models.RequestStatusFailed, nil,
			"Server shutdown before completion")
		if err != nil {
			s.logger.Error("failed to mark request failed on shutdown",
				"request_id", requestID, "error", err)
		}
	}
}
