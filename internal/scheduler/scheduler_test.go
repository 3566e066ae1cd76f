package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easyform/internal/models"
	"easyform/internal/services"
	"easyform/internal/workers"
)

// cleanupCountingRepo only tracks DeleteOlderThan calls.
type cleanupCountingRepo struct {
	cleanups atomic.Int64
}

func (r *cleanupCountingRepo) CreateRequest(ctx context.Context, request *models.FormRequest) error {
	return nil
}

func (r *cleanupCountingRepo) GetRequest(ctx context.Context, id string) (*models.FormRequest, error) {
	return nil, nil
}

func (r *cleanupCountingRepo) GetActiveRequestByUser(ctx context.Context, userID string) (*models.FormRequest, error) {
	return nil, nil
}

func (r *cleanupCountingRepo) UpdateStatus(ctx context.Context, id string, status models.FormRequestStatus, fieldsDetected *int, errorMessage string) error {
	return nil
}

func (r *cleanupCountingRepo) DeleteRequest(ctx context.Context, id string) error { return nil }

func (r *cleanupCountingRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.cleanups.Add(1)
	return 0, nil
}

func (r *cleanupCountingRepo) LogProgress(ctx context.Context, requestID, stage, message string, progress *int, payload map[string]interface{}) error {
	return nil
}

func (r *cleanupCountingRepo) GetProgress(ctx context.Context, requestID string) ([]*models.FormRequestProgress, error) {
	return nil, nil
}

func (r *cleanupCountingRepo) SaveActions(ctx context.Context, requestID string, actions []*models.FormAction) error {
	return nil
}

func (r *cleanupCountingRepo) GetActions(ctx context.Context, requestID string) ([]*models.FormAction, error) {
	return nil, nil
}

func (r *cleanupCountingRepo) Ping(ctx context.Context) error { return nil }

func TestScheduler_RunsCleanupPeriodically(t *testing.T) {
	repo := &cleanupCountingRepo{}
	requests := services.NewRequestService(repo, workers.NewRegistry())

	s := New(requests, 50*time.Millisecond)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return repo.cleanups.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_StopWaitsForJobs(t *testing.T) {
	repo := &cleanupCountingRepo{}
	requests := services.NewRequestService(repo, workers.NewRegistry())

	s := New(requests, time.Hour)
	require.NoError(t, s.Start())
	s.Stop()

	// No cleanup ran with an hour-long cadence
	assert.Zero(t, repo.cleanups.Load())
}
