package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easyform/internal/models"
	"easyform/internal/repositories"
	"easyform/internal/workers"
)

func newTestRequestService(repo *fakeRequestRepo) *RequestService {
	return NewRequestService(repo, workers.NewRegistry())
}

func TestCreateRequest(t *testing.T) {
	repo := newFakeRequestRepo()
	service := newTestRequestService(repo)

	request, err := service.CreateRequest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, request.ID)
	assert.Equal(t, "user-1", request.UserID)
	assert.Equal(t, models.RequestStatusPending, request.Status)

	// The first progress event is queued at 0%
	events := repo.stages()
	require.Len(t, events, 1)
	assert.Equal(t, "queued", events[0])
	event, _ := repo.findEvent("queued")
	require.NotNil(t, event.Progress)
	assert.Equal(t, 0, *event.Progress)
}

func TestCreateRequest_ConflictWhileActive(t *testing.T) {
	repo := newFakeRequestRepo()
	service := newTestRequestService(repo)

	first, err := service.CreateRequest(context.Background(), "user-1")
	require.NoError(t, err)

	_, err = service.CreateRequest(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrActiveRequestExists)

	// A different user is unaffected
	_, err = service.CreateRequest(context.Background(), "user-2")
	assert.NoError(t, err)

	// Once the first request completes, the slot frees up
	require.NoError(t, repo.UpdateStatus(context.Background(), first.ID, models.RequestStatusCompleted, nil, ""))
	_, err = service.CreateRequest(context.Background(), "user-1")
	assert.NoError(t, err)
}

func TestGetRequestForUser_OwnershipAsNotFound(t *testing.T) {
	repo := newFakeRequestRepo()
	service := newTestRequestService(repo)

	request, err := service.CreateRequest(context.Background(), "user-1")
	require.NoError(t, err)

	got, err := service.GetRequestForUser(context.Background(), request.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, request.ID, got.ID)

	// Another user's request id behaves exactly like an unknown id
	_, err = service.GetRequestForUser(context.Background(), request.ID, "user-2")
	require.Error(t, err)
	assert.True(t, repositories.IsRequestNotFound(err))
}

func TestGetStatus_IncludesProgress(t *testing.T) {
	repo := newFakeRequestRepo()
	service := newTestRequestService(repo)

	request, err := service.CreateRequest(context.Background(), "user-1")
	require.NoError(t, err)
	require.NoError(t, repo.LogProgress(context.Background(), request.ID, models.StageParserStarted, "Analyzing form structure", nil, nil))

	status, err := service.GetStatus(context.Background(), request.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, request.ID, status.ID)
	require.Len(t, status.Progress, 2)
	assert.Equal(t, "queued", status.Progress[0].Stage)
	assert.Equal(t, "parser_started", status.Progress[1].Stage)
}

func TestGetActions_OnlyWhenCompleted(t *testing.T) {
	repo := newFakeRequestRepo()
	service := newTestRequestService(repo)

	request, err := service.CreateRequest(context.Background(), "user-1")
	require.NoError(t, err)
	require.NoError(t, repo.SaveActions(context.Background(), request.ID, []*models.FormAction{
		{RequestID: request.ID, ActionType: models.ActionClick, Selector: "#submit"},
	}))

	got, actions, err := service.GetActions(context.Background(), request.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, got.Status)
	assert.Nil(t, actions)

	require.NoError(t, repo.UpdateStatus(context.Background(), request.ID, models.RequestStatusCompleted, nil, ""))
	got, actions, err = service.GetActions(context.Background(), request.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCompleted, got.Status)
	require.Len(t, actions, 1)
}

func TestDeleteRequest(t *testing.T) {
	repo := newFakeRequestRepo()
	service := newTestRequestService(repo)

	request, err := service.CreateRequest(context.Background(), "user-1")
	require.NoError(t, err)

	// Wrong owner cannot delete
	err = service.DeleteRequest(context.Background(), request.ID, "user-2")
	require.Error(t, err)
	assert.True(t, repositories.IsRequestNotFound(err))

	require.NoError(t, service.DeleteRequest(context.Background(), request.ID, "user-1"))
	_, err = service.GetRequestForUser(context.Background(), request.ID, "user-1")
	assert.Error(t, err)
}

func TestDeleteRequest_CancelsRunningPipeline(t *testing.T) {
	repo := newFakeRequestRepo()
	registry := workers.NewRegistry()
	service := NewRequestService(repo, registry)

	request, err := service.CreateRequest(context.Background(), "user-1")
	require.NoError(t, err)

	started := make(chan struct{})
	require.NoError(t, service.Schedule(request.ID, "user-1", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started

	require.NoError(t, service.DeleteRequest(context.Background(), request.ID, "user-1"))
	assert.Equal(t, 0, registry.Running())
}

func TestCleanupOlderThan(t *testing.T) {
	repo := newFakeRequestRepo()
	service := newTestRequestService(repo)

	old := &models.FormRequest{
		ID: "old", UserID: "user-1",
		Status:    models.RequestStatusCompleted,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	recent := &models.FormRequest{
		ID: "recent", UserID: "user-1",
		Status:    models.RequestStatusCompleted,
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateRequest(context.Background(), old))
	require.NoError(t, repo.CreateRequest(context.Background(), recent))

	deleted, err := service.CleanupOlderThan(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = repo.GetRequest(context.Background(), "old")
	assert.Error(t, err)
	_, err = repo.GetRequest(context.Background(), "recent")
	assert.NoError(t, err)
}

func TestShutdown_MarksStragglersFailed(t *testing.T) {
	repo := newFakeRequestRepo()
	registry := workers.NewRegistry()
	service := NewRequestService(repo, registry)

	request, err := service.CreateRequest(context.Background(), "user-1")
	require.NoError(t, err)

	// A task that ignores cancellation outlives the shutdown deadline
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, service.Schedule(request.ID, "user-1", func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	service.Shutdown(context.Background(), 50*time.Millisecond)
	close(release)

	assert.Equal(t, models.RequestStatusFailed, repo.currentStatus(request.ID))
	assert.Equal(t, "Server shutdown before completion", repo.lastErrorMessage)
}
