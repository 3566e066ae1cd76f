package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"easyform/internal/log"
)

// Cancellation causes. Pipelines inspect context.Cause to distinguish a user
// cancel from a server shutdown when choosing the terminal status.
var (
	ErrCancelled = errors.New("request cancelled")
	ErrShutdown  = errors.New("server shutdown before completion")
)

// task tracks one running pipeline goroutine.
type task struct {
	requestID string
	userID    string
	cancel    context.CancelCauseFunc
	done      chan struct{}
	startedAt time.Time
}

// Registry tracks running pipeline tasks by request id. Each task runs in its
// own goroutine with a cancellable context; Cancel and Shutdown signal tasks
// cooperatively through context cancellation.
type Registry struct {
	mu     sync.Mutex
	tasks  map[string]*task
	logger *slog.Logger
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks:  make(map[string]*task),
		logger: log.WithModule("task_registry"),
	}
}

// Run launches fn for the request in a new goroutine. The context passed to
// fn is detached from the caller and cancelled by Cancel or Shutdown. Returns
// an error when the request already has a running task.
func (r *Registry) Run(requestID, userID string, fn func(ctx context.Context)) error {
	ctx, cancel := context.WithCancelCause(context.Background())

	t := &task{
		requestID: requestID,
		userID:    userID,
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}

	r.mu.Lock()
	if _, exists := r.tasks[requestID]; exists {
		r.mu.Unlock()
		cancel(nil)
		return NewWorkerError("task_registry", "run", nil, "task already running for request "+requestID)
	}
	r.tasks[requestID] = t
	r.mu.Unlock()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("pipeline task panicked",
					"request_id", requestID, "panic", formatPanic(p))
			}
			r.mu.Lock()
			delete(r.tasks, requestID)
			r.mu.Unlock()
			cancel(nil)
			close(t.done)
		}()
		fn(ctx)
	}()

	return nil
}

// Cancel signals the request's task to stop. Returns false when no task is
// running for the request.
func (r *Registry) Cancel(requestID string) bool {
	r.mu.Lock()
	t, ok := r.tasks[requestID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel(ErrCancelled)
	return true
}

// CancelAndWait signals the request's task and waits up to timeout for it to
// finish. Safe to call for finished or unknown requests.
func (r *Registry) CancelAndWait(requestID string, timeout time.Duration) {
	r.mu.Lock()
	t, ok := r.tasks[requestID]
	r.mu.Unlock()
	if !ok {
		return
	}
	t.cancel(ErrCancelled)
	select {
	case <-t.done:
	case <-time.After(timeout):
		r.logger.Warn("cancelled task did not finish in time", "request_id", requestID)
	}
}

// Running returns the number of tasks currently in flight.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// ActiveRequestIDs returns the ids of requests with a running task.
func (r *Registry) ActiveRequestIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown cancels every running task with ErrShutdown and waits up to
// timeout for them to finish. Returns the request ids of tasks that did not
// finish in time; the caller marks those requests failed.
func (r *Registry) Shutdown(timeout time.Duration) []string {
	r.mu.Lock()
	snapshot := make([]*task, 0, len(r.tasks))
	for _, t := range r.tasks {
		snapshot = append(snapshot, t)
	}
	r.mu.Unlock()

	for _, t := range snapshot {
		t.cancel(ErrShutdown)
	}

	deadline := time.After(timeout)
	var stragglers []string
	for _, t := range snapshot {
		select {
		case <-t.done:
		case <-deadline:
			stragglers = append(stragglers, t.requestID)
		}
	}

	if len(stragglers) > 0 {
		r.logger.Warn("tasks did not finish before shutdown deadline", "count", len(stragglers))
	}
	return stragglers
}
