package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easyform/internal/agents"
	"easyform/internal/models"
	"easyform/internal/repositories"
	"easyform/internal/services"
	"easyform/internal/workers"
)

// memRequestRepo is an in-memory FormRequestRepository for handler tests.
type memRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*models.FormRequest
	progress map[string][]*models.FormRequestProgress
	actions  map[string][]*models.FormAction
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{
		requests: make(map[string]*models.FormRequest),
		progress: make(map[string][]*models.FormRequestProgress),
		actions:  make(map[string][]*models.FormAction),
	}
}

func (r *memRequestRepo) CreateRequest(ctx context.Context, request *models.FormRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[request.ID] = request
	return nil
}

func (r *memRequestRepo) GetRequest(ctx context.Context, id string) (*models.FormRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.requests[id]
	if !ok {
		return nil, repositories.RequestNotFoundError(id)
	}
	copied := *request
	return &copied, nil
}

func (r *memRequestRepo) GetActiveRequestByUser(ctx context.Context, userID string) (*models.FormRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, request := range r.requests {
		if request.UserID == userID && request.Status.IsActive() {
			copied := *request
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memRequestRepo) UpdateStatus(ctx context.Context, id string, status models.FormRequestStatus, fieldsDetected *int, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if request, ok := r.requests[id]; ok {
		request.Status = status
		if fieldsDetected != nil {
			request.FieldsDetected = *fieldsDetected
		}
		request.ErrorMessage = errorMessage
	}
	return nil
}

func (r *memRequestRepo) DeleteRequest(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[id]; !ok {
		return repositories.RequestNotFoundError(id)
	}
	delete(r.requests, id)
	delete(r.progress, id)
	delete(r.actions, id)
	return nil
}

func (r *memRequestRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (r *memRequestRepo) LogProgress(ctx context.Context, requestID, stage, message string, progress *int, payload map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[requestID] = append(r.progress[requestID], &models.FormRequestProgress{
		RequestID: requestID, Stage: stage, Message: message, Progress: progress, Payload: payload,
	})
	return nil
}

func (r *memRequestRepo) GetProgress(ctx context.Context, requestID string) ([]*models.FormRequestProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress[requestID], nil
}

func (r *memRequestRepo) SaveActions(ctx context.Context, requestID string, actions []*models.FormAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[requestID] = actions
	return nil
}

func (r *memRequestRepo) GetActions(ctx context.Context, requestID string) ([]*models.FormAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.actions[requestID], nil
}

func (r *memRequestRepo) Ping(ctx context.Context) error { return nil }

// memUserRepo is an in-memory UserRepository for handler tests.
type memUserRepo struct {
	mu     sync.Mutex
	users  map[string]*models.User
	tokens map[string]*models.APIToken
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.APIToken),
	}
}

func (r *memUserRepo) GetOrCreateUser(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		return user, nil
	}
	user := &models.User{ID: id, CreatedAt: time.Now()}
	r.users[id] = user
	return user, nil
}

func (r *memUserRepo) GetUser(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found: %s", id)
	}
	return user, nil
}

func (r *memUserRepo) UpdateInstructions(ctx context.Context, id, instructions string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user not found: %s", id)
	}
	user.PersonalInstructions = instructions
	return nil
}

func (r *memUserRepo) CreateToken(ctx context.Context, token *models.APIToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.Token] = token
	return nil
}

func (r *memUserRepo) ResolveToken(ctx context.Context, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tokens[token]
	if !ok {
		return "", repositories.TokenNotFoundError()
	}
	return stored.UserID, nil
}

func (r *memUserRepo) ListTokensByUser(ctx context.Context, userID string) ([]*models.APIToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.APIToken
	for _, token := range r.tokens {
		if token.UserID == userID {
			out = append(out, token)
		}
	}
	return out, nil
}

func (r *memUserRepo) DeleteToken(ctx context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tokens[token]
	if !ok || stored.UserID != userID {
		return repositories.TokenNotFoundError()
	}
	delete(r.tokens, token)
	return nil
}

func (r *memUserRepo) Ping(ctx context.Context) error { return nil }

// blockingLLM answers the parser prompt with an empty form; Release gates the
// response so tests can hold a pipeline in flight.
type blockingLLM struct {
	release chan struct{}
}

func (c *blockingLLM) Complete(ctx context.Context, req agents.CompletionRequest) (string, error) {
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return `{"total_inputs": 0, "questions": []}`, nil
}

// offlineEmbedder degrades retrieval for handler-level tests.
type offlineEmbedder struct{}

func (offlineEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedder offline")
}

func (offlineEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedder offline")
}

type formFixture struct {
	repo     *memRequestRepo
	registry *workers.Registry
	router   *mux.Router
}

func newFormFixture(client agents.LLMClient) *formFixture {
	repo := newMemRequestRepo()
	registry := workers.NewRegistry()
	requestService := services.NewRequestService(repo, registry)
	userService := services.NewUserService(newMemUserRepo(), 2000)

	rag := services.NewRAGService(nil, nil, nil, nil,
		offlineEmbedder{}, services.NewGatewayImageEmbedder(nil), nil, 5)
	pipeline := services.NewFormPipelineService(repo, rag,
		agents.NewParserAgent(client, 0, 0, 4096),
		agents.NewSolutionAgent(client, 0, 0, 4096),
		agents.NewActionAgent(client, 0, 0, 4096),
		"small", "large", 2, 10,
		services.NewDebugRunLogger(false, ""))

	handler := NewFormHandler(requestService, pipeline, userService)

	router := mux.NewRouter()
	router.HandleFunc("/form/analyze/async", handler.AnalyzeForm).Methods(http.MethodPost)
	router.HandleFunc("/form/request/{id}/status", handler.GetRequestStatus).Methods(http.MethodGet)
	router.HandleFunc("/form/request/{id}/actions", handler.GetRequestActions).Methods(http.MethodGet)
	router.HandleFunc("/form/request/{id}", handler.DeleteRequest).Methods(http.MethodDelete)

	return &formFixture{repo: repo, registry: registry, router: router}
}

func (f *formFixture) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req = req.WithContext(context.WithValue(req.Context(), userIDKey, userID))

	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func validAnalyzePayload() AnalyzeFormRequest {
	return AnalyzeFormRequest{
		HTML:        "<form><input name='email'></form>",
		VisibleText: "Email",
	}
}

func TestAnalyzeForm_Validation(t *testing.T) {
	fixture := newFormFixture(&blockingLLM{})

	cases := []struct {
		name    string
		payload AnalyzeFormRequest
		message string
	}{
		{"missing html", AnalyzeFormRequest{VisibleText: "x"}, "html is required"},
		{"missing visible text", AnalyzeFormRequest{HTML: "<form/>"}, "visible_text is required"},
		{"bad mode", AnalyzeFormRequest{HTML: "<form/>", VisibleText: "x", Mode: "turbo"}, "mode must be"},
		{"bad quality", AnalyzeFormRequest{HTML: "<form/>", VisibleText: "x", Quality: "best"}, "quality must be"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := fixture.do(t, http.MethodPost, "/form/analyze/async", "user-1", tc.payload)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			assert.Contains(t, recorder.Body.String(), tc.message)
		})
	}

	// Malformed JSON
	req := httptest.NewRequest(http.MethodPost, "/form/analyze/async", bytes.NewReader([]byte("{not json")))
	req = req.WithContext(context.WithValue(req.Context(), userIDKey, "user-1"))
	recorder := httptest.NewRecorder()
	fixture.router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestAnalyzeForm_AcceptsAndConflicts(t *testing.T) {
	client := &blockingLLM{release: make(chan struct{})}
	fixture := newFormFixture(client)

	recorder := fixture.do(t, http.MethodPost, "/form/analyze/async", "user-1", validAnalyzePayload())
	require.Equal(t, http.StatusAccepted, recorder.Code)

	var resp AnalyzeFormResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "pending", resp.Status)

	// The first request is still running: the user's slot is taken
	recorder = fixture.do(t, http.MethodPost, "/form/analyze/async", "user-1", validAnalyzePayload())
	assert.Equal(t, http.StatusConflict, recorder.Code)

	// Other users are unaffected
	recorder = fixture.do(t, http.MethodPost, "/form/analyze/async", "user-2", validAnalyzePayload())
	assert.Equal(t, http.StatusAccepted, recorder.Code)

	close(client.release)
	assert.Eventually(t, func() bool {
		return fixture.registry.Running() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGetRequestStatus(t *testing.T) {
	fixture := newFormFixture(&blockingLLM{})

	recorder := fixture.do(t, http.MethodGet, "/form/request/nope/status", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	accepted := fixture.do(t, http.MethodPost, "/form/analyze/async", "user-1", validAnalyzePayload())
	require.Equal(t, http.StatusAccepted, accepted.Code)
	var created AnalyzeFormResponse
	require.NoError(t, json.Unmarshal(accepted.Body.Bytes(), &created))

	assert.Eventually(t, func() bool {
		return fixture.registry.Running() == 0
	}, 5*time.Second, 10*time.Millisecond)

	recorder = fixture.do(t, http.MethodGet, "/form/request/"+created.RequestID+"/status", "user-1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var status models.FormRequestStatusDTO
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Equal(t, created.RequestID, status.ID)
	assert.Equal(t, "completed", status.Status)
	assert.NotEmpty(t, status.Progress)
	assert.Equal(t, "queued", status.Progress[0].Stage)

	// Another user sees 404, not 403
	recorder = fixture.do(t, http.MethodGet, "/form/request/"+created.RequestID+"/status", "user-2", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestGetRequestActions(t *testing.T) {
	fixture := newFormFixture(&blockingLLM{})

	request := &models.FormRequest{
		ID: "req-1", UserID: "user-1",
		Status: models.RequestStatusProcessingStep2, CreatedAt: time.Now(),
	}
	require.NoError(t, fixture.repo.CreateRequest(context.Background(), request))
	require.NoError(t, fixture.repo.SaveActions(context.Background(), "req-1", []*models.FormAction{
		{RequestID: "req-1", ActionType: models.ActionFillText, Selector: "#email", Value: "a@b.c"},
	}))

	// Not yet completed: no actions in the payload
	recorder := fixture.do(t, http.MethodGet, "/form/request/req-1/actions", "user-1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var resp RequestActionsResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "processing_step_2", resp.Status)
	assert.Empty(t, resp.Actions)

	require.NoError(t, fixture.repo.UpdateStatus(context.Background(), "req-1", models.RequestStatusCompleted, nil, ""))
	recorder = fixture.do(t, http.MethodGet, "/form/request/req-1/actions", "user-1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, "fillText", resp.Actions[0].ActionType)
	assert.Equal(t, "#email", resp.Actions[0].Selector)
}

func TestDeleteRequestEndpoint(t *testing.T) {
	fixture := newFormFixture(&blockingLLM{})

	request := &models.FormRequest{
		ID: "req-1", UserID: "user-1",
		Status: models.RequestStatusCompleted, CreatedAt: time.Now(),
	}
	require.NoError(t, fixture.repo.CreateRequest(context.Background(), request))

	recorder := fixture.do(t, http.MethodDelete, "/form/request/req-1", "user-2", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = fixture.do(t, http.MethodDelete, "/form/request/req-1", "user-1", nil)
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = fixture.do(t, http.MethodGet, "/form/request/req-1/status", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}
