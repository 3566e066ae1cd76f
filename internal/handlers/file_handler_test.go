package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easyform/internal/models"
	"easyform/internal/repositories"
	"easyform/internal/services"
)

// memFileRepo is an in-memory FileRepository for handler tests.
type memFileRepo struct {
	mu    sync.Mutex
	files map[string]*models.File
}

func newMemFileRepo() *memFileRepo {
	return &memFileRepo{files: make(map[string]*models.File)}
}

func (r *memFileRepo) CreateFile(ctx context.Context, file *models.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *file
	r.files[file.ID] = &copied
	return nil
}

func (r *memFileRepo) GetFile(ctx context.Context, id string) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return nil, repositories.FileNotFoundError(id)
	}
	copied := *file
	return &copied, nil
}

func (r *memFileRepo) ListFilesByUser(ctx context.Context, userID string) ([]*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.File
	for _, file := range r.files {
		if file.UserID == userID {
			copied := *file
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memFileRepo) UpdateFile(ctx context.Context, file *models.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *file
	r.files[file.ID] = &copied
	return nil
}

func (r *memFileRepo) DeleteFile(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, id)
	return nil
}

func (r *memFileRepo) Ping(ctx context.Context) error { return nil }

// noopChunkRepo satisfies ChunkRepository where chunk storage is irrelevant.
type noopChunkRepo struct{}

func (noopChunkRepo) CreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error {
	return nil
}

func (noopChunkRepo) GetChunksByIDs(ctx context.Context, ids []string) ([]*models.DocumentChunk, []string, error) {
	return nil, ids, nil
}

func (noopChunkRepo) GetChunksByFile(ctx context.Context, fileID string) ([]*models.DocumentChunk, error) {
	return nil, nil
}

func (noopChunkRepo) DeleteChunksByFile(ctx context.Context, fileID string) ([]string, error) {
	return nil, nil
}

func (noopChunkRepo) Ping(ctx context.Context) error { return nil }

// noopVectorIndex satisfies VectorRepository where vectors are irrelevant.
type noopVectorIndex struct{}

func (noopVectorIndex) EnsureCollection(ctx context.Context) error { return nil }

func (noopVectorIndex) AddEmbeddings(ctx context.Context, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]interface{}) error {
	return nil
}

func (noopVectorIndex) Query(ctx context.Context, embedding []float32, topK int, userID string) ([]models.VectorHit, error) {
	return nil, nil
}

func (noopVectorIndex) DeleteByFile(ctx context.Context, userID, fileID string) (int, error) {
	return 0, nil
}

func (noopVectorIndex) DeleteByIDs(ctx context.Context, ids []string) error { return nil }

func (noopVectorIndex) Ping(ctx context.Context) error { return nil }

type fileFixture struct {
	repo   *memFileRepo
	router *mux.Router
}

func newFileFixture() *fileFixture {
	repo := newMemFileRepo()
	rag := services.NewRAGService(noopChunkRepo{}, repo, noopVectorIndex{}, noopVectorIndex{},
		offlineEmbedder{}, services.NewGatewayImageEmbedder(nil),
		services.NewDocumentProcessor(services.NewChunker(512, 50), nil), 5)
	handler := NewFileHandler(services.NewFileService(repo, rag, 1024))

	router := mux.NewRouter()
	router.HandleFunc("/files/upload", handler.UploadFile).Methods(http.MethodPost)
	router.HandleFunc("/files", handler.ListFiles).Methods(http.MethodGet)
	router.HandleFunc("/files/{id}", handler.GetFile).Methods(http.MethodGet)
	router.HandleFunc("/files/{id}", handler.DeleteFile).Methods(http.MethodDelete)
	return &fileFixture{repo: repo, router: router}
}

func (f *fileFixture) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
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

func TestUploadFile_Validation(t *testing.T) {
	fixture := newFileFixture()

	cases := []struct {
		name    string
		payload UploadFileRequest
		message string
	}{
		{"missing filename", UploadFileRequest{ContentType: "application/pdf", Content: "aGk="}, "filename is required"},
		{"bad base64", UploadFileRequest{Filename: "a.pdf", ContentType: "application/pdf", Content: "!!!"}, "base64"},
		{"empty content", UploadFileRequest{Filename: "a.pdf", ContentType: "application/pdf", Content: ""}, "content is empty"},
		{"bad content type", UploadFileRequest{Filename: "a.docx", ContentType: "application/msword", Content: "aGk="}, "unsupported content type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := fixture.do(t, http.MethodPost, "/files/upload", "user-1", tc.payload)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			assert.Contains(t, recorder.Body.String(), tc.message)
		})
	}
}

func TestUploadFile_RejectsOversized(t *testing.T) {
	fixture := newFileFixture()

	big := make([]byte, 2048) // fixture limit is 1024
	recorder := fixture.do(t, http.MethodPost, "/files/upload", "user-1", UploadFileRequest{
		Filename:    "big.pdf",
		ContentType: "application/pdf",
		Content:     base64.StdEncoding.EncodeToString(big),
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "maximum size")
}

func TestUploadFile_Accepted(t *testing.T) {
	fixture := newFileFixture()

	recorder := fixture.do(t, http.MethodPost, "/files/upload", "user-1", UploadFileRequest{
		Filename:    "doc.pdf",
		ContentType: "application/pdf",
		Content:     base64.StdEncoding.EncodeToString([]byte("%PDF-fake")),
	})
	require.Equal(t, http.StatusAccepted, recorder.Code)

	var dto models.FileDTO
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &dto))
	assert.NotEmpty(t, dto.ID)
	assert.Equal(t, "doc.pdf", dto.Filename)
	assert.Equal(t, "pending", dto.Status)

	// Background ingestion of the fake PDF eventually marks the file failed
	assert.Eventually(t, func() bool {
		stored, err := fixture.repo.GetFile(context.Background(), dto.ID)
		return err == nil && stored.Status == models.FileStatusFailed
	}, 5*time.Second, 20*time.Millisecond)
}

func TestGetAndDeleteFile_Ownership(t *testing.T) {
	fixture := newFileFixture()
	require.NoError(t, fixture.repo.CreateFile(context.Background(), &models.File{
		ID: "f1", UserID: "user-1", Filename: "doc.pdf",
		ContentType: "application/pdf", Status: models.FileStatusCompleted,
	}))

	recorder := fixture.do(t, http.MethodGet, "/files/f1", "user-1", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = fixture.do(t, http.MethodGet, "/files/f1", "user-2", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = fixture.do(t, http.MethodDelete, "/files/f1", "user-2", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = fixture.do(t, http.MethodDelete, "/files/f1", "user-1", nil)
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = fixture.do(t, http.MethodGet, "/files/f1", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestListFiles(t *testing.T) {
	fixture := newFileFixture()
	require.NoError(t, fixture.repo.CreateFile(context.Background(), &models.File{
		ID: "f1", UserID: "user-1", Filename: "a.pdf",
		ContentType: "application/pdf", Status: models.FileStatusCompleted,
	}))
	require.NoError(t, fixture.repo.CreateFile(context.Background(), &models.File{
		ID: "f2", UserID: "user-2", Filename: "b.pdf",
		ContentType: "application/pdf", Status: models.FileStatusCompleted,
	}))

	recorder := fixture.do(t, http.MethodGet, "/files", "user-1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp FileListResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "a.pdf", resp.Files[0].Filename)
}
