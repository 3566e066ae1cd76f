package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"easyform/internal/log"
	"easyform/internal/models"
	"easyform/internal/repositories"
	"easyform/internal/services"
)

// FileHandler handles document upload and management endpoints
type FileHandler struct {
	files  *services.FileService
	logger *slog.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(files *services.FileService) *FileHandler {
	return &FileHandler{
		files:  files,
		logger: log.WithModule("file_handler"),
	}
}

// UploadFileRequest is the POST /files/upload payload
type UploadFileRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"` // base64
}

// UploadFile handles document uploads
// @Summary Upload a document
// @Description Accept a base64-encoded file and start background ingestion
// @Tags files
// @Accept json
// @Produce json
// @Param request body UploadFileRequest true "File payload"
// @Success 202 {object} models.FileDTO
// @Failure 400 {object} ErrorResponse
// @Router /files/upload [post]
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)

	var req UploadFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, "content must be base64-encoded")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "content is empty")
		return
	}

	file, err := h.files.Upload(r.Context(), userID, req.Filename, req.ContentType, data)
	if err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, validationErr.Message)
			return
		}
		h.logger.Error("upload failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	writeJSON(w, http.StatusAccepted, file.ToDTO())
}

// FileListResponse lists a user's files
type FileListResponse struct {
	Files []models.FileDTO `json:"files"`
	Count int              `json:"count"`
}

// ListFiles returns the caller's files, newest first
// @Summary List files
// @Tags files
// @Produce json
// @Success 200 {object} FileListResponse
// @Router /files [get]
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.ListFiles(r.Context(), UserID(r))
	if err != nil {
		h.logger.Error("failed to list files", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list files")
		return
	}

	resp := FileListResponse{Files: make([]models.FileDTO, len(files)), Count: len(files)}
	for i, file := range files {
		resp.Files[i] = file.ToDTO()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetFile returns one file's metadata and processing status
// @Summary Get file
// @Tags files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} models.FileDTO
// @Failure 404 {object} ErrorResponse
// @Router /files/{id} [get]
func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]

	file, err := h.files.GetFileForUser(r.Context(), fileID, UserID(r))
	if err != nil {
		if repositories.IsFileNotFound(err) {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		h.logger.Error("failed to get file", "file_id", fileID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get file")
		return
	}
	writeJSON(w, http.StatusOK, file.ToDTO())
}

// DeleteFile removes a file with its chunks and vectors
// @Summary Delete file
// @Tags files
// @Param id path string true "File ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /files/{id} [delete]
func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]

	if err := h.files.DeleteFile(r.Context(), fileID, UserID(r)); err != nil {
		if repositories.IsFileNotFound(err) {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		h.logger.Error("failed to delete file", "file_id", fileID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete file")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
