package handlers

import (
	"context"
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

// FormHandler handles the asynchronous form analysis endpoints
type FormHandler struct {
	requests *services.RequestService
	pipeline *services.FormPipelineService
	users    *services.UserService
	logger   *slog.Logger
}

// NewFormHandler creates a new form handler
func NewFormHandler(requests *services.RequestService, pipeline *services.FormPipelineService, users *services.UserService) *FormHandler {
	return &FormHandler{
		requests: requests,
		pipeline: pipeline,
		users:    users,
		logger:   log.WithModule("form_handler"),
	}
}

// AnalyzeFormRequest is the POST /form/analyze/async payload
type AnalyzeFormRequest struct {
	HTML          string   `json:"html"`
	VisibleText   string   `json:"visible_text"`
	ClipboardText string   `json:"clipboard_text"`
	Screenshots   []string `json:"screenshots"`
	Mode          string   `json:"mode"`
	Quality       string   `json:"quality"`
}

// AnalyzeFormResponse acknowledges an accepted analysis request
type AnalyzeFormResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// AnalyzeForm handles form analysis submissions
// @Summary Analyze a form asynchronously
// @Description Create a form analysis request and schedule the pipeline
// @Tags form
// @Accept json
// @Produce json
// @Param request body AnalyzeFormRequest true "Form payload"
// @Success 202 {object} AnalyzeFormResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /form/analyze/async [post]
func (h *FormHandler) AnalyzeForm(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)

	var req AnalyzeFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.HTML == "" {
		writeError(w, http.StatusBadRequest, "html is required")
		return
	}
	if req.VisibleText == "" {
		writeError(w, http.StatusBadRequest, "visible_text is required")
		return
	}

	if req.Mode == "" {
		req.Mode = "basic"
	}
	if req.Mode != "basic" && req.Mode != "extended" {
		writeError(w, http.StatusBadRequest, "mode must be basic or extended")
		return
	}

	if req.Quality == "" {
		req.Quality = string(services.QualityFast)
	}
	quality, err := services.ParseQuality(req.Quality)
	if err != nil {
		writeError(w, http.StatusBadRequest, "quality must be one of fast, fast-pro, exact, exact-pro")
		return
	}

	// Screenshots are honoured only in extended mode.
	var screenshots [][]byte
	if req.Mode == "extended" {
		for i, encoded := range req.Screenshots {
			decoded, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				h.logger.Warn("skipping undecodable screenshot", "index", i, "error", err)
				continue
			}
			screenshots = append(screenshots, decoded)
		}
	}

	request, err := h.requests.CreateRequest(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrActiveRequestExists) {
			writeError(w, http.StatusConflict, "An analysis request is already in progress")
			return
		}
		h.logger.Error("failed to create request", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create request")
		return
	}

	input := services.PipelineInput{
		RequestID:            request.ID,
		UserID:               userID,
		HTML:                 req.HTML,
		VisibleText:          req.VisibleText,
		ClipboardText:        req.ClipboardText,
		PersonalInstructions: h.users.PersonalInstructions(r.Context(), userID),
		Screenshots:          screenshots,
		Quality:              quality,
	}
	if err := h.requests.Schedule(request.ID, userID, func(ctx context.Context) {
		h.pipeline.Run(ctx, input)
	}); err != nil {
		h.logger.Error("failed to schedule pipeline", "request_id", request.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to schedule request")
		return
	}

	writeJSON(w, http.StatusAccepted, AnalyzeFormResponse{
		RequestID: request.ID,
		Status:    string(models.RequestStatusPending),
	})
}

// GetRequestStatus returns the request state and ordered progress log
// @Summary Get request status
// @Description Poll a form analysis request's status and progress log
// @Tags form
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.FormRequestStatusDTO
// @Failure 404 {object} ErrorResponse
// @Router /form/request/{id}/status [get]
func (h *FormHandler) GetRequestStatus(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["id"]

	status, err := h.requests.GetStatus(r.Context(), requestID, UserID(r))
	if err != nil {
		if repositories.IsRequestNotFound(err) {
			writeError(w, http.StatusNotFound, "Request not found")
			return
		}
		h.logger.Error("failed to load request status", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load request status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// RequestActionsResponse carries the final action list
type RequestActionsResponse struct {
	RequestID string                 `json:"request_id"`
	Status    string                 `json:"status"`
	Actions   []models.FormActionDTO `json:"actions,omitempty"`
}

// GetRequestActions returns the generated actions of a completed request
// @Summary Get generated actions
// @Description Fetch the ordered action list once the request completed
// @Tags form
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} RequestActionsResponse
// @Failure 404 {object} ErrorResponse
// @Router /form/request/{id}/actions [get]
func (h *FormHandler) GetRequestActions(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["id"]

	request, actions, err := h.requests.GetActions(r.Context(), requestID, UserID(r))
	if err != nil {
		if repositories.IsRequestNotFound(err) {
			writeError(w, http.StatusNotFound, "Request not found")
			return
		}
		h.logger.Error("failed to load actions", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load actions")
		return
	}

	resp := RequestActionsResponse{
		RequestID: request.ID,
		Status:    string(request.Status),
	}
	if len(actions) > 0 {
		resp.Actions = make([]models.FormActionDTO, len(actions))
		for i, action := range actions {
			resp.Actions[i] = action.ToDTO()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteRequest cancels and deletes a request
// @Summary Delete a request
// @Description Cancel the running pipeline (if any) and delete the request
// @Tags form
// @Param id path string true "Request ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /form/request/{id} [delete]
func (h *FormHandler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["id"]

	if err := h.requests.DeleteRequest(r.Context(), requestID, UserID(r)); err != nil {
		if repositories.IsRequestNotFound(err) {
			writeError(w, http.StatusNotFound, "Request not found")
			return
		}
		h.logger.Error("failed to delete request", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete request")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
