package handlers

import (
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

// UserHandler handles personal instructions and API token endpoints
type UserHandler struct {
	users  *services.UserService
	logger *slog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: log.WithModule("user_handler"),
	}
}

// InstructionsResponse carries the stored personal instructions
type InstructionsResponse struct {
	PersonalInstructions string `json:"personal_instructions"`
}

// GetInstructions returns the caller's personal instructions
// @Summary Get personal instructions
// @Tags user
// @Produce json
// @Success 200 {object} InstructionsResponse
// @Router /user/instructions [get]
func (h *UserHandler) GetInstructions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InstructionsResponse{
		PersonalInstructions: h.users.PersonalInstructions(r.Context(), UserID(r)),
	})
}

// UpdateInstructions stores the caller's personal instructions
// @Summary Update personal instructions
// @Tags user
// @Accept json
// @Produce json
// @Param request body InstructionsResponse true "Instructions"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /user/instructions [put]
func (h *UserHandler) UpdateInstructions(w http.ResponseWriter, r *http.Request) {
	var req InstructionsResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.users.UpdateInstructions(r.Context(), UserID(r), req.PersonalInstructions); err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, validationErr.Message)
			return
		}
		h.logger.Error("failed to update instructions", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update instructions")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Instructions updated"})
}

// CreateTokenRequest names a new API token
type CreateTokenRequest struct {
	Name string `json:"name"`
}

// CreateToken issues a new API token for the caller
// @Summary Create API token
// @Tags user
// @Accept json
// @Produce json
// @Param request body CreateTokenRequest true "Token name"
// @Success 201 {object} models.APITokenDTO
// @Router /user/tokens [post]
func (h *UserHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	token, err := h.users.CreateToken(r.Context(), UserID(r), req.Name)
	if err != nil {
		h.logger.Error("failed to create token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}
	writeJSON(w, http.StatusCreated, token.ToDTO())
}

// TokenListResponse lists the caller's API tokens
type TokenListResponse struct {
	Tokens []models.APITokenDTO `json:"tokens"`
	Count  int                  `json:"count"`
}

// ListTokens returns the caller's API tokens, oldest first
// @Summary List API tokens
// @Tags user
// @Produce json
// @Success 200 {object} TokenListResponse
// @Router /user/tokens [get]
func (h *UserHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.users.ListTokens(r.Context(), UserID(r))
	if err != nil {
		h.logger.Error("failed to list tokens", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list tokens")
		return
	}

	resp := TokenListResponse{Tokens: make([]models.APITokenDTO, len(tokens)), Count: len(tokens)}
	for i, token := range tokens {
		resp.Tokens[i] = token.ToDTO()
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteToken revokes one of the caller's API tokens
// @Summary Delete API token
// @Tags user
// @Param token path string true "Token"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /user/tokens/{token} [delete]
func (h *UserHandler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	if err := h.users.DeleteToken(r.Context(), UserID(r), token); err != nil {
		if repositories.IsTokenNotFound(err) {
			writeError(w, http.StatusNotFound, "Token not found")
			return
		}
		h.logger.Error("failed to delete token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
