package handlers

import (
	"context"
	"net/http"
	"time"

	"easyform/internal/repositories"
)

// HealthResponse reports the server and dependency status
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

// HealthHandler exposes liveness and readiness endpoints
type HealthHandler struct {
	requestRepo repositories.FormRequestRepository
	vectorRepo  repositories.VectorRepository
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(requestRepo repositories.FormRequestRepository, vectorRepo repositories.VectorRepository) *HealthHandler {
	return &HealthHandler{
		requestRepo: requestRepo,
		vectorRepo:  vectorRepo,
	}
}

// Health reports process liveness
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// Ready reports dependency readiness (Redis and ChromaDB)
// @Summary Readiness check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := map[string]string{
		"redis":    "healthy",
		"chromadb": "healthy",
	}
	healthy := true

	if err := h.requestRepo.Ping(ctx); err != nil {
		services["redis"] = "unavailable: " + err.Error()
		healthy = false
	}
	if err := h.vectorRepo.Ping(ctx); err != nil {
		services["chromadb"] = "unavailable: " + err.Error()
		healthy = false
	}

	status := http.StatusOK
	resp := HealthResponse{Status: "healthy", Services: services}
	if !healthy {
		status = http.StatusServiceUnavailable
		resp.Status = "degraded"
	}
	writeJSON(w, status, resp)
}
