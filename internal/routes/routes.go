package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"easyform/internal/handlers"
	"easyform/internal/metrics"
)

// Handlers bundles the application's HTTP handlers for route registration
type Handlers struct {
	Health *handlers.HealthHandler
	Form   *handlers.FormHandler
	File   *handlers.FileHandler
	User   *handlers.UserHandler
	Auth   *handlers.AuthMiddleware
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(router *mux.Router, h *Handlers) {
	// Unauthenticated endpoints
	router.HandleFunc("/health", h.Health.Health).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.Health.Ready).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Everything else requires an identity
	api := router.PathPrefix("/").Subrouter()
	api.Use(h.Auth.Handler)

	// Form analysis
	api.HandleFunc("/form/analyze/async", h.Form.AnalyzeForm).Methods(http.MethodPost)
	api.HandleFunc("/form/request/{id}/status", h.Form.GetRequestStatus).Methods(http.MethodGet)
	api.HandleFunc("/form/request/{id}/actions", h.Form.GetRequestActions).Methods(http.MethodGet)
	api.HandleFunc("/form/request/{id}", h.Form.DeleteRequest).Methods(http.MethodDelete)

	// Files
	api.HandleFunc("/files/upload", h.File.UploadFile).Methods(http.MethodPost)
	api.HandleFunc("/files", h.File.ListFiles).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}", h.File.GetFile).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}", h.File.DeleteFile).Methods(http.MethodDelete)

	// User settings and API tokens
	api.HandleFunc("/user/instructions", h.User.GetInstructions).Methods(http.MethodGet)
	api.HandleFunc("/user/instructions", h.User.UpdateInstructions).Methods(http.MethodPut)
	api.HandleFunc("/user/tokens", h.User.CreateToken).Methods(http.MethodPost)
	api.HandleFunc("/user/tokens", h.User.ListTokens).Methods(http.MethodGet)
	api.HandleFunc("/user/tokens/{token}", h.User.DeleteToken).Methods(http.MethodDelete)
}
