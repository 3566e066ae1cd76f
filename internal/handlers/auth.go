package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"easyform/internal/log"
	"easyform/internal/models"
	"easyform/internal/repositories"
	"easyform/internal/services"
)

type contextKey string

const userIDKey contextKey = "user_id"

const sessionCookieName = "session_id"

// AuthMiddleware resolves the caller's identity from either a bearer API
// token or a session cookie and stores the user id on the request context.
type AuthMiddleware struct {
	users  *services.UserService
	logger *slog.Logger
}

// NewAuthMiddleware creates the authentication middleware.
func NewAuthMiddleware(users *services.UserService) *AuthMiddleware {
	return &AuthMiddleware{
		users:  users,
		logger: log.WithModule("auth"),
	}
}

// Handler wraps next with authentication. Requests without a resolvable
// identity receive 401.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := m.resolve(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func (m *AuthMiddleware) resolve(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(token, models.TokenPrefix) {
			return "", false
		}
		userID, err := m.users.ResolveToken(r.Context(), token)
		if err != nil {
			if !repositories.IsTokenNotFound(err) {
				m.logger.Error("token resolution failed", "error", err)
			}
			return "", false
		}
		return userID, true
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if _, err := m.users.GetOrCreateUser(r.Context(), cookie.Value); err != nil {
			m.logger.Error("session user lookup failed", "error", err)
			return "", false
		}
		return cookie.Value, true
	}

	return "", false
}

// UserID extracts the authenticated user id from the request context.
func UserID(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey).(string)
	return userID
}
