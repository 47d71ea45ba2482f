package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/auth"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// AuthResponse echoes the caller's resolved identity.
type AuthResponse struct {
	Logged bool `json:"logged"`
	models.AuthContext
}

// AuthHandler lets clients check that their token is accepted.
type AuthHandler struct {
	logger *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(logger *zap.Logger) *AuthHandler {
	return &AuthHandler{logger: logger}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/auth", authMiddleware.RequireAuth(h.Get))
}

// Get handles GET /api/auth
func (h *AuthHandler) Get(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, AuthResponse{Logged: true, AuthContext: ac}, h.logger)
}
