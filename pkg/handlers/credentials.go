package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/auth"
	"github.com/ekaya-inc/ekaya-datahub/pkg/services"
)

// AddCredentialBody is the POST /api/projects/{pid}/credentials payload.
type AddCredentialBody struct {
	Key   string `json:"key" validate:"required,max=200"`
	Value string `json:"value" validate:"required"`
}

// UpdateCredentialBody is the PATCH .../credentials/{cid} payload.
type UpdateCredentialBody struct {
	Key   *string `json:"key" validate:"omitempty,min=1,max=200"`
	Value *string `json:"value" validate:"omitempty,min=1"`
}

// CredentialsHandler handles project credential requests. Responses carry
// ids and keys only, never secret values.
type CredentialsHandler struct {
	credentialService services.CredentialService
	logger            *zap.Logger
}

// NewCredentialsHandler creates a new credentials handler.
func NewCredentialsHandler(credentialService services.CredentialService, logger *zap.Logger) *CredentialsHandler {
	return &CredentialsHandler{credentialService: credentialService, logger: logger}
}

// RegisterRoutes registers the credentials handler's routes on the given mux.
func (h *CredentialsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/projects/{pid}/credentials", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST /api/projects/{pid}/credentials", authMiddleware.RequireAuth(h.Add))
	mux.HandleFunc("PATCH /api/projects/{pid}/credentials/{cid}", authMiddleware.RequireAuth(h.Update))
	mux.HandleFunc("DELETE /api/projects/{pid}/credentials/{cid}", authMiddleware.RequireAuth(h.Delete))
}

// List handles GET /api/projects/{pid}/credentials
func (h *CredentialsHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}

	creds, err := h.credentialService.List(r.Context(), ac, projectID)
	if err != nil {
		writeServiceError(w, err, "list credentials", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, creds, h.logger)
}

// Add handles POST /api/projects/{pid}/credentials
func (h *CredentialsHandler) Add(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}
	var body AddCredentialBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}

	cred, err := h.credentialService.Add(r.Context(), ac, projectID, body.Key, body.Value)
	if err != nil {
		writeServiceError(w, err, "add credential", h.logger)
		return
	}
	writeSuccess(w, http.StatusCreated, cred, h.logger)
}

// Update handles PATCH /api/projects/{pid}/credentials/{cid}
func (h *CredentialsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}
	credentialID, ok := pathParam(w, r, "cid", h.logger)
	if !ok {
		return
	}
	var body UpdateCredentialBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}

	cred, err := h.credentialService.Update(r.Context(), ac, projectID, credentialID, services.UpdateCredentialRequest{
		Key:   body.Key,
		Value: body.Value,
	})
	if err != nil {
		writeServiceError(w, err, "update credential", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, cred, h.logger)
}

// Delete handles DELETE /api/projects/{pid}/credentials/{cid}
func (h *CredentialsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}
	credentialID, ok := pathParam(w, r, "cid", h.logger)
	if !ok {
		return
	}

	if err := h.credentialService.Delete(r.Context(), ac, projectID, credentialID); err != nil {
		writeServiceError(w, err, "delete credential", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"id": credentialID}, h.logger)
}
