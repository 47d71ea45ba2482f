package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/auth"
	"github.com/ekaya-inc/ekaya-datahub/pkg/services"
)

// AddMemberBody is the POST /api/projects/{pid}/members payload.
type AddMemberBody struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

// UpdateMemberBody is the PATCH /api/projects/{pid}/members/{uid} payload.
type UpdateMemberBody struct {
	Role string `json:"role" validate:"required"`
}

// MembersHandler handles project membership requests.
type MembersHandler struct {
	memberService services.MemberService
	logger        *zap.Logger
}

// NewMembersHandler creates a new members handler.
func NewMembersHandler(memberService services.MemberService, logger *zap.Logger) *MembersHandler {
	return &MembersHandler{memberService: memberService, logger: logger}
}

// RegisterRoutes registers the members handler's routes on the given mux.
func (h *MembersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/projects/{pid}/members", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST /api/projects/{pid}/members", authMiddleware.RequireAuth(h.Add))
	mux.HandleFunc("PATCH /api/projects/{pid}/members/{uid}", authMiddleware.RequireAuth(h.UpdateRole))
	mux.HandleFunc("DELETE /api/projects/{pid}/members/{uid}", authMiddleware.RequireAuth(h.Remove))
}

// List handles GET /api/projects/{pid}/members
func (h *MembersHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}

	members, err := h.memberService.List(r.Context(), ac, projectID)
	if err != nil {
		writeServiceError(w, err, "list members", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, members, h.logger)
}

// Add handles POST /api/projects/{pid}/members
func (h *MembersHandler) Add(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}
	var body AddMemberBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}

	members, err := h.memberService.Add(r.Context(), ac, projectID, body.UserID, body.Role)
	if err != nil {
		writeServiceError(w, err, "add member", h.logger)
		return
	}
	writeSuccess(w, http.StatusCreated, members, h.logger)
}

// UpdateRole handles PATCH /api/projects/{pid}/members/{uid}
func (h *MembersHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}
	userID, ok := pathParam(w, r, "uid", h.logger)
	if !ok {
		return
	}
	var body UpdateMemberBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}

	members, err := h.memberService.UpdateRole(r.Context(), ac, projectID, userID, body.Role)
	if err != nil {
		writeServiceError(w, err, "update member", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, members, h.logger)
}

// Remove handles DELETE /api/projects/{pid}/members/{uid}
func (h *MembersHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}
	userID, ok := pathParam(w, r, "uid", h.logger)
	if !ok {
		return
	}

	members, err := h.memberService.Remove(r.Context(), ac, projectID, userID)
	if err != nil {
		writeServiceError(w, err, "remove member", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, members, h.logger)
}
