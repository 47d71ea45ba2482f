package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/auth"
	"github.com/ekaya-inc/ekaya-datahub/pkg/services"
)

// CreateProjectBody is the POST /api/projects payload.
type CreateProjectBody struct {
	Name           string   `json:"name" validate:"required,max=200"`
	Description    string   `json:"description" validate:"max=2000"`
	BackendKind    string   `json:"backend_kind"`
	AllowUpload    bool     `json:"allow_upload"`
	AllowSharing   bool     `json:"allow_sharing"`
	AllowedOrigins []string `json:"allowed_origins" validate:"omitempty,dive,required"`
}

// UpdateProjectBody is the PATCH /api/projects/{pid} payload. Omitted
// fields are left unchanged.
type UpdateProjectBody struct {
	Name           *string   `json:"name" validate:"omitempty,min=1,max=200"`
	Description    *string   `json:"description" validate:"omitempty,max=2000"`
	AllowUpload    *bool     `json:"allow_upload"`
	AllowSharing   *bool     `json:"allow_sharing"`
	AllowedOrigins *[]string `json:"allowed_origins" validate:"omitempty,dive,required"`
}

// ProjectsHandler handles project-related HTTP requests.
type ProjectsHandler struct {
	projectService services.ProjectService
	logger         *zap.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(projectService services.ProjectService, logger *zap.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projectService: projectService,
		logger:         logger,
	}
}

// RegisterRoutes registers the projects handler's routes on the given mux.
func (h *ProjectsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/projects", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST /api/projects", authMiddleware.RequireAuth(h.Create))
	mux.HandleFunc("GET /api/projects/{pid}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("PATCH /api/projects/{pid}", authMiddleware.RequireAuth(h.Update))
	mux.HandleFunc("DELETE /api/projects/{pid}", authMiddleware.RequireAuth(h.Delete))
	mux.HandleFunc("PATCH /api/projects/{pid}/archive", authMiddleware.RequireAuth(h.Archive))
	mux.HandleFunc("PATCH /api/projects/{pid}/unarchive", authMiddleware.RequireAuth(h.Unarchive))
}

// List handles GET /api/projects?archived=true|false
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	archived, ok := parseOptionalBool(w, r, "archived", h.logger)
	if !ok {
		return
	}

	items, err := h.projectService.List(r.Context(), ac, archived)
	if err != nil {
		writeServiceError(w, err, "list projects", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, items, h.logger)
}

// Create handles POST /api/projects
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	var body CreateProjectBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}
	kind, ok := parseBackendKind(w, body.BackendKind, h.logger)
	if !ok {
		return
	}

	project, err := h.projectService.Create(r.Context(), ac, services.CreateProjectRequest{
		Name:           body.Name,
		Description:    body.Description,
		BackendKind:    kind,
		AllowUpload:    body.AllowUpload,
		AllowSharing:   body.AllowSharing,
		AllowedOrigins: body.AllowedOrigins,
	})
	if err != nil {
		writeServiceError(w, err, "create project", h.logger)
		return
	}
	writeSuccess(w, http.StatusCreated, project, h.logger)
}

// Get handles GET /api/projects/{pid}
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}

	project, err := h.projectService.Get(r.Context(), ac, projectID)
	if err != nil {
		writeServiceError(w, err, "get project", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, project, h.logger)
}

// Update handles PATCH /api/projects/{pid}
func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}
	var body UpdateProjectBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}

	project, err := h.projectService.Update(r.Context(), ac, projectID, services.UpdateProjectRequest{
		Name:           body.Name,
		Description:    body.Description,
		AllowUpload:    body.AllowUpload,
		AllowSharing:   body.AllowSharing,
		AllowedOrigins: body.AllowedOrigins,
	})
	if err != nil {
		writeServiceError(w, err, "update project", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, project, h.logger)
}

// Delete handles DELETE /api/projects/{pid}
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}

	result, err := h.projectService.Delete(r.Context(), ac, projectID)
	if err != nil {
		writeServiceError(w, err, "delete project", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, result, h.logger)
}

// Archive handles PATCH /api/projects/{pid}/archive
func (h *ProjectsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

// Unarchive handles PATCH /api/projects/{pid}/unarchive
func (h *ProjectsHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *ProjectsHandler) setArchived(w http.ResponseWriter, r *http.Request, archive bool) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}

	op, action := h.projectService.Unarchive, "unarchive project"
	if archive {
		op, action = h.projectService.Archive, "archive project"
	}
	items, err := op(r.Context(), ac, projectID)
	if err != nil {
		writeServiceError(w, err, action, h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, items, h.logger)
}
