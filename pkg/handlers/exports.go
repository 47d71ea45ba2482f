package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/auth"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
	"github.com/ekaya-inc/ekaya-datahub/pkg/services"
)

// exportOptionsBody holds the fields shared by every export create payload.
type exportOptionsBody struct {
	Name           string   `json:"name" validate:"required,max=200"`
	BackendKind    string   `json:"backend_kind"`
	Private        bool     `json:"private"`
	AllowedOrigins []string `json:"allowed_origins" validate:"omitempty,dive,required"`
}

// CreateStructuredExportBody is the POST .../exports payload.
type CreateStructuredExportBody struct {
	exportOptionsBody
	Fields []models.FieldDefinition `json:"fields" validate:"required,min=1,dive"`
}

// CreateRawExportBody is the POST .../exports/raw payload. Type is "raw"
// (default) or "json".
type CreateRawExportBody struct {
	exportOptionsBody
	Type string `json:"type" validate:"omitempty,oneof=raw json"`
	Data any    `json:"data" validate:"required"`
}

// CreateExternalExportBody is the POST .../exports/external payload.
type CreateExternalExportBody struct {
	exportOptionsBody
	APIURL       string                   `json:"api_url" validate:"required,url"`
	CredentialID string                   `json:"credential_id" validate:"required"`
	Prefix       string                   `json:"prefix" validate:"max=50"`
	Fields       []models.FieldDefinition `json:"fields" validate:"omitempty,dive"`
}

// UpdateExportBody is the PATCH .../exports/{eid} payload. Omitted fields
// are left unchanged.
type UpdateExportBody struct {
	Name           *string                   `json:"name" validate:"omitempty,min=1,max=200"`
	Private        *bool                     `json:"private"`
	AllowedOrigins *[]string                 `json:"allowed_origins" validate:"omitempty,dive,required"`
	Data           any                       `json:"data"`
	APIURL         *string                   `json:"api_url" validate:"omitempty,url"`
	CredentialID   *string                   `json:"credential_id" validate:"omitempty,min=1"`
	Prefix         *string                   `json:"prefix" validate:"omitempty,max=50"`
	Fields         *[]models.FieldDefinition `json:"fields" validate:"omitempty,dive"`
}

// InsertRowsBody is the POST .../exports/{eid}/data payload.
type InsertRowsBody struct {
	Rows []map[string]any `json:"rows" validate:"required,min=1"`
}

// ExportsHandler handles authenticated export management requests.
type ExportsHandler struct {
	exportService services.ExportService
	logger        *zap.Logger
}

// NewExportsHandler creates a new exports handler.
func NewExportsHandler(exportService services.ExportService, logger *zap.Logger) *ExportsHandler {
	return &ExportsHandler{exportService: exportService, logger: logger}
}

// RegisterRoutes registers the exports handler's routes on the given mux.
func (h *ExportsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/projects/{pid}/exports", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST /api/projects/{pid}/exports", authMiddleware.RequireAuth(h.CreateStructured))
	mux.HandleFunc("POST /api/projects/{pid}/exports/raw", authMiddleware.RequireAuth(h.CreateRaw))
	mux.HandleFunc("POST /api/projects/{pid}/exports/external", authMiddleware.RequireAuth(h.CreateExternal))
	mux.HandleFunc("GET /api/projects/{pid}/exports/{eid}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("PATCH /api/projects/{pid}/exports/{eid}", authMiddleware.RequireAuth(h.Update))
	mux.HandleFunc("DELETE /api/projects/{pid}/exports/{eid}", authMiddleware.RequireAuth(h.Delete))
	mux.HandleFunc("GET /api/projects/{pid}/exports/{eid}/data", authMiddleware.RequireAuth(h.ReadData))
	mux.HandleFunc("POST /api/projects/{pid}/exports/{eid}/data", authMiddleware.RequireAuth(h.InsertRows))
}

// List handles GET /api/projects/{pid}/exports
func (h *ExportsHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}

	exports, err := h.exportService.ListExports(r.Context(), ac, projectID)
	if err != nil {
		writeServiceError(w, err, "list exports", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, exports, h.logger)
}

func (h *ExportsHandler) options(w http.ResponseWriter, body exportOptionsBody) (services.ExportOptions, bool) {
	kind, ok := parseBackendKind(w, body.BackendKind, h.logger)
	if !ok {
		return services.ExportOptions{}, false
	}
	return services.ExportOptions{
		Name:           body.Name,
		BackendKind:    kind,
		Private:        body.Private,
		AllowedOrigins: body.AllowedOrigins,
	}, true
}

// CreateStructured handles POST /api/projects/{pid}/exports
func (h *ExportsHandler) CreateStructured(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}
	var body CreateStructuredExportBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}
	opts, ok := h.options(w, body.exportOptionsBody)
	if !ok {
		return
	}

	ref, err := h.exportService.CreateStructuredExport(r.Context(), ac, projectID, services.CreateStructuredExportRequest{
		ExportOptions: opts,
		Fields:        body.Fields,
	})
	if err != nil {
		writeServiceError(w, err, "create export", h.logger)
		return
	}
	writeSuccess(w, http.StatusCreated, ref, h.logger)
}

// CreateRaw handles POST /api/projects/{pid}/exports/raw
func (h *ExportsHandler) CreateRaw(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}
	var body CreateRawExportBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}
	opts, ok := h.options(w, body.exportOptionsBody)
	if !ok {
		return
	}

	ref, err := h.exportService.CreateRawExport(r.Context(), ac, projectID, services.CreateRawExportRequest{
		ExportOptions: opts,
		JSON:          body.Type == string(models.ExportJSON),
		Data:          body.Data,
	})
	if err != nil {
		writeServiceError(w, err, "create export", h.logger)
		return
	}
	writeSuccess(w, http.StatusCreated, ref, h.logger)
}

// CreateExternal handles POST /api/projects/{pid}/exports/external
func (h *ExportsHandler) CreateExternal(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}
	var body CreateExternalExportBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}
	opts, ok := h.options(w, body.exportOptionsBody)
	if !ok {
		return
	}

	ref, err := h.exportService.CreateExternalAPIExport(r.Context(), ac, projectID, services.CreateExternalAPIExportRequest{
		ExportOptions: opts,
		APIURL:        body.APIURL,
		CredentialID:  body.CredentialID,
		Prefix:        body.Prefix,
		Fields:        body.Fields,
	})
	if err != nil {
		writeServiceError(w, err, "create export", h.logger)
		return
	}
	writeSuccess(w, http.StatusCreated, ref, h.logger)
}

// Get handles GET /api/projects/{pid}/exports/{eid}
func (h *ExportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ac, projectID, exportID, ok := h.exportParams(w, r)
	if !ok {
		return
	}

	ref, err := h.exportService.GetExport(r.Context(), ac, projectID, exportID)
	if err != nil {
		writeServiceError(w, err, "get export", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, ref, h.logger)
}

// Update handles PATCH /api/projects/{pid}/exports/{eid}
func (h *ExportsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ac, projectID, exportID, ok := h.exportParams(w, r)
	if !ok {
		return
	}
	var body UpdateExportBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}

	ref, err := h.exportService.UpdateExport(r.Context(), ac, projectID, exportID, services.UpdateExportRequest{
		Name:           body.Name,
		Private:        body.Private,
		AllowedOrigins: body.AllowedOrigins,
		Data:           body.Data,
		APIURL:         body.APIURL,
		CredentialID:   body.CredentialID,
		Prefix:         body.Prefix,
		Fields:         body.Fields,
	})
	if err != nil {
		writeServiceError(w, err, "update export", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, ref, h.logger)
}

// Delete handles DELETE /api/projects/{pid}/exports/{eid}
func (h *ExportsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, projectID, exportID, ok := h.exportParams(w, r)
	if !ok {
		return
	}

	if err := h.exportService.DeleteExport(r.Context(), ac, projectID, exportID); err != nil {
		writeServiceError(w, err, "delete export", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"id": exportID}, h.logger)
}

// ReadData handles GET /api/projects/{pid}/exports/{eid}/data
func (h *ExportsHandler) ReadData(w http.ResponseWriter, r *http.Request) {
	ac, projectID, exportID, ok := h.exportParams(w, r)
	if !ok {
		return
	}

	data, err := h.exportService.ReadExportData(r.Context(), ac, projectID, exportID)
	if err != nil {
		writeServiceError(w, err, "read export data", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, data, h.logger)
}

// InsertRows handles POST /api/projects/{pid}/exports/{eid}/data
func (h *ExportsHandler) InsertRows(w http.ResponseWriter, r *http.Request) {
	ac, projectID, exportID, ok := h.exportParams(w, r)
	if !ok {
		return
	}
	var body InsertRowsBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}

	rows, err := h.exportService.InsertExportRows(r.Context(), ac, projectID, exportID, body.Rows)
	if err != nil {
		writeServiceError(w, err, "insert export rows", h.logger)
		return
	}
	writeSuccess(w, http.StatusCreated, rows, h.logger)
}

func (h *ExportsHandler) exportParams(w http.ResponseWriter, r *http.Request) (models.AuthContext, string, string, bool) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return models.AuthContext{}, "", "", false
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return models.AuthContext{}, "", "", false
	}
	exportID, ok := pathParam(w, r, "eid", h.logger)
	if !ok {
		return models.AuthContext{}, "", "", false
	}
	return ac, projectID, exportID, true
}
