package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/services"
)

// PublicExportsHandler serves non-private exports to anonymous callers,
// gated by the export's effective origin list.
type PublicExportsHandler struct {
	exportService services.ExportService
	logger        *zap.Logger
}

// NewPublicExportsHandler creates a new public exports handler.
func NewPublicExportsHandler(exportService services.ExportService, logger *zap.Logger) *PublicExportsHandler {
	return &PublicExportsHandler{exportService: exportService, logger: logger}
}

// RegisterRoutes registers the public routes. They carry no auth middleware.
func (h *PublicExportsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /public/projects/{pid}/exports/{eid}", h.Read)
	mux.HandleFunc("OPTIONS /public/projects/{pid}/exports/{eid}", h.Preflight)
}

// Read handles GET /public/projects/{pid}/exports/{eid}
// The body is the export data itself, without the ApiResponse envelope.
func (h *PublicExportsHandler) Read(w http.ResponseWriter, r *http.Request) {
	projectID, exportID, ok := h.params(w, r)
	if !ok {
		return
	}
	origin, hasOrigin := requestOrigin(r)

	result, err := h.exportService.ReadPublicExport(r.Context(), projectID, exportID, origin, hasOrigin)
	if err != nil {
		writeServiceError(w, err, "read public export", h.logger)
		return
	}
	setCORSHeaders(w, result.AllowOrigin)
	if err := WriteJSON(w, http.StatusOK, result.Data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Preflight handles OPTIONS /public/projects/{pid}/exports/{eid}
func (h *PublicExportsHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	projectID, exportID, ok := h.params(w, r)
	if !ok {
		return
	}
	origin, hasOrigin := requestOrigin(r)

	allowOrigin, err := h.exportService.CheckPublicAccess(r.Context(), projectID, exportID, origin, hasOrigin)
	if err != nil {
		writeServiceError(w, err, "check public export access", h.logger)
		return
	}
	setCORSHeaders(w, allowOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

func (h *PublicExportsHandler) params(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return "", "", false
	}
	exportID, ok := pathParam(w, r, "eid", h.logger)
	if !ok {
		return "", "", false
	}
	return projectID, exportID, true
}

// requestOrigin distinguishes a missing Origin header from an empty one.
func requestOrigin(r *http.Request) (string, bool) {
	values, ok := r.Header["Origin"]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func setCORSHeaders(w http.ResponseWriter, allowOrigin string) {
	if allowOrigin == "" {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
	if allowOrigin != "*" {
		w.Header().Add("Vary", "Origin")
	}
}
