package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/auth"
	"github.com/ekaya-inc/ekaya-datahub/pkg/services"
)

// SetImageBody is the POST /api/projects/{pid}/image payload.
type SetImageBody struct {
	ImageURL string `json:"image_url" validate:"required,url"`
}

// FilesHandler handles project image and file upload requests.
type FilesHandler struct {
	fileService services.FileService
	logger      *zap.Logger
}

// NewFilesHandler creates a new files handler.
func NewFilesHandler(fileService services.FileService, logger *zap.Logger) *FilesHandler {
	return &FilesHandler{fileService: fileService, logger: logger}
}

// RegisterRoutes registers the files handler's routes on the given mux.
func (h *FilesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/projects/{pid}/image", authMiddleware.RequireAuth(h.SetImage))
	mux.HandleFunc("GET /api/projects/{pid}/image-upload-url", authMiddleware.RequireAuth(h.ImageUploadURL))
	mux.HandleFunc("DELETE /api/projects/{pid}/image", authMiddleware.RequireAuth(h.DeleteImage))
	mux.HandleFunc("GET /api/projects/{pid}/files", authMiddleware.RequireAuth(h.ListFiles))
	mux.HandleFunc("GET /api/projects/{pid}/upload-url", authMiddleware.RequireAuth(h.UploadURL))
}

// SetImage handles POST /api/projects/{pid}/image
func (h *FilesHandler) SetImage(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}
	var body SetImageBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}

	project, err := h.fileService.SetImage(r.Context(), ac, projectID, body.ImageURL)
	if err != nil {
		writeServiceError(w, err, "set project image", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, project, h.logger)
}

// ImageUploadURL handles GET /api/projects/{pid}/image-upload-url
func (h *FilesHandler) ImageUploadURL(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}

	url, err := h.fileService.GetImageUploadURL(r.Context(), ac, projectID)
	if err != nil {
		writeServiceError(w, err, "presign image upload", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, url, h.logger)
}

// DeleteImage handles DELETE /api/projects/{pid}/image
func (h *FilesHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}

	project, err := h.fileService.DeleteImage(r.Context(), ac, projectID)
	if err != nil {
		writeServiceError(w, err, "delete project image", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, project, h.logger)
}

// ListFiles handles GET /api/projects/{pid}/files
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}

	files, err := h.fileService.ListFiles(r.Context(), ac, projectID)
	if err != nil {
		writeServiceError(w, err, "list files", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, files, h.logger)
}

// UploadURL handles GET /api/projects/{pid}/upload-url?content_type=...
func (h *FilesHandler) UploadURL(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := pathParam(w, r, "pid", h.logger)
	if !ok {
		return
	}
	contentType := r.URL.Query().Get("content_type")
	if contentType == "" {
		writeError(w, http.StatusBadRequest, "missing_content_type", "content_type query parameter is required", h.logger)
		return
	}

	url, err := h.fileService.GetUploadURL(r.Context(), ac, projectID, contentType)
	if err != nil {
		writeServiceError(w, err, "presign upload", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, url, h.logger)
}
