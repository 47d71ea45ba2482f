package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/auth"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// Project, export and credential ids are opaque strings: UUIDs on the
// relational backend, ObjectIDs on the document backend. Handlers only check
// presence; the services report malformed ids as not found.

// pathParam returns a required path value, writing a 400 when it is empty.
func pathParam(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (string, bool) {
	v := r.PathValue(name)
	if v == "" {
		writeError(w, http.StatusBadRequest, "missing_"+name, "Missing path parameter "+name, logger)
		return "", false
	}
	return v, true
}

// requireCaller returns the authenticated identity, writing a 401 when the
// context carries none.
func requireCaller(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (models.AuthContext, bool) {
	ac, err := auth.RequireAuthContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", logger)
		return models.AuthContext{}, false
	}
	return ac, true
}

// parseBackendKind accepts an empty value (use the default) or any kind alias.
func parseBackendKind(w http.ResponseWriter, raw string, logger *zap.Logger) (models.BackendKind, bool) {
	if raw == "" {
		return "", true
	}
	kind, ok := models.ParseBackendKind(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_backend_kind", "Unknown backend kind "+strconv.Quote(raw), logger)
		return "", false
	}
	return kind, true
}

// parseOptionalBool reads a true/false query parameter. Absent means nil.
func parseOptionalBool(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (*bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be true or false", logger)
		return nil, false
	}
	return &v, true
}
