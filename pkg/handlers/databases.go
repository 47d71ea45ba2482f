package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/auth"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// ConnectionLister exposes the live backend connections.
type ConnectionLister interface {
	ListConnected() []string
	Get(id string) (*backend.Connection, error)
}

// DatabaseInfo describes one connected backend.
type DatabaseInfo struct {
	ID      string             `json:"id"`
	Kind    models.BackendKind `json:"kind"`
	Primary bool               `json:"primary"`
}

// DatabasesResponse lists the connected backends and the kinds this build supports.
type DatabasesResponse struct {
	Databases []DatabaseInfo        `json:"databases"`
	Adapters  []backend.AdapterInfo `json:"adapters"`
}

// DatabasesHandler tells clients which backends they may pick for a project.
type DatabasesHandler struct {
	conns  ConnectionLister
	logger *zap.Logger
}

// NewDatabasesHandler creates a new databases handler.
func NewDatabasesHandler(conns ConnectionLister, logger *zap.Logger) *DatabasesHandler {
	return &DatabasesHandler{conns: conns, logger: logger}
}

// RegisterRoutes registers the databases handler's routes on the given mux.
func (h *DatabasesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/databases", authMiddleware.RequireAuth(h.List))
}

// List handles GET /api/databases
func (h *DatabasesHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireCaller(w, r, h.logger); !ok {
		return
	}

	resp := DatabasesResponse{Databases: []DatabaseInfo{}, Adapters: backend.RegisteredAdapters()}
	for _, id := range h.conns.ListConnected() {
		conn, err := h.conns.Get(id)
		if err != nil {
			// Closed between the two calls.
			continue
		}
		resp.Databases = append(resp.Databases, DatabaseInfo{ID: conn.ID, Kind: conn.Kind, Primary: conn.IsPrimary})
	}
	writeSuccess(w, http.StatusOK, resp, h.logger)
}
