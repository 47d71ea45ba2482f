package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) ApiResponse {
	t.Helper()
	var resp struct {
		ApiResponse
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v (%s)", err, rec.Body.String())
	}
	if data != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, data); err != nil {
			t.Fatalf("failed to parse data: %v", err)
		}
	}
	return resp.ApiResponse
}

func TestProjectsHandler_Create_Success(t *testing.T) {
	svc := &mockProjectService{project: &models.Project{ID: "p1", Name: "Demo", BackendKind: models.BackendDocument}}
	handler := NewProjectsHandler(svc, zap.NewNop())

	req := authedRequest(http.MethodPost, "/api/projects",
		`{"name":"Demo","backend_kind":"mongo","allow_sharing":true,"allowed_origins":["https://a.example"]}`, "user-1")
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var project models.Project
	resp := decodeEnvelope(t, rec, &project)
	if !resp.Success {
		t.Error("expected success")
	}
	if project.ID != "p1" {
		t.Errorf("expected project p1, got %q", project.ID)
	}
	if svc.createReq.BackendKind != models.BackendDocument {
		t.Errorf("expected alias mongo to resolve to document, got %q", svc.createReq.BackendKind)
	}
	if !svc.createReq.AllowSharing || len(svc.createReq.AllowedOrigins) != 1 {
		t.Errorf("request not passed through: %+v", svc.createReq)
	}
	if svc.auth.UserID != "user-1" || svc.auth.Username != "user-1-name" {
		t.Errorf("unexpected auth context %+v", svc.auth)
	}
}

func TestProjectsHandler_Create_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"description":"x"}`},
		{"unknown backend", `{"name":"x","backend_kind":"oracle"}`},
		{"empty origin", `{"name":"x","allowed_origins":[""]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockProjectService{}
			handler := NewProjectsHandler(svc, zap.NewNop())

			rec := httptest.NewRecorder()
			handler.Create(rec, authedRequest(http.MethodPost, "/api/projects", tt.body, "user-1"))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
			if len(svc.calls) != 0 {
				t.Errorf("service should not be called, got %v", svc.calls)
			}
		})
	}
}

func TestProjectsHandler_RequiresCaller(t *testing.T) {
	svc := &mockProjectService{}
	handler := NewProjectsHandler(svc, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/projects", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
	if len(svc.calls) != 0 {
		t.Errorf("service should not be called, got %v", svc.calls)
	}
}

func TestProjectsHandler_List_ArchivedFilter(t *testing.T) {
	tests := []struct {
		query    string
		wantCode int
		want     *bool
	}{
		{"", http.StatusOK, nil},
		{"?archived=true", http.StatusOK, boolPtr(true)},
		{"?archived=false", http.StatusOK, boolPtr(false)},
		{"?archived=maybe", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			svc := &mockProjectService{items: []models.ProjectListItem{{ID: "p1"}}}
			handler := NewProjectsHandler(svc, zap.NewNop())

			rec := httptest.NewRecorder()
			handler.List(rec, authedRequest(http.MethodGet, "/api/projects"+tt.query, "", "user-1"))

			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			switch {
			case tt.want == nil && svc.archived != nil:
				t.Errorf("expected nil filter, got %v", *svc.archived)
			case tt.want != nil && (svc.archived == nil || *svc.archived != *tt.want):
				t.Errorf("expected filter %v, got %v", *tt.want, svc.archived)
			}
		})
	}
}

func TestProjectsHandler_Get_MapsErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not found", apperrors.ErrNotFound, http.StatusNotFound},
		{"not a member", apperrors.ErrForbidden, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewProjectsHandler(&mockProjectService{err: tt.err}, zap.NewNop())

			req := authedRequest(http.MethodGet, "/api/projects/p1", "", "user-1")
			req.SetPathValue("pid", "p1")
			rec := httptest.NewRecorder()

			handler.Get(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}
}

func TestProjectsHandler_Update_PartialFields(t *testing.T) {
	svc := &mockProjectService{project: &models.Project{ID: "p1"}}
	handler := NewProjectsHandler(svc, zap.NewNop())

	req := authedRequest(http.MethodPatch, "/api/projects/p1", `{"allow_upload":true}`, "user-1")
	req.SetPathValue("pid", "p1")
	rec := httptest.NewRecorder()

	handler.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if svc.updateReq.Name != nil || svc.updateReq.AllowedOrigins != nil {
		t.Errorf("omitted fields should stay nil: %+v", svc.updateReq)
	}
	if svc.updateReq.AllowUpload == nil || !*svc.updateReq.AllowUpload {
		t.Error("expected allow_upload=true")
	}
}

func TestProjectsHandler_ArchiveAndUnarchive(t *testing.T) {
	svc := &mockProjectService{items: []models.ProjectListItem{{ID: "p1", Archived: true}}}
	handler := NewProjectsHandler(svc, zap.NewNop())

	for _, h := range []http.HandlerFunc{handler.Archive, handler.Unarchive} {
		req := authedRequest(http.MethodPatch, "/", "", "user-1")
		req.SetPathValue("pid", "p1")
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	}

	want := []string{"Archive:p1", "Unarchive:p1"}
	if len(svc.calls) != 2 || svc.calls[0] != want[0] || svc.calls[1] != want[1] {
		t.Errorf("expected calls %v, got %v", want, svc.calls)
	}
}

func boolPtr(b bool) *bool { return &b }
