package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

func TestMembersHandler_Add(t *testing.T) {
	svc := &mockMemberService{members: []models.Member{{UserID: "u1", Role: models.RoleAdmin}, {UserID: "u2", Role: models.RoleViewer}}}
	handler := NewMembersHandler(svc, zap.NewNop())

	req := authedRequest(http.MethodPost, "/api/projects/p1/members", `{"user_id":"u2","role":"viewer"}`, "u1")
	req.SetPathValue("pid", "p1")
	rec := httptest.NewRecorder()

	handler.Add(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var members []models.Member
	decodeEnvelope(t, rec, &members)
	if len(members) != 2 {
		t.Errorf("expected 2 members, got %d", len(members))
	}
	if len(svc.calls) != 1 || svc.calls[0] != "Add:u2:viewer" {
		t.Errorf("unexpected calls %v", svc.calls)
	}
}

func TestMembersHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"last admin", apperrors.ErrLastAdmin, http.StatusBadRequest},
		{"invalid role", apperrors.ErrInvalidRole, http.StatusBadRequest},
		{"not admin", apperrors.ErrForbidden, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewMembersHandler(&mockMemberService{err: tt.err}, zap.NewNop())

			req := authedRequest(http.MethodPatch, "/api/projects/p1/members/u1", `{"role":"viewer"}`, "u1")
			req.SetPathValue("pid", "p1")
			req.SetPathValue("uid", "u1")
			rec := httptest.NewRecorder()

			handler.UpdateRole(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}
}

func TestMembersHandler_Remove(t *testing.T) {
	svc := &mockMemberService{members: []models.Member{{UserID: "u1", Role: models.RoleAdmin}}}
	handler := NewMembersHandler(svc, zap.NewNop())

	req := authedRequest(http.MethodDelete, "/api/projects/p1/members/u2", "", "u1")
	req.SetPathValue("pid", "p1")
	req.SetPathValue("uid", "u2")
	rec := httptest.NewRecorder()

	handler.Remove(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if len(svc.calls) != 1 || svc.calls[0] != "Remove:u2" {
		t.Errorf("unexpected calls %v", svc.calls)
	}
}
