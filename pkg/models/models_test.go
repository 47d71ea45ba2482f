package models

import "testing"

func TestParseBackendKind(t *testing.T) {
	tests := []struct {
		in     string
		want   BackendKind
		wantOK bool
	}{
		{"relational", BackendRelational, true},
		{" Postgres ", BackendRelational, true},
		{"sql", BackendRelational, true},
		{"document", BackendDocument, true},
		{"MONGO", BackendDocument, true},
		{"nosql", BackendDocument, true},
		{"", "", false},
		{"graph", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseBackendKind(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseBackendKind(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRoles(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	if IsValidRole("owner") {
		t.Error("IsValidRole(owner) = true")
	}
	if CanEdit(RoleViewer) || !CanEdit(RoleEditor) || !CanEdit(RoleAdmin) {
		t.Error("CanEdit: only editors and admins may edit")
	}
}

func TestProject_MemberAndAdminCount(t *testing.T) {
	p := &Project{Members: []Member{
		{UserID: "a", Role: RoleAdmin},
		{UserID: "b", Role: RoleAdmin, Archived: true},
		{UserID: "c", Role: RoleViewer},
	}}

	if got := p.AdminCount(); got != 1 {
		t.Errorf("AdminCount() = %d, want 1", got)
	}
	m := p.Member("c")
	if m == nil || m.Role != RoleViewer {
		t.Fatalf("Member(c) = %+v", m)
	}
	m.Role = RoleEditor
	if p.Members[2].Role != RoleEditor {
		t.Error("Member should return a pointer into the slice")
	}
	if p.Member("missing") != nil {
		t.Error("Member(missing) should be nil")
	}
}

func TestProjectMetadata_Lookup(t *testing.T) {
	md := &ProjectMetadata{
		Credentials: []Credential{{ID: "c1", Key: "k"}},
		Exports:     []ExportRef{{ID: "e1", Name: "Sales"}},
	}
	if e := md.Export("e1"); e == nil || e.Name != "Sales" {
		t.Errorf("Export(e1) = %+v", e)
	}
	if md.Export("e2") != nil {
		t.Error("Export(e2) should be nil")
	}
	if c := md.Credential("c1"); c == nil || c.Key != "k" {
		t.Errorf("Credential(c1) = %+v", c)
	}
	if md.Credential("c2") != nil {
		t.Error("Credential(c2) should be nil")
	}
}

func TestExportRef_Helpers(t *testing.T) {
	tests := []struct {
		name       string
		ref        ExportRef
		wantObject bool
		wantPrefix string
	}{
		{"structured", ExportRef{Type: ExportStructured, CollectionName: "p_sales"}, true, "Bearer"},
		{"raw without collection", ExportRef{Type: ExportRaw}, false, "Bearer"},
		{"external api", ExportRef{Type: ExportExternalAPI, CollectionName: "p_api", Prefix: "Token"}, false, "Token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ref.HasStorageObject(); got != tt.wantObject {
				t.Errorf("HasStorageObject() = %v, want %v", got, tt.wantObject)
			}
			if got := tt.ref.AuthPrefix(); got != tt.wantPrefix {
				t.Errorf("AuthPrefix() = %q, want %q", got, tt.wantPrefix)
			}
		})
	}
}
