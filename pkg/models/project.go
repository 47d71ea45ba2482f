// Package models contains domain types for ekaya-datahub.
package models

import "time"

// Project is a tenant workspace. It lives on the backend named by BackendKind.
type Project struct {
	ID             string      `json:"id"`
	BackendKind    BackendKind `json:"backend_kind"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Image          string      `json:"image"`
	AllowUpload    bool        `json:"allow_upload"`
	AllowSharing   bool        `json:"allow_sharing"`
	AllowedOrigins []string    `json:"allowed_origins"`
	Members        []Member    `json:"members"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Member returns the member entry for userID, or nil.
func (p *Project) Member(userID string) *Member {
	for i := range p.Members {
		if p.Members[i].UserID == userID {
			return &p.Members[i]
		}
	}
	return nil
}

// AdminCount returns the number of active admins.
func (p *Project) AdminCount() int {
	n := 0
	for _, m := range p.Members {
		if m.Role == RoleAdmin && !m.Archived {
			n++
		}
	}
	return n
}

// ProjectListItem is the summary returned by project listings.
type ProjectListItem struct {
	ID          string      `json:"id"`
	BackendKind BackendKind `json:"backend_kind"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Archived    bool        `json:"archived"`
}

// ProjectMetadata holds the schemaless per-project data kept in the
// document backend for every project: credentials and export references.
type ProjectMetadata struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project_id"`
	Credentials []Credential `json:"credentials"`
	Exports     []ExportRef  `json:"exports"`
}

// Export returns the export reference with the given id, or nil.
func (m *ProjectMetadata) Export(exportID string) *ExportRef {
	for i := range m.Exports {
		if m.Exports[i].ID == exportID {
			return &m.Exports[i]
		}
	}
	return nil
}

// Credential returns the credential with the given id, or nil.
func (m *ProjectMetadata) Credential(credentialID string) *Credential {
	for i := range m.Credentials {
		if m.Credentials[i].ID == credentialID {
			return &m.Credentials[i]
		}
	}
	return nil
}
