package models

import "time"

// Member represents a user's membership in a project.
type Member struct {
	UserID     string     `json:"user_id"`
	Username   string     `json:"username,omitempty"`
	Role       string     `json:"role"` // 'viewer', 'editor', 'admin'
	Archived   bool       `json:"archived"`
	ArchivedBy string     `json:"archived_by,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// User is an account known to the primary connection.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Role constants for project members.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleViewer, RoleEditor, RoleAdmin}

// IsValidRole checks if the given role is valid.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// CanEdit reports whether role may mutate project data.
func CanEdit(role string) bool {
	return role == RoleAdmin || role == RoleEditor
}
