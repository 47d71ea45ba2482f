package models

// AuthContext identifies the caller of a service operation. It is produced
// by the auth middleware and trusted as given.
type AuthContext struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	// Role is the caller's account-level role; project access is governed by membership.
	Role string `json:"role"`
}
