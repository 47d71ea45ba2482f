// Package auth validates the JWTs that carry the caller's identity and turns
// them into a models.AuthContext for the services.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Claims represents the JWT claims issued by the identity provider.
// The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	// Role is the account role: viewer, editor or admin.
	Role string `json:"role,omitempty"`
}

// AuthContext converts the claims to the identity the services trust.
func (c *Claims) AuthContext() models.AuthContext {
	username := c.Username
	if username == "" {
		username = c.Email
	}
	return models.AuthContext{
		UserID:   c.Subject,
		Username: username,
		Role:     c.Role,
	}
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// WithClaims stores claims and the raw token in ctx.
func WithClaims(ctx context.Context, claims *Claims, token string) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return context.WithValue(ctx, TokenKey, token)
}
