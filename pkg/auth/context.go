package auth

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// GetUserIDFromContext extracts the user ID from JWT claims in the context.
// Returns empty string if not authenticated or claims are missing.
func GetUserIDFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	return claims.Subject
}

// AuthContextFromContext returns the caller identity, or a zero AuthContext
// for anonymous requests.
func AuthContextFromContext(ctx context.Context) models.AuthContext {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return models.AuthContext{}
	}
	return claims.AuthContext()
}

// RequireAuthContext returns the caller identity and fails when the request
// carries no user.
func RequireAuthContext(ctx context.Context) (models.AuthContext, error) {
	ac := AuthContextFromContext(ctx)
	if ac.UserID == "" {
		return models.AuthContext{}, fmt.Errorf("%w: user ID not found in context", apperrors.ErrForbidden)
	}
	return ac, nil
}
