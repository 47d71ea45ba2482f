package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

func TestGetUserIDFromContext(t *testing.T) {
	if got := GetUserIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty user ID, got %q", got)
	}

	ctx := WithClaims(context.Background(), &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}, "t")
	if got := GetUserIDFromContext(ctx); got != "user-1" {
		t.Errorf("expected user-1, got %q", got)
	}
}

func TestRequireAuthContext(t *testing.T) {
	_, err := RequireAuthContext(context.Background())
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	ctx := WithClaims(context.Background(), &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		Username:         "ada",
		Role:             models.RoleAdmin,
	}, "t")
	ac, err := RequireAuthContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := models.AuthContext{UserID: "user-1", Username: "ada", Role: models.RoleAdmin}
	if ac != want {
		t.Errorf("got %+v, want %+v", ac, want)
	}
}

func TestAuthContextFromContext_Anonymous(t *testing.T) {
	if ac := AuthContextFromContext(context.Background()); ac != (models.AuthContext{}) {
		t.Errorf("expected zero AuthContext, got %+v", ac)
	}
}
