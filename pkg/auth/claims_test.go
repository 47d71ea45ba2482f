package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

func TestClaims_AuthContext(t *testing.T) {
	tests := []struct {
		name   string
		claims Claims
		want   models.AuthContext
	}{
		{
			name: "username claim",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
				Username:         "ada",
				Email:            "ada@example.com",
				Role:             models.RoleEditor,
			},
			want: models.AuthContext{UserID: "user-1", Username: "ada", Role: models.RoleEditor},
		},
		{
			name: "falls back to email",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: "user-2"},
				Email:            "bob@example.com",
			},
			want: models.AuthContext{UserID: "user-2", Username: "bob@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.claims.AuthContext(); got != tt.want {
				t.Errorf("AuthContext() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestWithClaims(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
	ctx := WithClaims(context.Background(), claims, "raw-token")

	got, ok := GetClaims(ctx)
	if !ok || got != claims {
		t.Fatalf("expected stored claims, got %v (ok=%v)", got, ok)
	}
	token, ok := GetToken(ctx)
	if !ok || token != "raw-token" {
		t.Errorf("expected raw-token, got %q (ok=%v)", token, ok)
	}

	if _, ok := GetClaims(context.Background()); ok {
		t.Error("expected no claims in empty context")
	}
}
