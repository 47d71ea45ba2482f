package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// mockValidator accepts exactly one token.
type mockValidator struct {
	token string
	err   error
}

func (m *mockValidator) ValidateToken(tokenString string) (*Claims, error) {
	if m.err != nil {
		return nil, m.err
	}
	if tokenString != m.token {
		return nil, errors.New("invalid token")
	}
	return &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}, nil
}

func (m *mockValidator) Close() {}

func TestAuthService_ValidateRequest(t *testing.T) {
	svc := NewAuthService(&mockValidator{token: "good"}, zap.NewNop())

	tests := []struct {
		name    string
		setup   func(r *http.Request)
		wantErr error
		wantOK  bool
	}{
		{
			name:   "bearer header",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") },
			wantOK: true,
		},
		{
			name:   "lowercase scheme",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "bearer good") },
			wantOK: true,
		},
		{
			name: "cookie wins over header",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: CookieName, Value: "good"})
				r.Header.Set("Authorization", "Bearer bad")
			},
			wantOK: true,
		},
		{
			name:    "missing",
			setup:   func(r *http.Request) {},
			wantErr: ErrMissingAuthorization,
		},
		{
			name:    "basic scheme",
			setup:   func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwYXNz") },
			wantErr: ErrInvalidAuthFormat,
		},
		{
			name:    "extra parts",
			setup:   func(r *http.Request) { r.Header.Set("Authorization", "Bearer good extra") },
			wantErr: ErrInvalidAuthFormat,
		},
		{
			name:  "invalid token",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
			tt.setup(req)

			claims, token, err := svc.ValidateRequest(req)
			if tt.wantOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if claims.Subject != "user-1" || token != "good" {
					t.Errorf("unexpected result: %+v %q", claims, token)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
