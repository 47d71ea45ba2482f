package sql

import (
	"errors"
	"strings"
	"testing"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
)

func TestCheckForInjection(t *testing.T) {
	tests := []struct {
		name            string
		value           any
		expectInjection bool
	}{
		{name: "clean export name", value: "Sales 2024"},
		{name: "clean identifier", value: "customer_id"},
		{name: "non-string value", value: 100},
		{name: "nil value", value: nil},
		{name: "tautology", value: "1' OR '1'='1", expectInjection: true},
		{name: "stacked statement", value: "x'; DROP TABLE users--", expectInjection: true},
		{name: "union select", value: "1 UNION SELECT password FROM users", expectInjection: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckForInjection("input", tt.value)
			if tt.expectInjection {
				if result == nil {
					t.Fatalf("expected injection to be detected for %v", tt.value)
				}
				if result.Name != "input" {
					t.Errorf("expected name %q, got %q", "input", result.Name)
				}
				if result.Fingerprint == "" {
					t.Error("expected non-empty fingerprint")
				}
				return
			}
			if result != nil {
				t.Errorf("unexpected injection result: %+v", result)
			}
		})
	}
}

func TestValidateFieldName(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		wantErr bool
	}{
		{name: "simple", field: "region"},
		{name: "underscore prefix", field: "_internal"},
		{name: "mixed case with digits", field: "total2024Amount"},
		{name: "max length", field: strings.Repeat("a", MaxFieldNameLength)},
		{name: "empty", field: "", wantErr: true},
		{name: "too long", field: strings.Repeat("a", MaxFieldNameLength+1), wantErr: true},
		{name: "leading digit", field: "1st", wantErr: true},
		{name: "hyphen", field: "first-name", wantErr: true},
		{name: "space", field: "first name", wantErr: true},
		{name: "quote", field: `a"b`, wantErr: true},
		{name: "statement", field: "x; DROP TABLE y", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFieldName(tt.field)
			if tt.wantErr {
				if !errors.Is(err, apperrors.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateFieldNames_Duplicates(t *testing.T) {
	if err := ValidateFieldNames([]string{"a", "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ValidateFieldNames([]string{"a", "b", "a"})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for duplicate, got %v", err)
	}
}
