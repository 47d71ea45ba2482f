// Package sql guards user-supplied names that end up as column identifiers
// in export tables.
package sql

import (
	"fmt"
	"regexp"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
)

// MaxFieldNameLength matches the PostgreSQL identifier limit.
const MaxFieldNameLength = 63

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// InjectionCheckResult contains the result of an injection check on a value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Name        string // Name of the input that failed the check
	Value       any    // The value that was checked
}

// CheckForInjection uses libinjection to detect SQL injection patterns in a
// value. Only strings are checked; other types return nil.
//
// Example:
//
//	result := CheckForInjection("name", "Sales 2024")
//	// result == nil
//
//	result := CheckForInjection("name", "x'; DROP TABLE users--")
//	// result.IsSQLi == true
func CheckForInjection(name string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Name:        name,
			Value:       value,
		}
	}

	return nil
}

// ValidateFieldName checks that name is a plain identifier safe to use as a
// column or document attribute.
func ValidateFieldName(name string) error {
	if len(name) == 0 || len(name) > MaxFieldNameLength {
		return fmt.Errorf("%w: field name must be 1-%d characters", apperrors.ErrInvalidInput, MaxFieldNameLength)
	}
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("%w: field name %q must start with a letter or underscore and contain only letters, digits and underscores", apperrors.ErrInvalidInput, name)
	}
	if result := CheckForInjection("field", name); result != nil {
		return fmt.Errorf("%w: field name %q rejected (fingerprint %s)", apperrors.ErrInvalidInput, name, result.Fingerprint)
	}
	return nil
}

// ValidateFieldNames validates every name and rejects duplicates.
func ValidateFieldNames(names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if err := ValidateFieldName(name); err != nil {
			return err
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate field name %q", apperrors.ErrInvalidInput, name)
		}
		seen[name] = true
	}
	return nil
}
