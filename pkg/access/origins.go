// Package access decides whether a cross-origin caller may read a public
// export. Exports inherit the project's origin list unless they narrow it.
package access

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
)

// Wildcard permits every origin, including requests without an Origin header.
const Wildcard = "*"

// EffectiveOrigins resolves the origin list that applies to an export.
//
// An export list that is empty or exactly ["*"] inherits the project list.
// Otherwise the export list applies, and must be a subset of the project
// list unless the project allows every origin.
func EffectiveOrigins(projectOrigins, exportOrigins []string) ([]string, error) {
	if inherits(exportOrigins) {
		return projectOrigins, nil
	}
	if lo.Contains(projectOrigins, Wildcard) {
		return exportOrigins, nil
	}
	if extra, _ := lo.Difference(exportOrigins, projectOrigins); len(extra) > 0 {
		return nil, fmt.Errorf("%w: export origins %v not permitted by project", apperrors.ErrOriginNotAllowed, extra)
	}
	return exportOrigins, nil
}

func inherits(exportOrigins []string) bool {
	return len(exportOrigins) == 0 || (len(exportOrigins) == 1 && exportOrigins[0] == Wildcard)
}

// Allowed reports whether origin may read under the effective list. Origins
// compare exactly, case included. A request without an Origin header passes
// only when the list contains the wildcard.
func Allowed(effective []string, origin string, hasOrigin bool) bool {
	if lo.Contains(effective, Wildcard) {
		return true
	}
	if !hasOrigin {
		return false
	}
	return lo.Contains(effective, origin)
}

// Check resolves the effective list and tests origin against it. It returns
// the effective list so callers can echo CORS headers.
func Check(projectOrigins, exportOrigins []string, origin string, hasOrigin bool) ([]string, error) {
	effective, err := EffectiveOrigins(projectOrigins, exportOrigins)
	if err != nil {
		return nil, err
	}
	if !Allowed(effective, origin, hasOrigin) {
		if !hasOrigin {
			return effective, fmt.Errorf("%w: origin header required", apperrors.ErrOriginNotAllowed)
		}
		return effective, fmt.Errorf("%w: %s", apperrors.ErrOriginNotAllowed, origin)
	}
	return effective, nil
}

// AllowOriginHeader returns the Access-Control-Allow-Origin value for a
// permitted request.
func AllowOriginHeader(effective []string, origin string, hasOrigin bool) string {
	if hasOrigin {
		return origin
	}
	if lo.Contains(effective, Wildcard) {
		return Wildcard
	}
	return ""
}
