package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidRole            = errors.New("invalid role")
	ErrLastAdmin              = errors.New("cannot remove last admin")
	ErrConnectionNotFound     = errors.New("connection not found")
	ErrUnsupportedBackendKind = errors.New("unsupported backend kind")
	ErrUnsupportedPatch       = errors.New("patch variant not supported by backend")
	ErrEncryptionKeyNotSet    = errors.New("encryption key not set")
	ErrOriginNotAllowed       = errors.New("origin not allowed")
)
