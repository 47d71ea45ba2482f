package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/crypto"
	"github.com/ekaya-inc/ekaya-datahub/pkg/logging"
	"github.com/ekaya-inc/ekaya-datahub/pkg/storage"
	"github.com/ekaya-inc/ekaya-datahub/pkg/upstream"
)

// maxBodyBytes bounds request bodies. Raw export payloads are the largest.
const maxBodyBytes = 8 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// ApiResponse wraps data in the format expected by the frontend.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeSuccess writes an ApiResponse envelope around data.
func writeSuccess(w http.ResponseWriter, statusCode int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// statusFor maps a service error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrConnectionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrOriginNotAllowed):
		return http.StatusForbidden, "origin_not_allowed"
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrLastAdmin):
		return http.StatusBadRequest, "last_admin"
	case errors.Is(err, apperrors.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_role"
	case errors.Is(err, apperrors.ErrUnsupportedBackendKind):
		return http.StatusBadRequest, "unsupported_backend"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, apperrors.ErrEncryptionKeyNotSet):
		return http.StatusServiceUnavailable, "encryption_not_configured"
	case errors.Is(err, storage.ErrNotConfigured):
		return http.StatusServiceUnavailable, "storage_not_configured"
	case errors.Is(err, upstream.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "upstream_unavailable"
	case errors.Is(err, upstream.ErrResponseTooLarge), errors.Is(err, upstream.ErrInvalidResponse):
		return http.StatusBadGateway, "upstream_invalid_response"
	case errors.Is(err, crypto.ErrDecryptionFailed):
		return http.StatusInternalServerError, "credential_unreadable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError maps err to a response. Server errors are logged with
// the action that failed; their detail never reaches the client.
func writeServiceError(w http.ResponseWriter, err error, action string, logger *zap.Logger) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error("Failed to "+action, zap.String("error", logging.SanitizeError(err)))
		if status == http.StatusInternalServerError {
			message = "Failed to " + action
		}
	}
	writeError(w, status, code, message, logger)
}

// decodeJSON reads the body into dst and runs struct validation. On failure
// it writes a 400 response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		msg := "Invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		writeError(w, http.StatusBadRequest, "invalid_request", msg, logger)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err), logger)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
