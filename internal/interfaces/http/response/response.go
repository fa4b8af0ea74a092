// Package response writes JSON bodies and maps UnifiedErrors to HTTP
// status codes for the renderer API.
package response

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/validation"

	"go.uber.org/zap"
)

// ErrorBody is the error envelope: {"error": {...}}.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code      string                  `json:"code"`
	Message   string                  `json:"message"`
	Details   string                  `json:"details,omitempty"`
	Retryable bool                    `json:"retryable,omitempty"`
	Fields    []validation.FieldError `json:"fields,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// NoContent writes 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	unified, ok := apperrors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch unified.Type {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeUnavailable, apperrors.ErrorTypeConnection:
		return http.StatusServiceUnavailable
	case apperrors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as an error envelope. Server-side failures are logged
// and their message is not exposed.
func Error(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := StatusFor(err)
	detail := ErrorDetail{
		Code:    string(apperrors.CodeOf(err)),
		Message: err.Error(),
	}
	if unified, ok := apperrors.As(err); ok {
		detail.Message = unified.Message
		detail.Retryable = unified.Retryable
		if status < http.StatusInternalServerError {
			detail.Details = unified.Details
		}
	}
	detail.Fields = validation.Fields(err)
	if len(detail.Fields) == 0 {
		detail.Fields = nil
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		if status == http.StatusInternalServerError {
			detail.Message = "An internal error occurred"
		}
	}

	JSON(w, status, ErrorBody{Error: detail})
}
