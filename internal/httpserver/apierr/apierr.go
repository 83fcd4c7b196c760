// Package apierr writes error responses in one format:
// {"error": {"code": "...", "message": "..."}}.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/timecapsule/internal/domain"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

// Machine-readable error codes.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeRateLimited     = "RATE_LIMITED"
	CodeDependency      = "DEPENDENCY_UNAVAILABLE"
	CodeInternalError   = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{Code: code, Message: message},
	})
}

func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromError maps a domain error to its response. Dependency and unknown
// errors are logged; their details never reach the client.
func FromError(w http.ResponseWriter, err error, log logger.Logger) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		ValidationError(w, verr.Error())
	case errors.Is(err, domain.ErrNotFound):
		NotFound(w, "capsule not found")
	case errors.Is(err, domain.ErrForbidden):
		Forbidden(w, "only the owner can do this")
	case domain.IsDependency(err):
		log.Error("dependency failure", logger.Error(err))
		WriteError(w, http.StatusBadGateway, CodeDependency, "a backing service is unavailable, try again later")
	default:
		log.Error("unhandled error", logger.Error(err))
		InternalError(w, "internal error")
	}
}
