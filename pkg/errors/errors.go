// Package errors provides typed application errors with HTTP status mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppErrorType string

const (
	ValidationError    AppErrorType = "VALIDATION_ERROR"
	NotFoundError      AppErrorType = "NOT_FOUND_ERROR"
	ConflictError      AppErrorType = "CONFLICT_ERROR"
	BadRequestError    AppErrorType = "BAD_REQUEST_ERROR"
	InternalError      AppErrorType = "INTERNAL_ERROR"
	ServiceUnavailable AppErrorType = "SERVICE_UNAVAILABLE_ERROR"
	UpstreamError      AppErrorType = "UPSTREAM_ERROR"
)

// AppError carries an error type, human-readable message, and HTTP status.
type AppError struct {
	Err        error        `json:"-"`
	Type       AppErrorType `json:"type"`
	Message    string       `json:"message"`
	Details    string       `json:"details,omitempty"`
	StatusCode int          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(errorType AppErrorType, message, details string, err error) *AppError {
	appErr := &AppError{
		Type:    errorType,
		Message: message,
		Details: details,
		Err:     err,
	}

	switch errorType {
	case ValidationError:
		appErr.StatusCode = http.StatusUnprocessableEntity
	case NotFoundError:
		appErr.StatusCode = http.StatusNotFound
	case ConflictError:
		appErr.StatusCode = http.StatusConflict
	case BadRequestError:
		appErr.StatusCode = http.StatusBadRequest
	case ServiceUnavailable:
		appErr.StatusCode = http.StatusServiceUnavailable
	case UpstreamError:
		appErr.StatusCode = http.StatusBadGateway
	default:
		appErr.StatusCode = http.StatusInternalServerError
	}

	return appErr
}

func NewValidationError(message, details string) *AppError {
	return NewAppError(ValidationError, message, details, nil)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(NotFoundError, resource+" not found", "", nil)
}

func NewConflictError(message string) *AppError {
	return NewAppError(ConflictError, message, "", nil)
}

func NewBadRequestError(message, details string) *AppError {
	return NewAppError(BadRequestError, message, details, nil)
}

func NewInternalError(message string, err error) *AppError {
	return NewAppError(InternalError, message, "", err)
}

func NewUpstreamError(message string, err error) *AppError {
	return NewAppError(UpstreamError, message, "", err)
}

// IsAppError checks whether err is (or wraps) an AppError.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
