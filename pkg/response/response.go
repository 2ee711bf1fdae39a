// Package response provides the standard API response envelope.
package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "evalforge/pkg/errors"
)

// APIResponse is the standard response wrapper.
type APIResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
	Success bool        `json:"success"`
}

// APIError carries error information for failed requests.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Pagination holds offset-based pagination metadata.
type Pagination struct {
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Total   int64 `json:"total"`
	HasNext bool  `json:"hasNext"`
}

// Meta holds response metadata.
type Meta struct {
	Pagination *Pagination `json:"pagination,omitempty"`
	Timestamp  string      `json:"timestamp,omitempty"`
}

func getMeta() *Meta {
	return &Meta{Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// Success returns a 200 response with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: getMeta()})
}

// SuccessWithPagination returns a 200 response with pagination metadata.
func SuccessWithPagination(c *gin.Context, data interface{}, pag *Pagination) {
	meta := getMeta()
	meta.Pagination = pag
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: meta})
}

// Created returns a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data, Meta: getMeta()})
}

// Accepted returns a 202 response.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, APIResponse{Success: true, Data: data, Meta: getMeta()})
}

// NoContent returns a 204 response without a body.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error maps an error to the envelope, using AppError status when available.
func Error(c *gin.Context, err error) {
	var statusCode int
	var apiError *APIError

	if appErr, ok := appErrors.IsAppError(err); ok {
		statusCode = appErr.StatusCode
		apiError = &APIError{
			Code:    string(appErr.Type),
			Message: appErr.Message,
			Details: appErr.Details,
		}
	} else {
		statusCode = http.StatusInternalServerError
		apiError = &APIError{
			Code:    string(appErrors.InternalError),
			Message: "Internal server error",
		}
	}

	c.JSON(statusCode, APIResponse{Success: false, Error: apiError, Meta: getMeta()})
}

// ErrorWithStatus returns an error response with an explicit status code.
func ErrorWithStatus(c *gin.Context, statusCode int, code, message, details string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message, Details: details},
		Meta:    getMeta(),
	})
}

// BadRequest returns a 400 error.
func BadRequest(c *gin.Context, message, details string) {
	ErrorWithStatus(c, http.StatusBadRequest, string(appErrors.BadRequestError), message, details)
}

// NotFound returns a 404 error.
func NotFound(c *gin.Context, resource string) {
	ErrorWithStatus(c, http.StatusNotFound, string(appErrors.NotFoundError), resource+" not found", "")
}

// UnprocessableEntity returns a 422 validation error.
func UnprocessableEntity(c *gin.Context, message, details string) {
	ErrorWithStatus(c, http.StatusUnprocessableEntity, string(appErrors.ValidationError), message, details)
}

// Conflict returns a 409 error.
func Conflict(c *gin.Context, message string) {
	ErrorWithStatus(c, http.StatusConflict, string(appErrors.ConflictError), message, "")
}

// InternalServerError returns a 500 error.
func InternalServerError(c *gin.Context, message string) {
	ErrorWithStatus(c, http.StatusInternalServerError, string(appErrors.InternalError), message, "")
}
