package errors

import (
	"fmt"
	"net/http"
)

// APIError represents a custom error type for API responses
type APIError struct {
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	Status       int    `json:"-"`
	Details      string `json:"details,omitempty"`
}

// Error returns the error message
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorType, e.ErrorMessage)
}

func NewAPIError(errorType, message string, status int, details ...string) *APIError {
	err := &APIError{
		ErrorType:    errorType,
		ErrorMessage: message,
		Status:       status,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

var (
	ErrInvalidInput = NewAPIError("BAD_REQUEST", "Invalid request data", http.StatusBadRequest)
	ErrNoSearchArea = NewAPIError("BAD_REQUEST", "No search area specified", http.StatusBadRequest)
	ErrNoLocation   = NewAPIError("BAD_REQUEST", "User has no registered location", http.StatusBadRequest)
	ErrUnauthorized = NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrNotFound     = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrRateLimited  = NewAPIError("RATE_LIMITED", "Action limit reached, try again later", http.StatusTooManyRequests)
	ErrUnavailable  = NewAPIError("UNAVAILABLE", "Storage temporarily unavailable", http.StatusServiceUnavailable)
	ErrInternal     = NewAPIError("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrConflict     = NewAPIError("CONFLICT", "Resource conflict", http.StatusConflict)
)

func Wrap(err error, errorType, message string, status int) *APIError {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	return NewAPIError(errorType, message, status, err.Error())
}

// Unavailable wraps a store I/O failure without losing the underlying cause.
func Unavailable(err error) *APIError {
	return Wrap(err, ErrUnavailable.ErrorType, ErrUnavailable.ErrorMessage, ErrUnavailable.Status)
}
