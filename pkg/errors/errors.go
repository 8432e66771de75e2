package errors

import (
	"fmt"
	"net/http"
)

// APIError standardizes error messages returned by HTTP handlers.
type APIError struct {
	Code    int    `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (a APIError) Error() string {
	if a.Err != nil {
		return fmt.Sprintf("%s: %v", a.Message, a.Err)
	}
	return a.Message
}

func (a APIError) Unwrap() error {
	return a.Err
}

// BadRequest represents a validation failure (HTTP 400).
func BadRequest(message string, err error) APIError {
	return APIError{Code: http.StatusBadRequest, Message: message, Err: err}
}

// NotFound represents a missing resource (HTTP 404).
func NotFound(message string, err error) APIError {
	return APIError{Code: http.StatusNotFound, Message: message, Err: err}
}

// TooLarge represents an upload over the configured limit (HTTP 413).
func TooLarge(message string, err error) APIError {
	return APIError{Code: http.StatusRequestEntityTooLarge, Message: message, Err: err}
}

// Internal represents an unexpected exception (HTTP 500).
func Internal(message string, err error) APIError {
	return APIError{Code: http.StatusInternalServerError, Message: message, Err: err}
}
