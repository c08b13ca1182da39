package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes of the client error taxonomy.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotYetAvailable = "NOT_YET_AVAILABLE"
	CodeNetworkOrServer = "NETWORK_OR_SERVER"
)

// FieldError is a single per-field validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError represents a classified client error.
type AppError struct {
	Code    string
	Message string
	Status  int
	Fields  []FieldError
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError builds a VALIDATION_ERROR with per-field details.
func NewValidationError(message string, fields []FieldError) *AppError {
	if message == "" && len(fields) > 0 {
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, f.Message)
		}
		message = strings.Join(parts, ", ")
	}
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Fields:  fields,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func NewNotYetAvailableError(message string) *AppError {
	return &AppError{
		Code:    CodeNotYetAvailable,
		Message: message,
		Status:  http.StatusNotAcceptable,
	}
}

// NewNetworkOrServerError wraps transport failures and unexpected statuses.
func NewNetworkOrServerError(message string, status int, err error) *AppError {
	if message == "" {
		message = "An unexpected error occurred, please try again shortly"
	}
	return &AppError{
		Code:    CodeNetworkOrServer,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Classify maps an HTTP status and decoded envelope to an AppError.
func Classify(status int, env *Envelope) *AppError {
	message := http.StatusText(status)
	var fields []FieldError
	if env != nil {
		if env.Message != "" {
			message = env.Message
		}
		fields = env.ValidationErrors()
	}

	switch {
	case status == http.StatusUnprocessableEntity || (status == http.StatusBadRequest && len(fields) > 0):
		appErr := NewValidationError(message, fields)
		appErr.Status = status
		return appErr
	case status == http.StatusUnauthorized:
		return NewUnauthorizedError(message)
	case status == http.StatusNotAcceptable:
		return NewNotYetAvailableError(message)
	default:
		return NewNetworkOrServerError(message, status, nil)
	}
}

// CodeOf returns the AppError code of err, or NETWORK_OR_SERVER for anything
// unclassified.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeNetworkOrServer
}

// IsCode reports whether err carries the given AppError code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// AsAppError converts any error into an AppError, wrapping unknown errors as
// NETWORK_OR_SERVER.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewNetworkOrServerError("", 0, err)
}
