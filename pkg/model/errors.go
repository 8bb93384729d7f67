package model

import (
	"errors"
	"fmt"
)

// Engine errors. Registration and lookup failures are immediate and never retried.
var (
	ErrDuplicateTask   = errors.New("a task with the given name already exists")
	ErrTaskNotFound    = errors.New("task not found")
	ErrMissingCallback = errors.New("callback is required in strict mode")
	// ErrCompile is matched by every compile failure via errors.Is.
	ErrCompile = errors.New("compile failure")
)

// RuntimeError is a failure thrown by a sandboxed task body and captured at
// the dispatch site.
type RuntimeError struct {
	Task  string
	Cause error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Cause)
}

func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrConflict   ErrorCode = "CONFLICT"
	ErrTimeout    ErrorCode = "TIMEOUT"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the supertask API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}
