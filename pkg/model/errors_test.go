package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: ErrNotFound, Message: "task 'resize' not found"}
	want := "NOT_FOUND: task 'resize' not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("task", "resize")
	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Message != "task 'resize' not found" {
		t.Errorf("Message = %q, want %q", err.Message, "task 'resize' not found")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("Invalid request",
		FieldError{Field: "name", Message: "required"},
		FieldError{Field: "source", Message: "required"},
	)
	if err.Code != ErrValidation {
		t.Errorf("Code = %q, want %q", err.Code, ErrValidation)
	}
	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
}

func TestRuntimeError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	var err error = fmt.Errorf("dispatch: %w", &RuntimeError{Task: "t1", Cause: cause})

	var rt *RuntimeError
	if !errors.As(err, &rt) {
		t.Fatal("errors.As did not find RuntimeError")
	}
	if rt.Task != "t1" {
		t.Errorf("Task = %q, want t1", rt.Task)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if got := rt.Error(); got != "task t1: boom" {
		t.Errorf("Error() = %q", got)
	}
}
