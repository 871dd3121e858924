package predictions

import (
	"errors"
	"strings"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("prediction not found")
	ErrNotPending = errors.New("prediction is not pending")
	ErrInference  = errors.New("inference failed")

	ErrAlreadyExists = errors.New("prediction already exists")
)

const defaultFailureMessage = "inference failed"

type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every rejected input field.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}
