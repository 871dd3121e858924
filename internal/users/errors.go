package users

import (
	"errors"
	"strings"
)

var (
	ErrNotFound           = errNotFound{}
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("user with this email already exists")
	ErrUsernameExists     = errors.New("username already exists")
)

type errNotFound struct{}

func (errNotFound) Error() string { return "user not found" }

// FieldError names the input field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError carries every field-level failure of one request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "invalid input: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
