package llm

import (
	"context"
	"errors"
)

// Client produces a short clinical-style interpretation of a classification.
type Client interface {
	Interpret(ctx context.Context, input InterpretInput) (string, error)
}

// ClassScore is one label probability passed to the prompt.
type ClassScore struct {
	Label string
	Score float64
}

// Patient carries optional patient context.
type Patient struct {
	PatientID string
	Name      string
	Age       int
	Gender    string
	Notes     string
}

// InterpretInput captures what the model needs to explain a result.
type InterpretInput struct {
	ModelKey       string
	PredictedClass string
	Confidence     float64
	Category       string
	ClassScores    []ClassScore
	Patient        *Patient
}

// ErrNotConfigured is returned when no provider is wired.
var ErrNotConfigured = errors.New("llm provider not configured")

// NoopClient is used when enrichment is disabled.
type NoopClient struct{}

// Interpret returns ErrNotConfigured.
func (NoopClient) Interpret(ctx context.Context, input InterpretInput) (string, error) {
	return "", ErrNotConfigured
}
