package inference

import "errors"

var (
	ErrInvalidModel     = errors.New("invalid model type")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrInvalidImage     = errors.New("invalid image")
)
