package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"rd-prediction-backend/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

type retryingClient struct {
	base  Client
	delay time.Duration
}

// WithRetry wraps base so a transient provider failure is retried once.
func WithRetry(base Client) Client {
	if base == nil {
		return nil
	}
	return retryingClient{base: base, delay: retryBaseDelay}
}

func (r retryingClient) Interpret(ctx context.Context, input InterpretInput) (string, error) {
	text, err := r.base.Interpret(ctx, input)
	if err == nil || !shouldRetry(err) {
		return text, err
	}

	telemetry.Warn("llm.retry", map[string]any{"attempt": 1, "model": input.ModelKey, "error": err})
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return r.base.Interpret(ctx, input)
}

func shouldRetry(err error) bool {
	if err == nil || errors.Is(err, ErrNotConfigured) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "status code: 5") || strings.Contains(msg, "status code: 429") || strings.Contains(msg, "server_error") {
		return true
	}
	for _, marker := range []string{"connection reset", "connection refused", "broken pipe", "tls handshake timeout", "unexpected eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
