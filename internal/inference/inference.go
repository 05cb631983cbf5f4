// Package inference sends composed payloads to a generative model provider
// and returns the raw response text. Providers classify failures as
// transient (worth retrying) or fatal.
package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dgallion1/deckcheck/internal/prompt"
)

// Client is the inference capability consumed by the pipeline.
type Client interface {
	Infer(ctx context.Context, p *prompt.Payload) (string, error)
	Name() string
}

// Default models per provider.
const (
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultClaudeModel = "claude-sonnet-4-5"
)

// Options are the generation settings shared by providers.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Error is a provider failure. Transient errors may be retried.
type Error struct {
	Provider   string
	StatusCode int
	Transient  bool
	Message    string
	Err        error
}

func (e *Error) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %s", e.Provider, kind, e.StatusCode, truncate(msg, 200))
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, kind, truncate(msg, 200))
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var ie *Error
	return errors.As(err, &ie) && ie.Transient
}

// transientStatus classifies HTTP status codes. Rate limits, request
// timeouts and server errors are transient; auth and malformed request
// errors are not.
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= 500
}

// networkError wraps a transport failure. Context cancellation by the caller
// is fatal; everything else (resets, per-attempt timeouts) is transient.
func networkError(provider string, ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Provider: provider, Err: err}
	}
	return &Error{Provider: provider, Transient: true, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
