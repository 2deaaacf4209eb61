package coinbase

import (
	"errors"
	"fmt"
	"time"
)

// Error type constants for programmatic error classification.
const (
	ErrorTypeRateLimit   = "rate_limit"
	ErrorTypeServerError = "server_error"
	ErrorTypeAuthError   = "auth_error"
	ErrorTypeClientError = "client_error"
)

// CDPError is a non-2xx response from the CDP API.
type CDPError struct {
	StatusCode int
	ErrorType  string
	Message    string
	RequestID  string

	// Retryable is true for rate limits and server errors.
	Retryable bool

	// RetryAfter is the server-requested delay from a 429 response.
	RetryAfter time.Duration

	Method string
	Path   string
}

// Error implements the error interface.
func (e *CDPError) Error() string {
	msg := fmt.Sprintf("CDP API error [%d]: %s", e.StatusCode, e.Message)
	if e.RequestID != "" {
		msg += fmt.Sprintf(" (RequestID: %s)", e.RequestID)
	}
	if e.Method != "" && e.Path != "" {
		msg += fmt.Sprintf(" [%s %s]", e.Method, e.Path)
	}
	return msg
}

func isRetryable(err error) bool {
	var cdpErr *CDPError
	return errors.As(err, &cdpErr) && cdpErr.Retryable
}

func retryAfter(err error) time.Duration {
	var cdpErr *CDPError
	if errors.As(err, &cdpErr) {
		return cdpErr.RetryAfter
	}
	return 0
}
