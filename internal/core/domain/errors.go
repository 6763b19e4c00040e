package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes agent failures without an exception hierarchy.
type ErrorKind string

const (
	ErrorKindProvider  ErrorKind = "provider"
	ErrorKindTool      ErrorKind = "tool"
	ErrorKindReasoning ErrorKind = "reasoning"
	ErrorKindCapacity  ErrorKind = "capacity"
	ErrorKindState     ErrorKind = "state"
)

// AgentError is the single error type used across the core: a kind
// tag, a human-readable message, and a retryable flag.
type AgentError struct {
	Kind       ErrorKind
	Message    string
	Provider   string
	StatusCode int
	Retryable  bool
	Cause      error
}

func (e *AgentError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		fmt.Fprintf(&b, " [%s]", e.Provider)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status=%d)", e.StatusCode)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *AgentError) Unwrap() error { return e.Cause }

// NewProviderError builds a provider-kind error with an explicit
// retryable classification.
func NewProviderError(provider, message string, retryable bool, cause error) *AgentError {
	return &AgentError{
		Kind:      ErrorKindProvider,
		Message:   message,
		Provider:  provider,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ProviderErrorFromStatus maps an HTTP status code to a classified
// provider error. Timeouts, connection failures, 5xx and 429 are
// retryable; client errors are not. Unknown codes default to retryable.
func ProviderErrorFromStatus(provider string, statusCode int, message string, cause error) *AgentError {
	e := &AgentError{
		Kind:       ErrorKindProvider,
		Message:    message,
		Provider:   provider,
		StatusCode: statusCode,
		Cause:      cause,
	}
	switch statusCode {
	case 400, 401, 403, 404, 409, 413, 422:
		e.Retryable = false
	case 408, 429, 500, 502, 503, 504:
		e.Retryable = true
	default:
		e.Retryable = true
	}
	return e
}

// IsRetryable reports whether the error is safe to retry against the
// same or another provider. AgentError carries its own flag; raw SDK
// and transport errors are screened for transient signatures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"no such host",
		"temporarily unavailable",
		"overloaded",
		"too many requests",
		"rate limit",
		"502",
		"503",
		"504",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
