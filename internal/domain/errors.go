package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation signals a malformed query or request parameter.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals a missing note or path.
	ErrNotFound = errors.New("not found")
	// ErrNetwork signals a transport-level failure talking to the vault.
	ErrNetwork = errors.New("network error")
	// ErrTimeout signals an expired deadline or a cancelled call.
	ErrTimeout = errors.New("timeout")
	// ErrUpstreamUnavailable signals that the vault could not be reached after retries.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrCircuitOpen signals a call rejected by an open circuit breaker.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrRecordTooLarge signals a streamed record exceeding the configured size cap.
	ErrRecordTooLarge = errors.New("stream record too large")
	// ErrUnknownTool signals a tool name with no registered handler.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrLLMUnavailable signals a tool that needs a chat model when none is configured.
	ErrLLMUnavailable = errors.New("llm not configured")
	// ErrLLMProvider signals a failed chat completion call.
	ErrLLMProvider = errors.New("llm provider error")
	// ErrLLMQuotaExceeded signals a chat call rejected by the token budget.
	ErrLLMQuotaExceeded = errors.New("llm token budget exceeded")
)

// ValidationError describes which input was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation.Error(), e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error for a field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NetworkError wraps a transport failure. Always retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrNetwork.Error(), e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *NetworkError) Unwrap() []error { return []error{ErrNetwork, e.Err} }

// TimeoutError wraps an expired per-operation deadline or a cancelled context.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, ErrTimeout.Error())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrTimeout.Error(), e.Err)
}

func (e *TimeoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTimeout}
	}
	return []error{ErrTimeout, e.Err}
}

// UpstreamUnavailableError is returned once retries are exhausted or the breaker is open.
type UpstreamUnavailableError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempt(s): %v", e.Op, ErrUpstreamUnavailable.Error(), e.Attempts, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.Err}
}

// StatusError carries a non-2xx vault response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: vault returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: vault returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap maps 404 onto ErrNotFound.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Retryable reports whether the status is worth another attempt. 4xx never is.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable reports whether err should be retried by the vault client.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}
