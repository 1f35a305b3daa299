// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Common application errors.
var (
	// Input errors.
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnknownMethod = errors.New("unknown match method")

	// Storage errors.
	ErrNotFound        = errors.New("not found")
	ErrPatternNotFound = errors.New("learned pattern not found")
	ErrNoCatalog       = errors.New("price catalog unavailable")

	// Provider errors.
	ErrProvider        = errors.New("provider request failed")
	ErrProviderAuth    = errors.New("provider rejected credentials")
	ErrMissingAPIKey   = errors.New("provider api key is required")
	ErrUnknownProvider = errors.New("unknown provider")

	// Job errors.
	ErrJobCancelled = errors.New("job cancelled")
	ErrJobAborted   = errors.New("job aborted")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// InputError reports a malformed query or an unsupported method. It is never
// retried.
type InputError struct {
	Err    error
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input %s: %s", e.Field, e.Reason)
}

// Unwrap allows errors.Is against ErrInvalidInput and the wrapped cause.
func (e *InputError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidInput}
	}
	return []error{ErrInvalidInput, e.Err}
}

// NewInputError creates an InputError for field.
func NewInputError(field, reason string, err error) error {
	return &InputError{Field: field, Reason: reason, Err: err}
}

// ProviderError is returned by embedding and rerank providers.
type ProviderError struct {
	Err        error
	Provider   string
	Op         string
	StatusCode int
	Retryable  bool
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProvider}
	}
	return []error{ErrProvider, e.Err}
}

// Fatal reports whether the error will not go away on retry, such as bad
// credentials or a rejected request.
func (e *ProviderError) Fatal() bool {
	return !e.Retryable
}

// NewProviderError classifies an HTTP status from provider into a ProviderError.
func NewProviderError(provider, op string, status int, err error) *ProviderError {
	pe := &ProviderError{
		Provider:   provider,
		Op:         op,
		StatusCode: status,
		Err:        err,
		Retryable:  RetryableStatus(status),
	}
	if status == 401 || status == 403 {
		pe.Err = errors.Join(ErrProviderAuth, err)
	}
	return pe
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(status int) bool {
	switch {
	case status == 408, status == 429:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	if errors.Is(err, ErrRateLimit) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"rate limit", "connection reset", "timeout", "econnreset", "etimedout"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// IsFatalProvider reports whether err carries a provider failure that retrying
// or falling back cannot fix.
func IsFatalProvider(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Fatal()
	}
	return false
}
