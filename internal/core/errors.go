package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrAuthorization indicates the caller may not perform the operation.
	ErrAuthorization = errors.New("not authorized")
	// ErrUnauthenticated indicates a missing or unknown credential.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrNotFound indicates a chapter or artifact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionNotFound indicates the requested audio version is not in the history.
	ErrVersionNotFound = fmt.Errorf("audio version %w", ErrNotFound)
	// ErrStorage indicates the artifact store could not read or write a file.
	ErrStorage = errors.New("artifact storage failure")
	// ErrConflict indicates the chapter changed between load and save.
	ErrConflict = errors.New("chapter was modified concurrently")
)

// ProviderErrorKind classifies a speech provider failure.
type ProviderErrorKind string

// Provider failure kinds.
const (
	ProviderErrAuth        ProviderErrorKind = "auth"
	ProviderErrRateLimit   ProviderErrorKind = "rate_limit"
	ProviderErrNetwork     ProviderErrorKind = "network"
	ProviderErrTimeout     ProviderErrorKind = "timeout"
	ProviderErrBadResponse ProviderErrorKind = "bad_response"
	ProviderErrUndersized  ProviderErrorKind = "undersized"
)

// ProviderError is returned by speech providers. It never leaves the
// synthesis gateway as an error; the gateway reports it as a diagnostic.
type ProviderError struct {
	Kind   ProviderErrorKind
	Status int
	Detail string
	Err    error
}

func (e *ProviderError) Error() string {
	msg := "speech provider " + string(e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Validationf builds an ErrValidation with a detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
