package main

import (
	"errors"

	"github.com/wunderlog/wunderlog/internal/netrc"
	"github.com/wunderlog/wunderlog/internal/weather"
	"github.com/wunderlog/wunderlog/internal/weather/providers"
)

// Exit codes reported to the operator.
const (
	ExitSuccess = 0
	// General error
	ExitGeneralError = 1
	// Configuration error
	ExitConfigError = 2
	// Transient fetch failure that exhausted its retries
	ExitFetchFailed = 3
	// Credential or upstream authentication problem
	ExitAuthError = 4
	// Archive write failure
	ExitArchiveError = 5
	// Usage error
	ExitUsageError = 64
)

// ExitError carries a specific exit code to the top level.
type ExitError struct {
	Message string
	Code    int
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return e.Message
}

// NewConfigError creates a configuration error (exit code 2).
func NewConfigError(message string) *ExitError {
	return &ExitError{Message: message, Code: ExitConfigError}
}

// NewUsageError creates a usage error (exit code 64).
func NewUsageError(message string) *ExitError {
	return &ExitError{Message: message, Code: ExitUsageError}
}

// exitCode maps an error to its process exit code. Joined cycle errors map
// to the most specific sentinel they carry, credential problems first.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	switch {
	case errors.Is(err, netrc.ErrNotFound),
		errors.Is(err, netrc.ErrUnreadable),
		errors.Is(err, providers.ErrRejected):
		return ExitAuthError
	case errors.Is(err, weather.ErrWriteFailed):
		return ExitArchiveError
	case errors.Is(err, providers.ErrFetchFailed):
		return ExitFetchFailed
	}
	return ExitGeneralError
}
