package errors

import (
	"errors"
	"fmt"
)

var (
	ErrConfigMissingKey = errors.New("missing configuration key")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrTLSSetup         = errors.New("tls setup failed")
	ErrFileUnavailable  = errors.New("corpus file unavailable")
	ErrMalformedRequest = errors.New("malformed request")
	ErrEncoding         = errors.New("request is not valid UTF-8")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

// Outcome is the reply class an error degrades to on a connection.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	default:
		return "error"
	}
}

type AppError struct {
	Err     error
	Op      string
	Message string
}

func (e *AppError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, op string, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: message,
	}
}

func Newf(sentinel error, op string, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// Classify maps a per-connection error to the reply class the client sees.
// A missing corpus and a malformed request are deliberately reported as
// absence rather than failure.
func Classify(err error) Outcome {
	switch {
	case errors.Is(err, ErrFileUnavailable), errors.Is(err, ErrMalformedRequest):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

// IsFatal reports whether err belongs to the startup class that must abort
// the process before any socket is opened.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfigMissingKey) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrTLSSetup)
}
