package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel error kinds shared across the build pipeline and the query
// accessor. Every error surfaced by internal/ packages wraps one of these so
// callers can classify failures with errors.Is regardless of which component
// produced them.
var (
	ErrIOError            = errors.New("io error")
	ErrParseError         = errors.New("parse error")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTimeout            = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the status code the query server should
// return. Only the query server's HTTP surface consults this; the build
// pipeline's CLI binaries report errors via exit codes and logs.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrParseError):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrIOError), errors.Is(err, ErrInvariantViolation):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
