package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrRetrievalTimeout     = errors.New("retrieval timed out")
	ErrRetrievalUnavailable = errors.New("index unavailable")
	ErrIndexOutage          = errors.New("index outage")
	ErrNotFound             = errors.New("not found")
	ErrInternal             = errors.New("internal error")
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

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRetrievalTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrRetrievalUnavailable), errors.Is(err, ErrIndexOutage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Verdict reasons. All but ReasonMissingRecordID annotate NO_MATCH outcomes;
// that one marks a MATCH downgraded to AMBIGUOUS.
const (
	ReasonNone             = ""
	ReasonTimeout          = "timeout"
	ReasonIndexUnavailable = "index_unavailable"
	ReasonInvalidInput     = "invalid_input"
	ReasonNoCandidates     = "no_candidates"
	ReasonInternal         = "internal_error"
	ReasonMissingRecordID  = "missing_record_id"
)

// ReasonFor maps a per-query failure to the reason recorded on its verdict.
func ReasonFor(err error) string {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrInvalidInput):
		return ReasonInvalidInput
	case errors.Is(err, ErrRetrievalTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrRetrievalUnavailable), errors.Is(err, ErrIndexOutage):
		return ReasonIndexUnavailable
	default:
		return ReasonInternal
	}
}
