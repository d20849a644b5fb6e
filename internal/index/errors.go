package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/resilience"
)

// Classify maps a backend error onto the retrieval taxonomy. Timeouts and
// cancellations become ErrRetrievalTimeout; connection failures and an open
// breaker become ErrRetrievalUnavailable. Already classified errors and
// errors that fit neither class are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrRetrievalTimeout) || errors.Is(err, apperrors.ErrRetrievalUnavailable) {
		return err
	}
	switch {
	case isTimeout(err):
		return fmt.Errorf("%w: %w", apperrors.ErrRetrievalTimeout, err)
	case isUnavailable(err):
		return fmt.Errorf("%w: %w", apperrors.ErrRetrievalUnavailable, err)
	}
	return err
}

// Transient reports whether a failed lookup is worth retrying.
func Transient(err error) bool {
	err = Classify(err)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	return errors.Is(err, apperrors.ErrRetrievalTimeout) || errors.Is(err, apperrors.ErrRetrievalUnavailable)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isUnavailable(err error) bool {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
