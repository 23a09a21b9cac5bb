package chain

import (
	"errors"
	"io"
	"net"
	"strings"
)

// TransportError wraps a Chain Transport failure with a retryability hint.
// Callers treat Retryable=true as a trigger to back off and retry;
// non-retryable errors propagate to the caller's own failure logic.
type TransportError struct {
	Retryable bool
	Cause     error
}

func (e *TransportError) Error() string {
	return e.Cause.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// wrap classifies err into a TransportError. The classification is
// conservative: anything that looks like a transient network or node
// condition is retryable, everything else (bad request, revert, etc.) is
// not.
func wrap(err error) error {
	if err == nil {
		return nil
	}

	var te *TransportError
	if errors.As(err, &te) {
		return err
	}

	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return &TransportError{Retryable: true, Cause: err}
	}

	msg := strings.ToLower(err.Error())
	for _, substr := range retryableSubstrings {
		if strings.Contains(msg, substr) {
			return &TransportError{Retryable: true, Cause: err}
		}
	}

	return &TransportError{Retryable: false, Cause: err}
}

var retryableSubstrings = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"timed out",
	"i/o timeout",
	"eof",
	"too many requests",
	"temporarily unavailable",
	"context deadline exceeded",
	"no route to host",
	"websocket: close",
}

// idempotenceMarkers are substrings the settleBet call returns when another
// settler already finalized the same commitment.
var idempotenceMarkers = []string{
	"no valid bet found",
	"already processed",
	"executed",
}

// IsIdempotenceError reports whether err indicates the contract considers
// the bet already settled (or never existed), i.e. a success-equivalent
// outcome for the dispatcher.
func IsIdempotenceError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range idempotenceMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether err (possibly wrapped by this package) should
// be retried by the caller.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}
