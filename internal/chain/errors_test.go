package chain

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestWrap(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"eof", io.EOF, true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"timeout", errors.New("context deadline exceeded"), true},
		{"rate limited", errors.New("429 too many requests"), true},
		{"revert", errors.New("execution reverted: custom error"), false},
		{"bad request", errors.New("invalid argument"), false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			wrapped := wrap(c.err)
			var te *TransportError
			if !errors.As(wrapped, &te) {
				t.Fatalf("wrap(%v) did not produce a *TransportError", c.err)
			}
			if te.Retryable != c.retryable {
				t.Errorf("Retryable = %v, want %v", te.Retryable, c.retryable)
			}
			if !errors.Is(wrapped, c.err) && te.Cause != c.err {
				t.Errorf("Cause = %v, want %v", te.Cause, c.err)
			}
		})
	}
}

func TestWrap_Nil(t *testing.T) {
	if wrap(nil) != nil {
		t.Error("wrap(nil) should return nil")
	}
}

func TestWrap_AlreadyWrapped(t *testing.T) {
	inner := &TransportError{Retryable: true, Cause: errors.New("boom")}
	if wrap(inner) != error(inner) {
		t.Error("wrap should not double-wrap an existing TransportError")
	}
}

func TestIsIdempotenceError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("no valid bet found for room"), true},
		{errors.New("execution reverted: already processed"), true},
		{errors.New("tx executed"), true},
		{errors.New("insufficient funds"), false},
	}

	for _, c := range cases {
		if got := IsIdempotenceError(c.err); got != c.want {
			t.Errorf("IsIdempotenceError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := wrap(errors.New("connection refused"))
	if !IsRetryable(retryable) {
		t.Error("expected wrapped connection-refused error to be retryable")
	}

	plain := errors.New("some unrelated error")
	if IsRetryable(plain) {
		t.Error("a plain error should not be reported retryable")
	}

	wrappedNonRetryable := fmt.Errorf("submit: %w", wrap(errors.New("execution reverted")))
	if IsRetryable(wrappedNonRetryable) {
		t.Error("execution reverted should not be retryable")
	}
}
