// Package errors provides structured error types for the wallet relay.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for propagation policy decisions.
// Connectivity and protocol errors are retried internally; session errors
// require a fresh launch link; approval-domain errors and user rejections
// terminate only the current transaction attempt.
type Kind string

const (
	KindConnectivity Kind = "connectivity"
	KindProtocol     Kind = "protocol"
	KindSession      Kind = "session"
	KindApproval     Kind = "approval"
	KindRejection    Kind = "rejection"
)

// Sentinel errors for common failure modes.
var (
	ErrNotConnected       = errors.New("connection not open")
	ErrMissingSession     = errors.New("no session ID provided")
	ErrSessionNotFound    = errors.New("session not found")
	ErrNoTransaction      = errors.New("no transaction queued for session")
	ErrRequestPending     = errors.New("a transaction request is already pending")
	ErrAlreadyResolved    = errors.New("transaction already resolved")
	ErrUnknownTransaction = errors.New("unknown transaction ID")
	ErrRetriesExhausted   = errors.New("reconnect attempts exhausted")
	ErrUnavailable        = errors.New("relay endpoint unavailable")
	ErrTimeout            = errors.New("operation timed out")
)

// RelayError wraps an error with its taxonomy kind and a short
// human-readable message safe to put on the wire.
type RelayError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *RelayError) Unwrap() error { return e.Err }

// New creates a RelayError of the given kind.
func New(kind Kind, message string, err error) *RelayError {
	return &RelayError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the taxonomy kind of err, or KindApproval for plain errors
// (the safe default: surfaced to the human, session stays alive).
func KindOf(err error) Kind {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Kind
	}
	switch {
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrRetriesExhausted),
		errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return KindConnectivity
	case errors.Is(err, ErrMissingSession), errors.Is(err, ErrSessionNotFound):
		return KindSession
	}
	return KindApproval
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConnectivity || KindOf(err) == KindProtocol
}

// UserMessage extracts a short human string from err. Raw wrapped detail is
// never forwarded over the wire.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var re *RelayError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return "The operation timed out. Please try again."
	case errors.Is(err, ErrNotConnected):
		return "Connection lost. Please refresh."
	case errors.Is(err, ErrUnavailable):
		return "Service temporarily unavailable. Please try again."
	}
	return err.Error()
}
