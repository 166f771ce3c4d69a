package chain

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrAccountNotFound is returned when the node does not know the account.
	ErrAccountNotFound = errors.New("account not found on chain")

	// ErrSequenceMismatch is returned when the submitted sequence number
	// does not match the account's on-chain counter.
	ErrSequenceMismatch = errors.New("sequence number mismatch")

	// ErrRateLimited is returned when the node throttles the request.
	ErrRateLimited = errors.New("rate limited by node")

	// ErrNodeUnavailable is returned on connection failures and 5xx replies.
	ErrNodeUnavailable = errors.New("node unavailable")

	// ErrInsufficientFunds is returned when the deployer cannot pay gas.
	ErrInsufficientFunds = errors.New("insufficient funds for gas")

	// ErrTransactionRejected is returned when the node refuses the
	// transaction for a semantic reason (bad payload, bad signature).
	ErrTransactionRejected = errors.New("transaction rejected")

	// ErrTransactionFailed is returned when a transaction executed on chain
	// but aborted.
	ErrTransactionFailed = errors.New("transaction failed on chain")

	// ErrTransactionNotFound is returned when the node does not know a
	// transaction hash yet. An accepted transaction routinely 404s until
	// the node indexes it, so this is transient during confirmation.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrConfirmTimeout is returned when a transaction stays pending past
	// the confirmation deadline.
	ErrConfirmTimeout = errors.New("transaction confirmation timed out")
)

// ErrorKind classifies a submission error for retry purposes.
type ErrorKind int

const (
	// KindPermanent errors will fail identically on retry.
	KindPermanent ErrorKind = iota

	// KindTransient errors may succeed on retry (throttling, flaky network,
	// sequence races).
	KindTransient
)

// SubmitError wraps a transport failure with its retry classification.
type SubmitError struct {
	Op      string // Operation that failed (e.g., "Submit", "Confirm")
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// NewSubmitError creates a new SubmitError.
func NewSubmitError(op string, kind ErrorKind, message string, err error) *SubmitError {
	return &SubmitError{Op: op, Kind: kind, Message: message, Err: err}
}

// IsTransient reports whether err may succeed if retried. Context
// cancellation is never transient: the run is over.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var submitErr *SubmitError
	if errors.As(err, &submitErr) {
		return submitErr.Kind == KindTransient
	}
	return false
}
