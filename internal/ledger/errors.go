package ledger

import (
	"context"
	"errors"
	"fmt"

	dErrors "zkbadge/pkg/domain-errors"
)

// Category is the normalized ledger failure taxonomy.
type Category string

const (
	// CategoryUnavailable: the ledger or relay could not be reached.
	CategoryUnavailable Category = "unavailable"
	// CategoryTimeout: no answer within the call deadline.
	CategoryTimeout Category = "timeout"
	// CategoryRateLimited: the relay asked us to slow down.
	CategoryRateLimited Category = "rate_limited"
	// CategoryRejected: the transaction was executed and aborted.
	CategoryRejected Category = "rejected"
	// CategoryUnauthorized: signer or capability not accepted.
	CategoryUnauthorized Category = "unauthorized"
	// CategoryInsufficientGas: the sender cannot pay for execution.
	CategoryInsufficientGas Category = "insufficient_gas"
	// CategoryMalformed: the request or response could not be understood.
	CategoryMalformed Category = "malformed"
	// CategoryNotFound: the queried object does not exist.
	CategoryNotFound Category = "not_found"
)

// Error wraps ledger failures with a normalized category.
type Error struct {
	Category   Category
	Op         string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("ledger %s [%s]: %s: %v", e.Op, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("ledger %s [%s]: %s", e.Op, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError builds an Error; only transport-level categories are retryable.
func NewError(category Category, op, message string, underlying error) *Error {
	retryable := category == CategoryUnavailable ||
		category == CategoryTimeout ||
		category == CategoryRateLimited
	return &Error{
		Category:   category,
		Op:         op,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable reports whether err is a transient ledger failure. Context
// deadline errors count as timeouts; cancellation does not.
func IsRetryable(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// CategoryOf extracts the category, defaulting to unavailable for unknown
// errors.
func CategoryOf(err error) Category {
	var le *Error
	if errors.As(err, &le) {
		return le.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	return CategoryUnavailable
}

// ToDomain converts a ledger failure into the caller-facing taxonomy.
func ToDomain(err error, message string) error {
	if err == nil {
		return nil
	}
	var code dErrors.Code
	switch CategoryOf(err) {
	case CategoryUnavailable, CategoryTimeout, CategoryRateLimited:
		code = dErrors.CodeLedgerUnavailable
	case CategoryRejected, CategoryMalformed:
		code = dErrors.CodeLedgerRejected
	case CategoryUnauthorized:
		code = dErrors.CodeUnauthorized
	case CategoryInsufficientGas:
		code = dErrors.CodeInsufficientGas
	case CategoryNotFound:
		code = dErrors.CodeNotFound
	default:
		code = dErrors.CodeLedgerUnavailable
	}
	return dErrors.Wrap(err, code, message)
}

// ErrCircuitOpen is returned without calling the ledger while the breaker is
// open.
var ErrCircuitOpen = NewError(CategoryUnavailable, "breaker", "ledger circuit open", nil)
