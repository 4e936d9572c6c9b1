// Package domainerrors carries typed, code-bearing errors across service
// boundaries. Services resolve validation and policy failures locally and return
// them as *Error values; transports map the Code to a response.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure. Codes are stable strings so they can be surfaced to
// API clients unchanged.
type Code string

const (
	// Generic
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeForbidden          Code = "forbidden"
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeMisconfigured      Code = "misconfigured"

	// Handshake
	CodeTokenInvalid     Code = "token_invalid"
	CodeTokenExpired     Code = "token_expired"
	CodeNonceMismatch    Code = "nonce_mismatch"
	CodeEmailMissing     Code = "email_missing"
	CodeHandshakeExpired Code = "handshake_expired"

	// Domain authority
	CodeDomainNotAllowed    Code = "domain_not_allowed"
	CodeInvalidDomainFormat Code = "invalid_domain_format"
	CodeDuplicateDomain     Code = "duplicate_domain"

	// Credential registry
	CodeAlreadyRegistered  Code = "already_registered"
	CodeCredentialNotFound Code = "credential_not_found"
	CodeCredentialFinal    Code = "credential_final"

	// Authorization
	CodeUnauthorized Code = "unauthorized"

	// Ledger boundary
	CodeLedgerUnavailable Code = "ledger_unavailable"
	CodeLedgerRejected    Code = "ledger_rejected"
	CodeInsufficientGas   Code = "insufficient_gas"
)

// Error is a domain error with a machine-readable code and a human message that
// is safe to show to callers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error without an underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any domain error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is an alias of HasCode kept for handler readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost domain code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost domain message, or an empty string.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
