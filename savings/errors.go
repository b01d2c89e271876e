/*
errors.go - Centralized error types for the savings core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Adapters (HTTP, stores) wrap these errors with additional context.

ERROR CATEGORIES:
  1. Authorization/capability errors - operation rejected before mutation
  2. Validation errors - balance or pivot-window rules violated
  3. Collaborator errors - persistence and ledger propagation failures

Every error aborts the whole unit of work: either all steps of an
operation complete, or the caller receives an error and no durable
state changed. Nothing is retried inside this core.
*/
package savings

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrOperationNotAllowed is returned when the account's status or
	// capability flags forbid the requested transaction type.
	ErrOperationNotAllowed = errors.New("operation not allowed")

	// ErrInsufficientFunds is returned when a mutation would drive the
	// available balance (running balance minus holds) negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidPivotDate is returned when a backdated transaction falls
	// outside the allowed pivot-date window.
	ErrInvalidPivotDate = errors.New("transaction date outside pivot window")

	// ErrAlreadyReversed is returned when reversing a transaction that
	// has already been reversed.
	ErrAlreadyReversed = errors.New("transaction already reversed")

	// ErrAccountNotFound is returned by repositories for unknown accounts.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound is returned when a referenced transaction
	// does not belong to the account.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrPersistence wraps repository failures. No local recovery.
	ErrPersistence = errors.New("persistence failure")

	// ErrLedgerPropagation wraps journal-submission failures. No local
	// recovery; the unit of work aborts.
	ErrLedgerPropagation = errors.New("ledger propagation failure")

	// ErrUnauthenticated is returned when no user is present on the
	// operation's context.
	ErrUnauthenticated = errors.New("no authenticated user")

	// ErrCurrencyMismatch is returned when a transaction amount does not
	// match the account currency.
	ErrCurrencyMismatch = errors.New("currency mismatch")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// OperationNotAllowedError reports which capability or block rejected
// the operation.
type OperationNotAllowedError struct {
	AccountID AccountID
	Action    string // "withdraw", "deposit", ...
	Reason    string // "account blocked", "debit blocked", ...
}

func (e *OperationNotAllowedError) Error() string {
	return fmt.Sprintf("account %s: %s not allowed: %s", e.AccountID, e.Action, e.Reason)
}

func (e *OperationNotAllowedError) Unwrap() error { return ErrOperationNotAllowed }

// InsufficientFundsError reports the shortfall that blocked a mutation.
type InsufficientFundsError struct {
	AccountID AccountID
	Available Money
	Requested Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("account %s: insufficient funds: available %s, requested %s",
		e.AccountID, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// PivotDateError reports a transaction dated outside the backdating window.
type PivotDateError struct {
	AccountID AccountID
	Date      TimePoint
	PivotDate TimePoint
}

func (e *PivotDateError) Error() string {
	return fmt.Sprintf("account %s: transaction date %s precedes pivot date %s",
		e.AccountID, e.Date, e.PivotDate)
}

func (e *PivotDateError) Unwrap() error { return ErrInvalidPivotDate }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid input or a
// business-rule violation rather than an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrOperationNotAllowed) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidPivotDate) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrCurrencyMismatch)
}

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrTransactionNotFound)
}
