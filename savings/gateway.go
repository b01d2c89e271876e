/*
gateway.go - Outbound collaborator contracts

PURPOSE:
  Call-level contracts for the external double-entry ledger, the
  notification sink, and the authentication context. The core treats
  all three as black boxes: the ledger gateway is called exactly once
  per committed operation (after persistence, inside the unit of work),
  notification is fire-and-forget after commit, and the auth context is
  consulted once before any state is touched.
*/
package savings

import (
	"context"
	"log"
)

// =============================================================================
// LEDGER GATEWAY - Exactly-once journal propagation
// =============================================================================

// BridgeData is the derived accounting summary handed to the journal
// writer: the delta between the account's history and the
// reconciliation scope snapshotted at the start of the operation.
type BridgeData struct {
	AccountID         AccountID
	CurrencyCode      string
	DepositType       DepositAccountType
	IsAccountTransfer bool
	AllowBackdating   bool

	// NewTransactions are transactions the ledger has not seen.
	NewTransactions []*Transaction

	// NewlyReversed are transactions the ledger knew that this
	// operation reversed.
	NewlyReversed []*Transaction
}

// LedgerGateway accepts the derived summary and persists journal
// entries. DeriveBridgeData is pure; SubmitJournalEntries must be
// called exactly once per committed operation, after persistence
// succeeds, before the operation is complete.
type LedgerGateway interface {
	DeriveBridgeData(a *Account, currencyCode string, scope ReconciliationScope, isAccountTransfer, allowBackdating bool) BridgeData
	SubmitJournalEntries(ctx context.Context, data BridgeData) error
}

// =============================================================================
// NOTIFICATION SINK - Fire-and-forget business events
// =============================================================================

type Event interface{ EventName() string }

type DepositPosted struct{ Transaction *Transaction }
type WithdrawalPosted struct{ Transaction *Transaction }

func (DepositPosted) EventName() string    { return "savings.deposit.posted" }
func (WithdrawalPosted) EventName() string { return "savings.withdrawal.posted" }

// Notifier delivers events after a successful commit. Delivery failure
// must never roll back the transaction; implementations log and move on.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// LogNotifier writes events to the process log. The default sink.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, e Event) {
	log.Printf("[Events] %s", e.EventName())
}

// NopNotifier drops events.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}

// =============================================================================
// AUTHENTICATION CONTEXT - Authorization gate
// =============================================================================

// AuthContext yields the acting user for an operation. Consulted once,
// before any state is touched; an error aborts the operation.
type AuthContext interface {
	CurrentUser(ctx context.Context) (string, error)
}

type ctxKey int

const userKey ctxKey = 0

// WithUser stamps the acting user onto a context. The HTTP layer does
// this after authenticating the request.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// ContextAuth reads the user from the context.
type ContextAuth struct{}

func (ContextAuth) CurrentUser(ctx context.Context) (string, error) {
	if u, ok := ctx.Value(userKey).(string); ok && u != "" {
		return u, nil
	}
	return "", ErrUnauthenticated
}

// StaticAuth always returns a fixed user (dev/test).
type StaticAuth struct{ User string }

func (s StaticAuth) CurrentUser(context.Context) (string, error) {
	if s.User == "" {
		return "", ErrUnauthenticated
	}
	return s.User, nil
}
