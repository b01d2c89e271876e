/*
store.go - Persistence interface for accounts and transactions

PURPOSE:
  Defines the boundary between the domain core and the database. The
  orchestrator never talks SQL; it loads one aggregate, works on it,
  and saves inside a unit of work.

UNIT OF WORK:
  WithUnit executes fn against a transactional view of the repository.
  If fn returns an error everything rolls back; the orchestrator relies
  on this for its all-or-nothing guarantee, including the ledger
  propagation step which runs inside the unit.

IMPLEMENTATIONS:
  - store/memory:   in-memory, snapshot/rollback (tests, dev)
  - store/sqlite:   SQLite, production single-node
  - store/postgres: PostgreSQL via lib/pq
*/
package savings

import "context"

// Repository persists accounts and their transactions.
type Repository interface {
	// CreateAccount persists a new aggregate. Fails if the ID exists.
	CreateAccount(ctx context.Context, a *Account) error

	// Load returns the aggregate with its full transaction history,
	// replayed and ready to mutate. The returned value is private to
	// the caller: mutating it does not affect stored state until Save.
	Load(ctx context.Context, id AccountID) (*Account, error)

	// Save persists the aggregate's own fields (balances, status,
	// boundary, version). Transactions are saved separately.
	Save(ctx context.Context, a *Account) error

	// SaveTransaction persists one transaction, assigning its
	// identifier when empty, and returns the identifier.
	SaveTransaction(ctx context.Context, tx *Transaction) (TransactionID, error)

	// SaveTransactions upserts a batch (new rows and rewritten ones).
	SaveTransactions(ctx context.Context, txs []*Transaction) error

	// FindOnHoldTransactions returns the account's non-reversed hold
	// transactions ordered by creation ascending.
	FindOnHoldTransactions(ctx context.Context, id AccountID) ([]*Transaction, error)

	// ListAccounts returns all account identifiers (scheduler sweep).
	ListAccounts(ctx context.Context) ([]AccountID, error)

	// WithUnit executes fn within one atomic unit of work. fn receives
	// a derived context and a transactional Repository view; an error
	// rolls everything back. Implementations attach the unit's database
	// transaction to the derived context so collaborators invoked inside
	// the unit (the journal store in particular) join the same
	// transaction instead of writing on a separate connection.
	WithUnit(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
