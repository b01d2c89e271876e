/*
Package sqlite provides the SQLite-backed Repository and journal store.

PURPOSE:
  Implements savings.Repository and ledger.JournalStore on one SQLite
  database. The same schema and statements port to PostgreSQL with only
  placeholder differences (see store/postgres).

KEY TABLES:
  accounts:        aggregate fields (balances, status, boundary, version)
  transactions:    full per-account history, upserted because backdated
                   operations rewrite running balances and reversal flags
  journal_entries: append-only double-entry rows

UPSERT, NOT APPEND-ONLY:
  Unlike a pure event log, transaction rows are mutable in exactly two
  fields: the reversed flag and the running balance. Both rewrites flow
  through INSERT ... ON CONFLICT(id) DO UPDATE. Rows are never deleted.

WAL MODE:
  Opened with WAL for read concurrency; the unit of work maps to a
  database transaction (BEGIN ... COMMIT / ROLLBACK).

USAGE:
  store, err := sqlite.New("./data/savings.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/savings-core/ledger"
	"github.com/warp/savings-core/savings"
)

// Store implements savings.Repository and ledger.JournalStore.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		currency TEXT NOT NULL,
		deposit_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		allow_withdrawal BOOLEAN NOT NULL DEFAULT TRUE,
		allow_deposit BOOLEAN NOT NULL DEFAULT TRUE,
		balance TEXT NOT NULL,
		on_hold_funds TEXT NOT NULL,
		withdrawal_fee TEXT NOT NULL,
		annual_interest_rate TEXT NOT NULL,
		posting_period TEXT NOT NULL,
		interest_posted_through TEXT,
		accrued_interest TEXT NOT NULL,
		opened_on TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		tx_date TEXT NOT NULL,
		running_balance TEXT NOT NULL,
		ref TEXT NOT NULL DEFAULT '',
		seq INTEGER NOT NULL,
		reversed BOOLEAN NOT NULL DEFAULT FALSE,
		requires_recalc BOOLEAN NOT NULL DEFAULT FALSE,
		lien_allowed BOOLEAN NOT NULL DEFAULT FALSE,
		linked_to TEXT,
		charges_json TEXT,
		payment_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Replay order (hot path): one index serves both load and the
	-- pivot-window scan.
	CREATE INDEX IF NOT EXISTS idx_transactions_account_date_seq
		ON transactions(account_id, tx_date, seq);

	-- Active holds only.
	CREATE INDEX IF NOT EXISTS idx_transactions_holds
		ON transactions(account_id, created_at)
		WHERE tx_type = 'hold' AND reversed = FALSE;

	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		gl_account TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		ref TEXT NOT NULL DEFAULT '',
		reversal BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_account
		ON journal_entries(account_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// The unit of work stashes its *sql.Tx in the context so that the
// journal store, reached through the ledger gateway rather than the
// Repository view, writes on the same transaction.
type ctxKey int

const txKey ctxKey = 0

func txFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey).(*sql.Tx)
	return tx
}

// =============================================================================
// REPOSITORY (savings.Repository interface)
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, a *savings.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM accounts WHERE id = ?", a.ID,
	).Scan(&count); err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: account %s already exists", savings.ErrPersistence, a.ID)
	}
	if err := s.saveAccount(ctx, s.db, a); err != nil {
		return err
	}
	for _, tx := range a.Transactions {
		if _, err := s.saveTx(ctx, s.db, tx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id savings.AccountID) (*savings.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(ctx, s.db, id)
}

func (s *Store) Save(ctx context.Context, a *savings.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAccount(ctx, s.db, a)
}

func (s *Store) SaveTransaction(ctx context.Context, tx *savings.Transaction) (savings.TransactionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveTx(ctx, s.db, tx)
}

func (s *Store) SaveTransactions(ctx context.Context, txs []*savings.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		if _, err := s.saveTx(ctx, s.db, tx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) FindOnHoldTransactions(ctx context.Context, id savings.AccountID) ([]*savings.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holds(ctx, s.db, id)
}

func (s *Store) ListAccounts(ctx context.Context) ([]savings.AccountID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(ctx, s.db)
}

func (s *Store) list(ctx context.Context, db executor) ([]savings.AccountID, error) {
	rows, err := db.QueryContext(ctx, "SELECT id FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var ids []savings.AccountID
	for rows.Next() {
		var id savings.AccountID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WithUnit maps the unit of work onto a database transaction. fn runs
// under the write lock with the transaction attached to its context, so
// journal writes issued inside the unit commit or roll back with it.
func (s *Store) WithUnit(ctx context.Context, fn func(context.Context, savings.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	unitCtx := context.WithValue(ctx, txKey, sqlTx)
	if err := fn(unitCtx, &unitStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type unitStore struct {
	tx     *sql.Tx
	parent *Store
}

func (u *unitStore) CreateAccount(ctx context.Context, a *savings.Account) error {
	if err := u.parent.saveAccount(ctx, u.tx, a); err != nil {
		return err
	}
	for _, tx := range a.Transactions {
		if _, err := u.parent.saveTx(ctx, u.tx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (u *unitStore) Load(ctx context.Context, id savings.AccountID) (*savings.Account, error) {
	return u.parent.load(ctx, u.tx, id)
}

func (u *unitStore) Save(ctx context.Context, a *savings.Account) error {
	return u.parent.saveAccount(ctx, u.tx, a)
}

func (u *unitStore) SaveTransaction(ctx context.Context, tx *savings.Transaction) (savings.TransactionID, error) {
	return u.parent.saveTx(ctx, u.tx, tx)
}

func (u *unitStore) SaveTransactions(ctx context.Context, txs []*savings.Transaction) error {
	for _, tx := range txs {
		if _, err := u.parent.saveTx(ctx, u.tx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (u *unitStore) FindOnHoldTransactions(ctx context.Context, id savings.AccountID) ([]*savings.Transaction, error) {
	return u.parent.holds(ctx, u.tx, id)
}

func (u *unitStore) ListAccounts(ctx context.Context) ([]savings.AccountID, error) {
	return u.parent.list(ctx, u.tx)
}

func (u *unitStore) WithUnit(ctx context.Context, fn func(context.Context, savings.Repository) error) error {
	return fn(ctx, u)
}

// =============================================================================
// ROW MAPPING
// =============================================================================

func (s *Store) saveAccount(ctx context.Context, db executor, a *savings.Account) error {
	query := `
		INSERT INTO accounts
		(id, currency, deposit_type, status, allow_withdrawal, allow_deposit,
		 balance, on_hold_funds, withdrawal_fee, annual_interest_rate,
		 posting_period, interest_posted_through, accrued_interest, opened_on,
		 version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			allow_withdrawal = excluded.allow_withdrawal,
			allow_deposit = excluded.allow_deposit,
			balance = excluded.balance,
			on_hold_funds = excluded.on_hold_funds,
			withdrawal_fee = excluded.withdrawal_fee,
			annual_interest_rate = excluded.annual_interest_rate,
			posting_period = excluded.posting_period,
			interest_posted_through = excluded.interest_posted_through,
			accrued_interest = excluded.accrued_interest,
			version = excluded.version,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, query,
		a.ID,
		a.Currency,
		string(a.DepositType),
		a.Status.String(),
		a.AllowWithdrawal,
		a.AllowDeposit,
		a.Balance.Amount.String(),
		a.OnHoldFunds.Amount.String(),
		a.WithdrawalFee.Amount.String(),
		a.AnnualInterestRate.String(),
		string(a.PostingPeriod),
		nullTimePoint(a.InterestPostedThrough),
		a.AccruedInterest.Amount.String(),
		a.OpenedOn.String(),
		a.Version,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, db executor, id savings.AccountID) (*savings.Account, error) {
	query := `
		SELECT id, currency, deposit_type, status, allow_withdrawal, allow_deposit,
		       balance, on_hold_funds, withdrawal_fee, annual_interest_rate,
		       posting_period, interest_posted_through, accrued_interest, opened_on, version
		FROM accounts WHERE id = ?
	`

	var (
		a             savings.Account
		depositType   string
		status        string
		balance       string
		onHold        string
		fee           string
		rate          string
		postingPeriod string
		postedThrough sql.NullString
		accrued       string
		openedOn      string
	)
	err := db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Currency, &depositType, &status, &a.AllowWithdrawal, &a.AllowDeposit,
		&balance, &onHold, &fee, &rate,
		&postingPeriod, &postedThrough, &accrued, &openedOn, &a.Version,
	)
	if err == sql.ErrNoRows {
		return nil, savings.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	a.DepositType = savings.DepositAccountType(depositType)
	a.Status = savings.ParseAccountStatus(status)
	a.Balance = moneyFrom(balance, a.Currency)
	a.OnHoldFunds = moneyFrom(onHold, a.Currency)
	a.WithdrawalFee = moneyFrom(fee, a.Currency)
	a.AnnualInterestRate = mustDecimal(rate)
	a.PostingPeriod = savings.PostingPeriodType(postingPeriod)
	a.AccruedInterest = moneyFrom(accrued, a.Currency)
	a.OpenedOn, _ = savings.ParseTimePoint(openedOn)
	if postedThrough.Valid {
		a.InterestPostedThrough, _ = savings.ParseTimePoint(postedThrough.String)
	}

	txs, err := s.loadTxs(ctx, db, id)
	if err != nil {
		return nil, err
	}
	a.SetTransactions(txs)
	return &a, nil
}

func (s *Store) saveTx(ctx context.Context, db executor, tx *savings.Transaction) (savings.TransactionID, error) {
	if tx.ID == "" {
		tx.ID = savings.TransactionID(uuid.NewString())
	}

	var chargesJSON, paymentJSON sql.NullString
	if len(tx.Charges) > 0 {
		b, _ := json.Marshal(tx.Charges)
		chargesJSON = sql.NullString{String: string(b), Valid: true}
	}
	if tx.Payment != nil {
		b, _ := json.Marshal(tx.Payment)
		paymentJSON = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO transactions
		(id, account_id, tx_type, amount, currency, tx_date, running_balance,
		 ref, seq, reversed, requires_recalc, lien_allowed, linked_to,
		 charges_json, payment_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			running_balance = excluded.running_balance,
			reversed = excluded.reversed,
			charges_json = excluded.charges_json
	`

	_, err := db.ExecContext(ctx, query,
		tx.ID,
		tx.AccountID,
		string(tx.Type),
		tx.Amount.Amount.String(),
		tx.Amount.Currency,
		tx.Date.String(),
		tx.RunningBalance.Amount.String(),
		tx.Ref,
		tx.Seq,
		tx.Reversed,
		tx.RequiresInterestRecalc,
		tx.LienAllowed,
		nullString(string(tx.LinkedTo)),
		chargesJSON,
		paymentJSON,
		tx.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save transaction: %w", err)
	}
	return tx.ID, nil
}

func (s *Store) loadTxs(ctx context.Context, db executor, id savings.AccountID) ([]*savings.Transaction, error) {
	query := `
		SELECT id, account_id, tx_type, amount, currency, tx_date, running_balance,
		       ref, seq, reversed, requires_recalc, lien_allowed, linked_to,
		       charges_json, payment_json, created_at
		FROM transactions
		WHERE account_id = ?
		ORDER BY tx_date ASC, seq ASC
	`
	return s.queryTxs(ctx, db, query, id)
}

func (s *Store) holds(ctx context.Context, db executor, id savings.AccountID) ([]*savings.Transaction, error) {
	query := `
		SELECT id, account_id, tx_type, amount, currency, tx_date, running_balance,
		       ref, seq, reversed, requires_recalc, lien_allowed, linked_to,
		       charges_json, payment_json, created_at
		FROM transactions
		WHERE account_id = ? AND tx_type = 'hold' AND reversed = FALSE
		ORDER BY created_at ASC
	`
	return s.queryTxs(ctx, db, query, id)
}

func (s *Store) queryTxs(ctx context.Context, db executor, query string, args ...any) ([]*savings.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*savings.Transaction
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTx(rows *sql.Rows) (*savings.Transaction, error) {
	var (
		tx          savings.Transaction
		txType      string
		amount      string
		currency    string
		txDate      string
		runningBal  string
		linkedTo    sql.NullString
		chargesJSON sql.NullString
		paymentJSON sql.NullString
		createdAt   string
	)

	err := rows.Scan(
		&tx.ID, &tx.AccountID, &txType, &amount, &currency, &txDate, &runningBal,
		&tx.Ref, &tx.Seq, &tx.Reversed, &tx.RequiresInterestRecalc, &tx.LienAllowed,
		&linkedTo, &chargesJSON, &paymentJSON, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Type = savings.TransactionType(txType)
	tx.Amount = moneyFrom(amount, currency)
	tx.Date, _ = savings.ParseTimePoint(txDate)
	tx.RunningBalance = moneyFrom(runningBal, currency)
	tx.LinkedTo = savings.TransactionID(linkedTo.String)
	tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if chargesJSON.Valid && chargesJSON.String != "" {
		json.Unmarshal([]byte(chargesJSON.String), &tx.Charges)
	}
	if paymentJSON.Valid && paymentJSON.String != "" {
		var p savings.PaymentDetail
		json.Unmarshal([]byte(paymentJSON.String), &p)
		tx.Payment = &p
	}
	return &tx, nil
}

// =============================================================================
// JOURNAL STORE (ledger.JournalStore interface)
// =============================================================================

func (s *Store) Append(ctx context.Context, entries []ledger.JournalEntry) error {
	// Inside a unit of work the entries join the unit's transaction.
	// The unit already holds the write lock, so taking it here again
	// would self-deadlock.
	if tx := txFrom(ctx); tx != nil {
		return s.appendEntries(ctx, tx, entries)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendEntries(ctx, s.db, entries)
}

func (s *Store) appendEntries(ctx context.Context, db executor, entries []ledger.JournalEntry) error {
	query := `
		INSERT INTO journal_entries
		(id, account_id, transaction_id, gl_account, entry_type, amount,
		 currency, entry_date, ref, reversal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, e := range entries {
		_, err := db.ExecContext(ctx, query,
			e.ID, e.AccountID, e.TransactionID, e.GLAccount, string(e.Type),
			e.Amount.String(), e.Currency, e.Date.String(), e.Ref, e.Reversal,
			e.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to append journal entry: %w", err)
		}
	}
	return nil
}

func (s *Store) Entries(ctx context.Context, id savings.AccountID) ([]ledger.JournalEntry, error) {
	if tx := txFrom(ctx); tx != nil {
		return s.queryEntries(ctx, tx, id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryEntries(ctx, s.db, id)
}

func (s *Store) queryEntries(ctx context.Context, db executor, id savings.AccountID) ([]ledger.JournalEntry, error) {
	query := `
		SELECT id, account_id, transaction_id, gl_account, entry_type, amount,
		       currency, entry_date, ref, reversal, created_at
		FROM journal_entries
		WHERE account_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.JournalEntry
	for rows.Next() {
		var (
			e         ledger.JournalEntry
			entryType string
			amount    string
			entryDate string
			createdAt string
		)
		if err := rows.Scan(
			&e.ID, &e.AccountID, &e.TransactionID, &e.GLAccount, &entryType,
			&amount, &e.Currency, &entryDate, &e.Ref, &e.Reversal, &createdAt,
		); err != nil {
			return nil, err
		}
		e.Type = ledger.EntryType(entryType)
		e.Amount = mustDecimal(amount)
		e.Date, _ = savings.ParseTimePoint(entryDate)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTimePoint(t savings.TimePoint) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.String(), Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func moneyFrom(amount, currency string) savings.Money {
	return savings.NewMoney(mustDecimal(amount), currency)
}
