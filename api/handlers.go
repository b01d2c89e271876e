/*
handlers.go - HTTP API handlers for the savings transaction core

PURPOSE:
  Exposes the orchestrator via REST. Handles HTTP request/response and
  JSON serialization, and delegates every business decision to the
  savings package.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                      List account identifiers
    POST   /api/accounts                      Create account
    GET    /api/accounts/{id}                 Account state
    GET    /api/accounts/{id}/transactions    Transaction history
    GET    /api/accounts/{id}/journal         Journal entries

  Movements:
    POST   /api/accounts/{id}/deposits
    POST   /api/accounts/{id}/withdrawals
    POST   /api/accounts/{id}/dividends
    POST   /api/accounts/{id}/holds
    POST   /api/accounts/{id}/releases
    POST   /api/accounts/{id}/reversals
    POST   /api/accounts/{id}/interest-postings

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation and business-rule violations
  - 401: No authenticated user
  - 404: Unknown account or transaction
  - 409: Transaction already reversed
  - 500: Persistence / ledger failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/savings-core/ledger"
	"github.com/warp/savings-core/savings"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *savings.Service
	Repo    savings.Repository
	Journal ledger.JournalStore

	// AllowBackdating selects pivot-window mode for every operation the
	// server performs. Mirrors the installation-wide toggle.
	AllowBackdating bool
}

// NewHandler creates a handler around a wired service.
func NewHandler(svc *savings.Service, repo savings.Repository, journal ledger.JournalStore, allowBackdating bool) *Handler {
	return &Handler{Service: svc, Repo: repo, Journal: journal, AllowBackdating: allowBackdating}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all account identifiers.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Repo.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateAccount creates a savings account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if req.ID == "" || req.Currency == "" {
		writeError(w, http.StatusBadRequest, "id and currency are required", nil)
		return
	}
	openedOn, err := savings.ParseTimePoint(req.OpenedOn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid opened_on date", err)
		return
	}

	a := savings.NewAccount(savings.AccountID(req.ID), req.Currency, openedOn)
	if req.AnnualInterestRate != "" {
		rate, err := decimal.NewFromString(req.AnnualInterestRate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid annual_interest_rate", err)
			return
		}
		a.AnnualInterestRate = rate
	}
	if req.PostingPeriod != "" {
		a.PostingPeriod = savings.PostingPeriodType(req.PostingPeriod)
	}
	if req.WithdrawalFee != "" {
		fee, err := decimal.NewFromString(req.WithdrawalFee)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid withdrawal_fee", err)
			return
		}
		a.WithdrawalFee = savings.NewMoney(fee, req.Currency)
	}

	if err := h.Repo.CreateAccount(r.Context(), a); err != nil {
		writeError(w, http.StatusConflict, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(a))
}

// GetAccount returns the account state.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.Repo.Load(r.Context(), savings.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

// GetTransactions returns the full transaction history in replay order.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	a, err := h.Repo.Load(r.Context(), savings.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]TransactionDTO, len(a.Transactions))
	for i, tx := range a.Transactions {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetJournal returns the account's journal entries.
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Journal.Entries(r.Context(), savings.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load journal", err)
		return
	}
	dtos := make([]JournalEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toJournalEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

// Deposit posts a deposit.
// POST /api/accounts/{id}/deposits
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	id, amount, date, payment, ok := h.movement(w, r)
	if !ok {
		return
	}
	flags := savings.TransactionFlags{IsRegularTransaction: true}
	tx, err := h.Service.ApplyDeposit(r.Context(), id, date, amount, payment, flags, h.AllowBackdating)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// Withdraw posts a withdrawal.
// POST /api/accounts/{id}/withdrawals
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	id, amount, date, payment, ok := parseMovement(w, r, req)
	if !ok {
		return
	}
	flags := savings.TransactionFlags{
		IsRegularTransaction:       true,
		ApplyWithdrawFee:           req.ApplyFee,
		IsExceptionForBalanceCheck: req.BalanceCheckSkip,
	}
	tx, err := h.Service.ApplyWithdrawal(r.Context(), id, date, amount, payment, flags, h.AllowBackdating)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// Dividend posts a dividend payout.
// POST /api/accounts/{id}/dividends
func (h *Handler) Dividend(w http.ResponseWriter, r *http.Request) {
	id, amount, date, _, ok := h.movement(w, r)
	if !ok {
		return
	}
	tx, err := h.Service.ApplyDividendPayout(r.Context(), id, date, amount, h.AllowBackdating)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// Hold earmarks funds.
// POST /api/accounts/{id}/holds
func (h *Handler) Hold(w http.ResponseWriter, r *http.Request) {
	var req HoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date, err := savings.ParseTimePoint(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	tx, err := h.Service.ApplyHold(r.Context(), savings.AccountID(chi.URLParam(r, "id")), amount, date, req.LienAllowed)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// Release frees a hold.
// POST /api/accounts/{id}/releases
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	date, err := savings.ParseTimePoint(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	tx, err := h.Service.ApplyRelease(r.Context(), savings.AccountID(chi.URLParam(r, "id")),
		savings.TransactionID(req.HoldID), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// Reverse reverses a batch of transactions.
// POST /api/accounts/{id}/reversals
func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req ReversalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	ids := make([]savings.TransactionID, len(req.TransactionIDs))
	for i, s := range req.TransactionIDs {
		ids[i] = savings.TransactionID(s)
	}
	tx, err := h.Service.ApplyReversal(r.Context(), savings.AccountID(chi.URLParam(r, "id")), ids, h.AllowBackdating)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if tx == nil {
		// Empty batch: benign no-op.
		writeJSON(w, http.StatusOK, map[string]string{"status": "no-op"})
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// PostInterest finalizes ended posting periods for one account.
// POST /api/accounts/{id}/interest-postings
func (h *Handler) PostInterest(w http.ResponseWriter, r *http.Request) {
	id := savings.AccountID(chi.URLParam(r, "id"))
	if err := h.Service.PostAccountInterest(r.Context(), id, h.AllowBackdating); err != nil {
		writeDomainError(w, err)
		return
	}
	a, err := h.Repo.Load(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

// =============================================================================
// HELPERS
// =============================================================================

// movement decodes and validates the shared deposit/dividend body.
func (h *Handler) movement(w http.ResponseWriter, r *http.Request) (savings.AccountID, decimal.Decimal, savings.TimePoint, *savings.PaymentDetail, bool) {
	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return "", decimal.Zero, savings.TimePoint{}, nil, false
	}
	return parseMovement(w, r, req)
}

func parseMovement(w http.ResponseWriter, r *http.Request, req MovementRequest) (savings.AccountID, decimal.Decimal, savings.TimePoint, *savings.PaymentDetail, bool) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return "", decimal.Zero, savings.TimePoint{}, nil, false
	}
	date, err := savings.ParseTimePoint(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return "", decimal.Zero, savings.TimePoint{}, nil, false
	}
	var payment *savings.PaymentDetail
	if req.PaymentMethod != "" || req.PaymentReference != "" {
		payment = &savings.PaymentDetail{Method: req.PaymentMethod, Reference: req.PaymentReference}
	}
	return savings.AccountID(chi.URLParam(r, "id")), amount, date, payment, true
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, savings.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Unauthenticated", err)
	case savings.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, savings.ErrAlreadyReversed):
		writeError(w, http.StatusConflict, "Already reversed", err)
	case savings.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Operation rejected", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
