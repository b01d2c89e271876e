/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model
  from the external contract. Amounts travel as decimal strings; dates
  as YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Handlers validate; DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/warp/savings-core/ledger"
	"github.com/warp/savings-core/savings"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID                    string `json:"id"`
	Currency              string `json:"currency"`
	DepositType           string `json:"deposit_type"`
	Status                string `json:"status"`
	Balance               string `json:"balance"`
	OnHoldFunds           string `json:"on_hold_funds"`
	Available             string `json:"available"`
	AccruedInterest       string `json:"accrued_interest"`
	AnnualInterestRate    string `json:"annual_interest_rate"`
	PostingPeriod         string `json:"posting_period"`
	InterestPostedThrough string `json:"interest_posted_through,omitempty"`
	OpenedOn              string `json:"opened_on"`
	Version               int64  `json:"version"`
}

// TransactionDTO represents one transaction in API responses.
type TransactionDTO struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Date           string `json:"date"`
	RunningBalance string `json:"running_balance"`
	Ref            string `json:"ref,omitempty"`
	Reversed       bool   `json:"reversed"`
	LinkedTo       string `json:"linked_to,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// JournalEntryDTO represents one journal leg in API responses.
type JournalEntryDTO struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	GLAccount     string `json:"gl_account"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Date          string `json:"date"`
	Reversal      bool   `json:"reversal"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateAccountRequest creates a new savings account.
type CreateAccountRequest struct {
	ID                 string `json:"id"`
	Currency           string `json:"currency"`
	OpenedOn           string `json:"opened_on"`
	AnnualInterestRate string `json:"annual_interest_rate,omitempty"`
	PostingPeriod      string `json:"posting_period,omitempty"`
	WithdrawalFee      string `json:"withdrawal_fee,omitempty"`
}

// MovementRequest is the body for deposits, withdrawals, and dividends.
type MovementRequest struct {
	Amount           string `json:"amount"`
	Date             string `json:"date"`
	PaymentMethod    string `json:"payment_method,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`

	// Withdrawal-only knobs.
	ApplyFee         bool `json:"apply_fee,omitempty"`
	BalanceCheckSkip bool `json:"skip_balance_check,omitempty"`
}

// HoldRequest earmarks funds.
type HoldRequest struct {
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	LienAllowed bool   `json:"lien_allowed,omitempty"`
}

// ReleaseRequest frees a hold.
type ReleaseRequest struct {
	HoldID string `json:"hold_id"`
	Date   string `json:"date"`
}

// ReversalRequest reverses a batch of transactions in order.
type ReversalRequest struct {
	TransactionIDs []string `json:"transaction_ids"`
}

// =============================================================================
// MAPPING
// =============================================================================

func toAccountDTO(a *savings.Account) AccountDTO {
	dto := AccountDTO{
		ID:                 string(a.ID),
		Currency:           a.Currency,
		DepositType:        string(a.DepositType),
		Status:             a.Status.String(),
		Balance:            a.Balance.Amount.String(),
		OnHoldFunds:        a.OnHoldFunds.Amount.String(),
		Available:          a.Balance.Sub(a.OnHoldFunds).Amount.String(),
		AccruedInterest:    a.AccruedInterest.Amount.String(),
		AnnualInterestRate: a.AnnualInterestRate.String(),
		PostingPeriod:      string(a.PostingPeriod),
		OpenedOn:           a.OpenedOn.String(),
		Version:            a.Version,
	}
	if !a.InterestPostedThrough.IsZero() {
		dto.InterestPostedThrough = a.InterestPostedThrough.String()
	}
	return dto
}

func toTransactionDTO(tx *savings.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:             string(tx.ID),
		Type:           string(tx.Type),
		Amount:         tx.Amount.Amount.String(),
		Currency:       tx.Amount.Currency,
		Date:           tx.Date.String(),
		RunningBalance: tx.RunningBalance.Amount.String(),
		Ref:            tx.Ref,
		Reversed:       tx.Reversed,
		LinkedTo:       string(tx.LinkedTo),
		CreatedAt:      tx.CreatedAt.Format(time.RFC3339),
	}
}

func toJournalEntryDTO(e ledger.JournalEntry) JournalEntryDTO {
	return JournalEntryDTO{
		ID:            e.ID,
		TransactionID: string(e.TransactionID),
		GLAccount:     e.GLAccount,
		Type:          string(e.Type),
		Amount:        e.Amount.String(),
		Currency:      e.Currency,
		Date:          e.Date.String(),
		Reversal:      e.Reversal,
	}
}
