package dto

import (
	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/domain/ledger"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// AllocateCreditRequest appends a signed ledger entry. Positive amounts add
// consumable credit; negative amounts draw down open credits oldest first.
type AllocateCreditRequest struct {
	Amount decimal.Decimal    `json:"amount" binding:"required"`
	Source types.CreditSource `json:"source"`
	Remark string             `json:"remark"`
	// ExpiryDays optionally bounds how long the granted credit stays
	// consumable. Zero means no expiry.
	ExpiryDays int `json:"expiry_days"`
}

func (r *AllocateCreditRequest) Validate() error {
	if r.Amount.IsZero() {
		return ierr.NewError("amount cannot be zero").
			WithHint("Provide a non-zero signed amount").
			Mark(ierr.ErrValidation)
	}
	if r.ExpiryDays < 0 {
		return ierr.NewError("expiry_days cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return r.Source.Validate()
}

// BalanceTransactionResponse is the API shape of a ledger entry
type BalanceTransactionResponse struct {
	*ledger.BalanceTransaction
}

// BalanceResponse reports the tenant's current balance
type BalanceResponse struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// ListTransactionsResponse pages ledger entries newest first
type ListTransactionsResponse struct {
	Items []*BalanceTransactionResponse `json:"items"`
	Total int                           `json:"total"`
}
