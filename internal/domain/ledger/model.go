package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// BalanceTransaction is a single immutable ledger row. Credits enter as
// positive adjustments carrying an unallocated amount; debits consume the
// oldest open credits first.
type BalanceTransaction struct {
	ID     string                `db:"id" json:"id"`
	Type   types.TransactionType `db:"type" json:"type"`
	Source types.CreditSource    `db:"source" json:"source"`
	// Amount is signed: positive for credit grants, negative for consumption.
	Amount decimal.Decimal `db:"amount" json:"amount"`
	// UnallocatedAmount is the still-consumable remainder of a positive
	// adjustment. Always zero for debits.
	UnallocatedAmount decimal.Decimal `db:"unallocated_amount" json:"unallocated_amount"`
	// EndingBalance is the tenant balance after this row, maintained as a
	// running sum in submission order.
	EndingBalance decimal.Decimal `db:"ending_balance" json:"ending_balance"`
	Currency      string          `db:"currency" json:"currency"`
	Description   string          `db:"description" json:"description"`
	// InvoiceID links applied_to_invoice rows to the invoice they settled.
	InvoiceID *string `db:"invoice_id" json:"invoice_id,omitempty"`
	// ReversedTransactionID is set on compensating rows created by a reversal.
	ReversedTransactionID *string `db:"reversed_transaction_id" json:"reversed_transaction_id,omitempty"`
	Reverted              bool    `db:"reverted" json:"reverted"`
	// Submitted rows are immutable except for UnallocatedAmount and their
	// allocation children.
	Submitted bool           `db:"submitted" json:"submitted"`
	ExpiresAt *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	Metadata  types.Metadata `db:"metadata" json:"metadata,omitempty"`
	types.BaseModel
}

func (bt *BalanceTransaction) TableName() string {
	return "balance_transactions"
}

func (bt *BalanceTransaction) Validate() error {
	if err := bt.Type.Validate(); err != nil {
		return err
	}
	if err := bt.Source.Validate(); err != nil {
		return err
	}
	if bt.Amount.IsZero() {
		return ierr.NewError("transaction amount cannot be zero").
			WithHint("Provide a non-zero signed amount").
			Mark(ierr.ErrValidation)
	}
	if bt.UnallocatedAmount.IsNegative() {
		return ierr.NewError("unallocated amount cannot be negative").
			Mark(ierr.ErrIntegrityViolation)
	}
	if bt.Amount.IsNegative() && !bt.UnallocatedAmount.IsZero() {
		return ierr.NewError("debit rows cannot carry unallocated amount").
			Mark(ierr.ErrIntegrityViolation)
	}
	return nil
}

// IsCredit reports whether the row granted balance.
func (bt *BalanceTransaction) IsCredit() bool {
	return bt.Amount.IsPositive()
}

// Allocation records that a debit transaction consumed part of a credit
// transaction. The sum of allocations against a credit row equals
// amount - unallocated_amount of that row.
type Allocation struct {
	ID string `db:"id" json:"id"`
	// CreditTransactionID is the positive adjustment that was consumed.
	CreditTransactionID string `db:"credit_transaction_id" json:"credit_transaction_id"`
	// DebitTransactionID is the row that consumed it.
	DebitTransactionID string             `db:"debit_transaction_id" json:"debit_transaction_id"`
	Amount             decimal.Decimal    `db:"amount" json:"amount"`
	Source             types.CreditSource `db:"source" json:"source"`
	types.BaseModel
}

func (a *Allocation) TableName() string {
	return "balance_allocations"
}
