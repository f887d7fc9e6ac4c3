package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/types"
)

type Repository interface {
	Create(ctx context.Context, bt *BalanceTransaction) error
	Get(ctx context.Context, id string) (*BalanceTransaction, error)
	Update(ctx context.Context, bt *BalanceTransaction) error
	List(ctx context.Context, filter *Filter) ([]*BalanceTransaction, error)

	// GetLatest returns the most recently submitted row for the tenant, or
	// a not-found error when the ledger is empty.
	GetLatest(ctx context.Context) (*BalanceTransaction, error)

	// ListOpenCredits returns submitted credit rows with unallocated amount
	// remaining, ordered oldest first. An empty source matches all sources.
	ListOpenCredits(ctx context.Context, source types.CreditSource) ([]*BalanceTransaction, error)

	// SumUnallocated returns the total open credit for the tenant, optionally
	// restricted to a source.
	SumUnallocated(ctx context.Context, source types.CreditSource) (decimal.Decimal, error)

	CreateAllocation(ctx context.Context, a *Allocation) error
	ListAllocationsByDebit(ctx context.Context, debitTransactionID string) ([]*Allocation, error)
	ListAllocationsByCredit(ctx context.Context, creditTransactionID string) ([]*Allocation, error)
}

type Filter struct {
	Types     []types.TransactionType
	Source    types.CreditSource
	InvoiceID *string
	Reverted  *bool
	Limit     int
	Offset    int
}
