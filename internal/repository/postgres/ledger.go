package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/domain/ledger"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/postgres"
	"github.com/frappe/press-billing/internal/types"
)

type ledgerRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewLedgerRepository(db postgres.IClient, logger *logger.Logger) ledger.Repository {
	return &ledgerRepository{db: db, logger: logger}
}

func (r *ledgerRepository) Create(ctx context.Context, bt *ledger.BalanceTransaction) error {
	query := `
	INSERT INTO balance_transactions (
		id, type, source, amount, unallocated_amount, ending_balance,
		currency, description, invoice_id, reversed_transaction_id, reverted,
		submitted, expires_at, metadata,
		tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :type, :source, :amount, :unallocated_amount, :ending_balance,
		:currency, :description, :invoice_id, :reversed_transaction_id, :reverted,
		:submitted, :expires_at, :metadata,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExec(query, bt); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to append balance transaction").
			WithReportableDetails(map[string]interface{}{"transaction_id": bt.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *ledgerRepository) Get(ctx context.Context, id string) (*ledger.BalanceTransaction, error) {
	query := `SELECT * FROM balance_transactions WHERE id = $1 AND tenant_id = $2`

	var bt ledger.BalanceTransaction
	err := r.db.GetQuerier(ctx).GetContext(ctx, &bt, query, id, types.GetTenantID(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("balance transaction not found").
				WithHint("No transaction exists with the given id").
				WithReportableDetails(map[string]interface{}{"transaction_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch balance transaction").
			Mark(ierr.ErrDatabase)
	}
	return &bt, nil
}

// Update only touches the mutable columns. Amount, ending balance and type
// are frozen once the row is written.
func (r *ledgerRepository) Update(ctx context.Context, bt *ledger.BalanceTransaction) error {
	query := `
	UPDATE balance_transactions SET
		unallocated_amount = :unallocated_amount,
		reverted = :reverted,
		description = :description,
		metadata = :metadata,
		status = :status,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id AND tenant_id = :tenant_id`

	res, err := r.db.GetQuerier(ctx).NamedExec(query, bt)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update balance transaction").
			WithReportableDetails(map[string]interface{}{"transaction_id": bt.ID}).
			Mark(ierr.ErrDatabase)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewError("balance transaction not found").
			WithHint("No transaction exists with the given id").
			WithReportableDetails(map[string]interface{}{"transaction_id": bt.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *ledgerRepository) List(ctx context.Context, filter *ledger.Filter) ([]*ledger.BalanceTransaction, error) {
	query := `SELECT * FROM balance_transactions WHERE tenant_id = $1 AND status <> $2`
	args := []interface{}{types.GetTenantID(ctx), types.StatusDeleted}

	if filter != nil {
		if len(filter.Types) > 0 {
			placeholders := make([]string, 0, len(filter.Types))
			for _, t := range filter.Types {
				args = append(args, t)
				placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
			}
			query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ", "))
		}
		if filter.Source != "" {
			args = append(args, filter.Source)
			query += fmt.Sprintf(" AND source = $%d", len(args))
		}
		if filter.InvoiceID != nil {
			args = append(args, *filter.InvoiceID)
			query += fmt.Sprintf(" AND invoice_id = $%d", len(args))
		}
		if filter.Reverted != nil {
			args = append(args, *filter.Reverted)
			query += fmt.Sprintf(" AND reverted = $%d", len(args))
		}
	}

	query += " ORDER BY created_at DESC, id DESC"
	if filter != nil {
		query = applyPagination(query, &args, filter.Limit, filter.Offset)
	}

	transactions := []*ledger.BalanceTransaction{}
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &transactions, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list balance transactions").
			Mark(ierr.ErrDatabase)
	}
	return transactions, nil
}

func (r *ledgerRepository) GetLatest(ctx context.Context) (*ledger.BalanceTransaction, error) {
	query := `
	SELECT * FROM balance_transactions
	WHERE tenant_id = $1 AND submitted = true
	ORDER BY created_at DESC, id DESC
	LIMIT 1`

	var bt ledger.BalanceTransaction
	err := r.db.GetQuerier(ctx).GetContext(ctx, &bt, query, types.GetTenantID(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("ledger is empty").
				WithHint("No balance transactions exist for the tenant").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch latest balance transaction").
			Mark(ierr.ErrDatabase)
	}
	return &bt, nil
}

// ListOpenCredits locks the selected rows for the duration of the enclosing
// transaction so two allocators cannot drain the same credit.
func (r *ledgerRepository) ListOpenCredits(ctx context.Context, source types.CreditSource) ([]*ledger.BalanceTransaction, error) {
	query := `
	SELECT * FROM balance_transactions
	WHERE tenant_id = $1
	  AND submitted = true
	  AND amount > 0
	  AND unallocated_amount > 0
	  AND reverted = false`
	args := []interface{}{types.GetTenantID(ctx)}

	if source != "" {
		args = append(args, source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}

	query += " ORDER BY created_at ASC, id ASC FOR UPDATE"

	credits := []*ledger.BalanceTransaction{}
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &credits, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list open credits").
			Mark(ierr.ErrDatabase)
	}
	return credits, nil
}

func (r *ledgerRepository) SumUnallocated(ctx context.Context, source types.CreditSource) (decimal.Decimal, error) {
	query := `
	SELECT COALESCE(SUM(unallocated_amount), 0) FROM balance_transactions
	WHERE tenant_id = $1
	  AND submitted = true
	  AND amount > 0
	  AND reverted = false
	  AND (expires_at IS NULL OR expires_at > NOW())`
	args := []interface{}{types.GetTenantID(ctx)}

	if source != "" {
		args = append(args, source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}

	var sum decimal.Decimal
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &sum, query, args...); err != nil {
		return decimal.Zero, ierr.WithError(err).
			WithHint("Failed to sum open credits").
			Mark(ierr.ErrDatabase)
	}
	return sum, nil
}

func (r *ledgerRepository) CreateAllocation(ctx context.Context, a *ledger.Allocation) error {
	query := `
	INSERT INTO balance_allocations (
		id, credit_transaction_id, debit_transaction_id, amount, source,
		tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :credit_transaction_id, :debit_transaction_id, :amount, :source,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExec(query, a); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create balance allocation").
			WithReportableDetails(map[string]interface{}{"allocation_id": a.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *ledgerRepository) ListAllocationsByDebit(ctx context.Context, debitTransactionID string) ([]*ledger.Allocation, error) {
	return r.listAllocations(ctx, "debit_transaction_id", debitTransactionID)
}

func (r *ledgerRepository) ListAllocationsByCredit(ctx context.Context, creditTransactionID string) ([]*ledger.Allocation, error) {
	return r.listAllocations(ctx, "credit_transaction_id", creditTransactionID)
}

func (r *ledgerRepository) listAllocations(ctx context.Context, column, id string) ([]*ledger.Allocation, error) {
	query := fmt.Sprintf(`
	SELECT * FROM balance_allocations
	WHERE tenant_id = $1 AND %s = $2
	ORDER BY created_at ASC`, column)

	allocations := []*ledger.Allocation{}
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &allocations, query, types.GetTenantID(ctx), id); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list balance allocations").
			Mark(ierr.ErrDatabase)
	}
	return allocations, nil
}
