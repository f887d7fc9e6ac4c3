package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/domain/invoice"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/postgres"
	"github.com/frappe/press-billing/internal/types"
)

type invoiceRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewInvoiceRepository(db postgres.IClient, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	query := `
	INSERT INTO invoices (
		id, invoice_number, type, invoice_status, currency, payment_mode,
		period_start, period_end, due_date,
		subtotal, flat_discount, discount_total, total, tax_amount, tax_rate,
		applied_credits, amount_due, amount_due_with_tax, amount_paid, write_off_amount,
		processor_name, processor_invoice_id, processor_payment_intent_id, idempotency_key,
		finalized_at, paid_at, payment_attempts, next_payment_attempt_at,
		last_payment_error, refunded_at, processor_refund_id, budget_alert_sent, metadata,
		tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :invoice_number, :type, :invoice_status, :currency, :payment_mode,
		:period_start, :period_end, :due_date,
		:subtotal, :flat_discount, :discount_total, :total, :tax_amount, :tax_rate,
		:applied_credits, :amount_due, :amount_due_with_tax, :amount_paid, :write_off_amount,
		:processor_name, :processor_invoice_id, :processor_payment_intent_id, :idempotency_key,
		:finalized_at, :paid_at, :payment_attempts, :next_payment_attempt_at,
		:last_payment_error, :refunded_at, :processor_refund_id, :budget_alert_sent, :metadata,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExec(query, inv); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create invoice").
			WithReportableDetails(map[string]interface{}{"invoice_id": inv.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	query := `SELECT * FROM invoices WHERE id = $1 AND tenant_id = $2 AND status <> $3`

	var inv invoice.Invoice
	err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, query, id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("invoice not found").
				WithHint("No invoice exists with the given id").
				WithReportableDetails(map[string]interface{}{"invoice_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch invoice").
			Mark(ierr.ErrDatabase)
	}
	return &inv, nil
}

func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	query := `
	UPDATE invoices SET
		invoice_status = :invoice_status,
		payment_mode = :payment_mode,
		due_date = :due_date,
		subtotal = :subtotal,
		flat_discount = :flat_discount,
		discount_total = :discount_total,
		total = :total,
		tax_amount = :tax_amount,
		tax_rate = :tax_rate,
		applied_credits = :applied_credits,
		amount_due = :amount_due,
		amount_due_with_tax = :amount_due_with_tax,
		amount_paid = :amount_paid,
		write_off_amount = :write_off_amount,
		processor_name = :processor_name,
		processor_invoice_id = :processor_invoice_id,
		processor_payment_intent_id = :processor_payment_intent_id,
		idempotency_key = :idempotency_key,
		finalized_at = :finalized_at,
		paid_at = :paid_at,
		payment_attempts = :payment_attempts,
		next_payment_attempt_at = :next_payment_attempt_at,
		last_payment_error = :last_payment_error,
		refunded_at = :refunded_at,
		processor_refund_id = :processor_refund_id,
		budget_alert_sent = :budget_alert_sent,
		metadata = :metadata,
		status = :status,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id AND tenant_id = :tenant_id`

	res, err := r.db.GetQuerier(ctx).NamedExec(query, inv)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update invoice").
			WithReportableDetails(map[string]interface{}{"invoice_id": inv.ID}).
			Mark(ierr.ErrDatabase)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewError("invoice not found").
			WithHint("No invoice exists with the given id").
			WithReportableDetails(map[string]interface{}{"invoice_id": inv.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *invoiceRepository) List(ctx context.Context, filter *invoice.Filter) ([]*invoice.Invoice, error) {
	query, args := r.buildFilterQuery(ctx, "SELECT *", filter)
	query += " ORDER BY created_at DESC, id DESC"
	if filter != nil {
		query = applyPagination(query, &args, filter.Limit, filter.Offset)
	}

	invoices := []*invoice.Invoice{}
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list invoices").
			Mark(ierr.ErrDatabase)
	}
	return invoices, nil
}

func (r *invoiceRepository) Count(ctx context.Context, filter *invoice.Filter) (int, error) {
	query, args := r.buildFilterQuery(ctx, "SELECT COUNT(*)", filter)

	var count int
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &count, query, args...); err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count invoices").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *invoiceRepository) buildFilterQuery(ctx context.Context, selectClause string, filter *invoice.Filter) (string, []interface{}) {
	query := selectClause + ` FROM invoices WHERE status <> $1`
	args := []interface{}{types.StatusDeleted}

	if filter == nil || !filter.AllTenants {
		args = append(args, types.GetTenantID(ctx))
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}

	if filter != nil {
		if len(filter.Types) > 0 {
			placeholders := make([]string, 0, len(filter.Types))
			for _, t := range filter.Types {
				args = append(args, t)
				placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
			}
			query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ", "))
		}
		if len(filter.Statuses) > 0 {
			placeholders := make([]string, 0, len(filter.Statuses))
			for _, s := range filter.Statuses {
				args = append(args, s)
				placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
			}
			query += fmt.Sprintf(" AND invoice_status IN (%s)", strings.Join(placeholders, ", "))
		}
		if filter.PeriodEndLTE != nil {
			args = append(args, *filter.PeriodEndLTE)
			query += fmt.Sprintf(" AND period_end <= $%d", len(args))
		}
		if filter.DueDateLTE != nil {
			args = append(args, *filter.DueDateLTE)
			query += fmt.Sprintf(" AND due_date <= $%d", len(args))
		}
	}
	return query, args
}

func (r *invoiceRepository) GetDraftForPeriod(ctx context.Context, at time.Time) (*invoice.Invoice, error) {
	query := `
	SELECT * FROM invoices
	WHERE tenant_id = $1
	  AND type = $2
	  AND invoice_status = $3
	  AND status <> $4
	  AND period_start <= $5 AND period_end >= $5
	ORDER BY created_at DESC
	LIMIT 1`

	var inv invoice.Invoice
	err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, query,
		types.GetTenantID(ctx), types.InvoiceTypeSubscription, types.InvoiceStatusDraft, types.StatusDeleted, at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("no draft invoice for period").
				WithHint("No draft subscription invoice covers the given date").
				WithReportableDetails(map[string]interface{}{"at": at}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch draft invoice").
			Mark(ierr.ErrDatabase)
	}
	return &inv, nil
}

func (r *invoiceRepository) ExistsOverlapping(ctx context.Context, periodStart, periodEnd time.Time, excludeID string) (bool, error) {
	query := `
	SELECT EXISTS (
		SELECT 1 FROM invoices
		WHERE tenant_id = $1
		  AND type = $2
		  AND status <> $3
		  AND invoice_status NOT IN ($4, $5, $6)
		  AND id <> $7
		  AND period_start <= $8 AND period_end >= $9
	)`

	var exists bool
	err := r.db.GetQuerier(ctx).GetContext(ctx, &exists, query,
		types.GetTenantID(ctx), types.InvoiceTypeSubscription, types.StatusDeleted,
		types.InvoiceStatusRefunded, types.InvoiceStatusUncollectible, types.InvoiceStatusEmpty,
		excludeID, periodEnd, periodStart)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to check for overlapping invoices").
			Mark(ierr.ErrDatabase)
	}
	return exists, nil
}

func (r *invoiceRepository) GetByProcessorInvoiceID(ctx context.Context, processorInvoiceID string) (*invoice.Invoice, error) {
	query := `SELECT * FROM invoices WHERE processor_invoice_id = $1 AND status <> $2`

	var inv invoice.Invoice
	err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, query, processorInvoiceID, types.StatusDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("invoice not found").
				WithHint("No invoice references the given processor invoice").
				WithReportableDetails(map[string]interface{}{"processor_invoice_id": processorInvoiceID}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch invoice by processor reference").
			Mark(ierr.ErrDatabase)
	}
	return &inv, nil
}

func (r *invoiceRepository) CreateItem(ctx context.Context, item *invoice.InvoiceItem) error {
	query := `
	INSERT INTO invoice_items (
		id, invoice_id, site_id, description, plan, quantity, rate,
		discount_percent, amount, date, "interval", metadata,
		tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :invoice_id, :site_id, :description, :plan, :quantity, :rate,
		:discount_percent, :amount, :date, :interval, :metadata,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExec(query, item); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create invoice item").
			WithReportableDetails(map[string]interface{}{"invoice_id": item.InvoiceID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *invoiceRepository) UpdateItem(ctx context.Context, item *invoice.InvoiceItem) error {
	query := `
	UPDATE invoice_items SET
		description = :description,
		quantity = :quantity,
		rate = :rate,
		discount_percent = :discount_percent,
		amount = :amount,
		metadata = :metadata,
		status = :status,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id AND tenant_id = :tenant_id`

	res, err := r.db.GetQuerier(ctx).NamedExec(query, item)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update invoice item").
			WithReportableDetails(map[string]interface{}{"item_id": item.ID}).
			Mark(ierr.ErrDatabase)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewError("invoice item not found").
			WithHint("No invoice item exists with the given id").
			WithReportableDetails(map[string]interface{}{"item_id": item.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *invoiceRepository) ListItems(ctx context.Context, invoiceID string) ([]*invoice.InvoiceItem, error) {
	query := `
	SELECT * FROM invoice_items
	WHERE invoice_id = $1 AND tenant_id = $2 AND status <> $3
	ORDER BY created_at ASC, id ASC`

	items := []*invoice.InvoiceItem{}
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &items, query, invoiceID, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list invoice items").
			Mark(ierr.ErrDatabase)
	}
	return items, nil
}

func (r *invoiceRepository) GetItemForUsage(ctx context.Context, invoiceID, siteID, plan string, rate decimal.Decimal) (*invoice.InvoiceItem, error) {
	query := `
	SELECT * FROM invoice_items
	WHERE invoice_id = $1 AND site_id = $2 AND plan = $3 AND rate = $4
	  AND tenant_id = $5 AND status <> $6
	LIMIT 1`

	var item invoice.InvoiceItem
	err := r.db.GetQuerier(ctx).GetContext(ctx, &item, query,
		invoiceID, siteID, plan, rate, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("invoice item not found").
				WithHint("No line matches the usage record's site, plan and rate").
				WithReportableDetails(map[string]interface{}{
					"invoice_id": invoiceID,
					"site_id":    siteID,
					"plan":       plan,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch invoice item").
			Mark(ierr.ErrDatabase)
	}
	return &item, nil
}

func (r *invoiceRepository) CreateCreditAllocation(ctx context.Context, ca *invoice.CreditAllocation) error {
	query := `
	INSERT INTO invoice_credit_allocations (
		id, invoice_id, credit_transaction_id, amount, source,
		tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :invoice_id, :credit_transaction_id, :amount, :source,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExec(query, ca); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create credit allocation").
			WithReportableDetails(map[string]interface{}{"invoice_id": ca.InvoiceID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *invoiceRepository) ListCreditAllocations(ctx context.Context, invoiceID string) ([]*invoice.CreditAllocation, error) {
	query := `
	SELECT * FROM invoice_credit_allocations
	WHERE invoice_id = $1 AND tenant_id = $2
	ORDER BY created_at ASC`

	allocations := []*invoice.CreditAllocation{}
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &allocations, query, invoiceID, types.GetTenantID(ctx))
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list credit allocations").
			Mark(ierr.ErrDatabase)
	}
	return allocations, nil
}

func (r *invoiceRepository) AddComment(ctx context.Context, c *invoice.Comment) error {
	query := `
	INSERT INTO invoice_comments (
		id, invoice_id, content,
		tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :invoice_id, :content,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExec(query, c); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to add invoice comment").
			WithReportableDetails(map[string]interface{}{"invoice_id": c.InvoiceID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *invoiceRepository) ListComments(ctx context.Context, invoiceID string) ([]*invoice.Comment, error) {
	query := `
	SELECT * FROM invoice_comments
	WHERE invoice_id = $1 AND tenant_id = $2
	ORDER BY created_at ASC`

	comments := []*invoice.Comment{}
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &comments, query, invoiceID, types.GetTenantID(ctx))
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list invoice comments").
			Mark(ierr.ErrDatabase)
	}
	return comments, nil
}
