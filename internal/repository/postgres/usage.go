package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/frappe/press-billing/internal/domain/usage"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/postgres"
	"github.com/frappe/press-billing/internal/types"
)

type usageRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewUsageRepository(db postgres.IClient, logger *logger.Logger) usage.Repository {
	return &usageRepository{db: db, logger: logger}
}

func (r *usageRepository) Create(ctx context.Context, record *usage.Record) error {
	query := `
	INSERT INTO usage_records (
		id, site_id, plan, "interval", date, quantity, rate, amount, currency,
		idempotency_key, submitted, invoice_id, invoice_item_id, metadata,
		tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :site_id, :plan, :interval, :date, :quantity, :rate, :amount, :currency,
		:idempotency_key, :submitted, :invoice_id, :invoice_item_id, :metadata,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExec(query, record); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create usage record").
			WithReportableDetails(map[string]interface{}{
				"site_id": record.SiteID,
				"plan":    record.Plan,
			}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *usageRepository) Get(ctx context.Context, id string) (*usage.Record, error) {
	query := `SELECT * FROM usage_records WHERE id = $1 AND tenant_id = $2 AND status <> $3`

	var record usage.Record
	err := r.db.GetQuerier(ctx).GetContext(ctx, &record, query, id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("usage record not found").
				WithHint("No usage record exists with the given id").
				WithReportableDetails(map[string]interface{}{"usage_record_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch usage record").
			Mark(ierr.ErrDatabase)
	}
	return &record, nil
}

func (r *usageRepository) Update(ctx context.Context, record *usage.Record) error {
	query := `
	UPDATE usage_records SET
		quantity = :quantity,
		rate = :rate,
		amount = :amount,
		submitted = :submitted,
		invoice_id = :invoice_id,
		invoice_item_id = :invoice_item_id,
		metadata = :metadata,
		status = :status,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id AND tenant_id = :tenant_id`

	res, err := r.db.GetQuerier(ctx).NamedExec(query, record)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update usage record").
			WithReportableDetails(map[string]interface{}{"usage_record_id": record.ID}).
			Mark(ierr.ErrDatabase)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewError("usage record not found").
			WithHint("No usage record exists with the given id").
			WithReportableDetails(map[string]interface{}{"usage_record_id": record.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *usageRepository) List(ctx context.Context, filter *usage.Filter) ([]*usage.Record, error) {
	query := `SELECT * FROM usage_records WHERE tenant_id = $1 AND status <> $2`
	args := []interface{}{types.GetTenantID(ctx), types.StatusDeleted}

	if filter != nil {
		if filter.SiteID != "" {
			args = append(args, filter.SiteID)
			query += fmt.Sprintf(" AND site_id = $%d", len(args))
		}
		if filter.Plan != "" {
			args = append(args, filter.Plan)
			query += fmt.Sprintf(" AND plan = $%d", len(args))
		}
		if filter.InvoiceID != nil {
			args = append(args, *filter.InvoiceID)
			query += fmt.Sprintf(" AND invoice_id = $%d", len(args))
		}
		if filter.DateGTE != nil {
			args = append(args, *filter.DateGTE)
			query += fmt.Sprintf(" AND date >= $%d", len(args))
		}
		if filter.DateLTE != nil {
			args = append(args, *filter.DateLTE)
			query += fmt.Sprintf(" AND date <= $%d", len(args))
		}
	}

	query += " ORDER BY date DESC, created_at DESC"
	if filter != nil {
		query = applyPagination(query, &args, filter.Limit, filter.Offset)
	}

	records := []*usage.Record{}
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &records, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list usage records").
			Mark(ierr.ErrDatabase)
	}
	return records, nil
}

func (r *usageRepository) GetByIdempotencyKey(ctx context.Context, key string) (*usage.Record, error) {
	query := `
	SELECT * FROM usage_records
	WHERE idempotency_key = $1 AND tenant_id = $2 AND status <> $3
	LIMIT 1`

	var record usage.Record
	err := r.db.GetQuerier(ctx).GetContext(ctx, &record, query, key, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("usage record not found").
				WithHint("No usage record exists with the given idempotency key").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch usage record by idempotency key").
			Mark(ierr.ErrDatabase)
	}
	return &record, nil
}

func (r *usageRepository) ListUnlinked(ctx context.Context, limit int) ([]*usage.Record, error) {
	query := `
	SELECT * FROM usage_records
	WHERE submitted = true AND invoice_id IS NULL AND status <> $1
	ORDER BY date ASC, created_at ASC`
	args := []interface{}{types.StatusDeleted}
	query = applyPagination(query, &args, limit, 0)

	records := []*usage.Record{}
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &records, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list unlinked usage records").
			Mark(ierr.ErrDatabase)
	}
	return records, nil
}
