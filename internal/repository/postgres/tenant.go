package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/frappe/press-billing/internal/domain/tenant"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/postgres"
	"github.com/frappe/press-billing/internal/types"
)

type tenantRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewTenantRepository(db postgres.IClient, logger *logger.Logger) tenant.Repository {
	return &tenantRepository{db: db, logger: logger}
}

func (r *tenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	query := `
	INSERT INTO tenants (
		id, name, email, currency, payment_mode, default_payment_method,
		processor_customer_ids, billing_address_id, enabled, currency_locked,
		budget_alert_threshold, flat_discount,
		tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :name, :email, :currency, :payment_mode, :default_payment_method,
		:processor_customer_ids, :billing_address_id, :enabled, :currency_locked,
		:budget_alert_threshold, :flat_discount,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExec(query, t); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create tenant").
			WithReportableDetails(map[string]interface{}{"tenant_id": t.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *tenantRepository) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	query := `SELECT * FROM tenants WHERE id = $1 AND status <> $2`

	var t tenant.Tenant
	err := r.db.GetQuerier(ctx).GetContext(ctx, &t, query, id, types.StatusDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("tenant not found").
				WithHint("No tenant exists with the given id").
				WithReportableDetails(map[string]interface{}{"tenant_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch tenant").
			Mark(ierr.ErrDatabase)
	}
	return &t, nil
}

func (r *tenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	query := `
	UPDATE tenants SET
		name = :name,
		email = :email,
		currency = :currency,
		payment_mode = :payment_mode,
		default_payment_method = :default_payment_method,
		processor_customer_ids = :processor_customer_ids,
		billing_address_id = :billing_address_id,
		enabled = :enabled,
		currency_locked = :currency_locked,
		budget_alert_threshold = :budget_alert_threshold,
		flat_discount = :flat_discount,
		status = :status,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id`

	res, err := r.db.GetQuerier(ctx).NamedExec(query, t)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update tenant").
			WithReportableDetails(map[string]interface{}{"tenant_id": t.ID}).
			Mark(ierr.ErrDatabase)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewError("tenant not found").
			WithHint("No tenant exists with the given id").
			WithReportableDetails(map[string]interface{}{"tenant_id": t.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *tenantRepository) List(ctx context.Context, filter *tenant.Filter) ([]*tenant.Tenant, error) {
	query := `SELECT * FROM tenants WHERE status <> $1`
	args := []interface{}{types.StatusDeleted}

	if filter != nil {
		if filter.Enabled != nil {
			args = append(args, *filter.Enabled)
			query += fmt.Sprintf(" AND enabled = $%d", len(args))
		}
		if filter.PaymentMode != nil {
			args = append(args, *filter.PaymentMode)
			query += fmt.Sprintf(" AND payment_mode = $%d", len(args))
		}
	}

	query += " ORDER BY created_at ASC"
	if filter != nil {
		query = applyPagination(query, &args, filter.Limit, filter.Offset)
	}

	tenants := []*tenant.Tenant{}
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &tenants, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list tenants").
			Mark(ierr.ErrDatabase)
	}
	return tenants, nil
}
