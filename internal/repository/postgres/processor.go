package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/frappe/press-billing/internal/domain/processor"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/postgres"
)

type processorEventRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewProcessorEventRepository(db postgres.IClient, logger *logger.Logger) processor.EventRepository {
	return &processorEventRepository{db: db, logger: logger}
}

func (r *processorEventRepository) Create(ctx context.Context, e *processor.Event) error {
	query := `
	INSERT INTO processor_events (
		id, processor_name, processor_event_id, event_type, processor_invoice_id,
		payment_intent_id, charge_id, customer_id, amount_cents, currency,
		failure_message, payload, occurred_at, processed, processing_error,
		tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :processor_name, :processor_event_id, :event_type, :processor_invoice_id,
		:payment_intent_id, :charge_id, :customer_id, :amount_cents, :currency,
		:failure_message, :payload, :occurred_at, :processed, :processing_error,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExec(query, e); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("The processor event was already recorded").
				WithReportableDetails(map[string]interface{}{"processor_event_id": e.ProcessorEventID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to store processor event").
			WithReportableDetails(map[string]interface{}{"processor_event_id": e.ProcessorEventID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *processorEventRepository) Get(ctx context.Context, id string) (*processor.Event, error) {
	query := `SELECT * FROM processor_events WHERE id = $1`

	var e processor.Event
	err := r.db.GetQuerier(ctx).GetContext(ctx, &e, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("processor event not found").
				WithHint("No processor event exists with the given id").
				WithReportableDetails(map[string]interface{}{"event_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch processor event").
			Mark(ierr.ErrDatabase)
	}
	return &e, nil
}

func (r *processorEventRepository) Update(ctx context.Context, e *processor.Event) error {
	query := `
	UPDATE processor_events SET
		tenant_id = :tenant_id,
		processed = :processed,
		processing_error = :processing_error,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id`

	res, err := r.db.GetQuerier(ctx).NamedExec(query, e)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update processor event").
			WithReportableDetails(map[string]interface{}{"event_id": e.ID}).
			Mark(ierr.ErrDatabase)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewError("processor event not found").
			WithHint("No processor event exists with the given id").
			WithReportableDetails(map[string]interface{}{"event_id": e.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *processorEventRepository) GetByProcessorEventID(ctx context.Context, processorEventID string) (*processor.Event, error) {
	query := `SELECT * FROM processor_events WHERE processor_event_id = $1 LIMIT 1`

	var e processor.Event
	err := r.db.GetQuerier(ctx).GetContext(ctx, &e, query, processorEventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("processor event not found").
				WithHint("No processor event exists with the given external id").
				WithReportableDetails(map[string]interface{}{"processor_event_id": processorEventID}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch processor event by external id").
			Mark(ierr.ErrDatabase)
	}
	return &e, nil
}
