package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/frappe/press-billing/internal/domain/webhook"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/postgres"
	"github.com/frappe/press-billing/internal/types"
)

type webhookEndpointRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewWebhookEndpointRepository(db postgres.IClient, logger *logger.Logger) webhook.EndpointRepository {
	return &webhookEndpointRepository{db: db, logger: logger}
}

func (r *webhookEndpointRepository) Create(ctx context.Context, e *webhook.Endpoint) error {
	query := `
	INSERT INTO webhook_endpoints (
		id, url, secret, enabled, events,
		tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :url, :secret, :enabled, :events,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExec(query, e); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create webhook endpoint").
			WithReportableDetails(map[string]interface{}{"endpoint_id": e.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *webhookEndpointRepository) Get(ctx context.Context, id string) (*webhook.Endpoint, error) {
	query := `SELECT * FROM webhook_endpoints WHERE id = $1 AND tenant_id = $2 AND status <> $3`

	var e webhook.Endpoint
	err := r.db.GetQuerier(ctx).GetContext(ctx, &e, query, id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("webhook endpoint not found").
				WithHint("No webhook endpoint exists with the given id").
				WithReportableDetails(map[string]interface{}{"endpoint_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch webhook endpoint").
			Mark(ierr.ErrDatabase)
	}
	return &e, nil
}

func (r *webhookEndpointRepository) Update(ctx context.Context, e *webhook.Endpoint) error {
	query := `
	UPDATE webhook_endpoints SET
		url = :url,
		secret = :secret,
		enabled = :enabled,
		events = :events,
		status = :status,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id AND tenant_id = :tenant_id`

	res, err := r.db.GetQuerier(ctx).NamedExec(query, e)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update webhook endpoint").
			WithReportableDetails(map[string]interface{}{"endpoint_id": e.ID}).
			Mark(ierr.ErrDatabase)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewError("webhook endpoint not found").
			WithHint("No webhook endpoint exists with the given id").
			WithReportableDetails(map[string]interface{}{"endpoint_id": e.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *webhookEndpointRepository) Delete(ctx context.Context, id string) error {
	query := `
	UPDATE webhook_endpoints SET status = $1, updated_at = NOW()
	WHERE id = $2 AND tenant_id = $3`

	res, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, types.StatusDeleted, id, types.GetTenantID(ctx))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete webhook endpoint").
			WithReportableDetails(map[string]interface{}{"endpoint_id": id}).
			Mark(ierr.ErrDatabase)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewError("webhook endpoint not found").
			WithHint("No webhook endpoint exists with the given id").
			WithReportableDetails(map[string]interface{}{"endpoint_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *webhookEndpointRepository) List(ctx context.Context) ([]*webhook.Endpoint, error) {
	query := `
	SELECT * FROM webhook_endpoints
	WHERE tenant_id = $1 AND status <> $2
	ORDER BY created_at ASC`

	endpoints := []*webhook.Endpoint{}
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &endpoints, query, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list webhook endpoints").
			Mark(ierr.ErrDatabase)
	}
	return endpoints, nil
}

// ListEnabledForEvent matches endpoints subscribed to the event. An empty
// events array subscribes the endpoint to everything.
func (r *webhookEndpointRepository) ListEnabledForEvent(ctx context.Context, eventName string) ([]*webhook.Endpoint, error) {
	query := `
	SELECT * FROM webhook_endpoints
	WHERE tenant_id = $1
	  AND status <> $2
	  AND enabled = true
	  AND (events = '[]'::jsonb OR events @> to_jsonb($3::text))
	ORDER BY created_at ASC`

	endpoints := []*webhook.Endpoint{}
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &endpoints, query, types.GetTenantID(ctx), types.StatusDeleted, eventName)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list webhook endpoints for event").
			WithReportableDetails(map[string]interface{}{"event_name": eventName}).
			Mark(ierr.ErrDatabase)
	}
	return endpoints, nil
}

type webhookLogRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewWebhookLogRepository(db postgres.IClient, logger *logger.Logger) webhook.LogRepository {
	return &webhookLogRepository{db: db, logger: logger}
}

func (r *webhookLogRepository) Create(ctx context.Context, l *webhook.Log) error {
	query := `
	INSERT INTO webhook_logs (
		id, event_name, payload, log_status, retries, next_retry_at, last_error,
		tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :event_name, :payload, :log_status, :retries, :next_retry_at, :last_error,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExec(query, l); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create webhook log").
			WithReportableDetails(map[string]interface{}{"event_name": l.EventName}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *webhookLogRepository) Get(ctx context.Context, id string) (*webhook.Log, error) {
	query := `SELECT * FROM webhook_logs WHERE id = $1 AND tenant_id = $2`

	var l webhook.Log
	err := r.db.GetQuerier(ctx).GetContext(ctx, &l, query, id, types.GetTenantID(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("webhook log not found").
				WithHint("No webhook log exists with the given id").
				WithReportableDetails(map[string]interface{}{"log_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch webhook log").
			Mark(ierr.ErrDatabase)
	}
	return &l, nil
}

func (r *webhookLogRepository) Update(ctx context.Context, l *webhook.Log) error {
	query := `
	UPDATE webhook_logs SET
		log_status = :log_status,
		retries = :retries,
		next_retry_at = :next_retry_at,
		last_error = :last_error,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id AND tenant_id = :tenant_id`

	res, err := r.db.GetQuerier(ctx).NamedExec(query, l)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update webhook log").
			WithReportableDetails(map[string]interface{}{"log_id": l.ID}).
			Mark(ierr.ErrDatabase)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewError("webhook log not found").
			WithHint("No webhook log exists with the given id").
			WithReportableDetails(map[string]interface{}{"log_id": l.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

// ClaimDeliverable marks the claimed batch queued in the same statement so
// concurrent dispatchers never pick the same log twice.
func (r *webhookLogRepository) ClaimDeliverable(ctx context.Context, now time.Time, limit int) ([]*webhook.Log, error) {
	query := `
	UPDATE webhook_logs SET log_status = $1, updated_at = $2
	WHERE id IN (
		SELECT id FROM webhook_logs
		WHERE log_status = $3
		   OR (log_status IN ($4, $5) AND retries <= $6 AND next_retry_at <= $2)
		ORDER BY created_at ASC
		LIMIT $7
		FOR UPDATE SKIP LOCKED
	)
	RETURNING *`

	logs := []*webhook.Log{}
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &logs, query,
		types.WebhookLogStatusQueued, now,
		types.WebhookLogStatusPending,
		types.WebhookLogStatusFailed, types.WebhookLogStatusPartiallySent,
		types.WebhookRetryCap, limit)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to claim deliverable webhook logs").
			Mark(ierr.ErrDatabase)
	}
	return logs, nil
}

func (r *webhookLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
	DELETE FROM webhook_logs
	WHERE created_at < $1
	  AND log_status NOT IN ($2, $3)
	  AND NOT (log_status IN ($4, $5) AND retries <= $6)`

	res, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, cutoff,
		types.WebhookLogStatusPending, types.WebhookLogStatusQueued,
		types.WebhookLogStatusFailed, types.WebhookLogStatusPartiallySent,
		types.WebhookRetryCap)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to prune webhook logs").
			Mark(ierr.ErrDatabase)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *webhookLogRepository) CreateAttempt(ctx context.Context, a *webhook.Attempt) error {
	query := `
	INSERT INTO webhook_attempts (
		id, log_id, endpoint_id, attempt_status, response_code, error,
		tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :log_id, :endpoint_id, :attempt_status, :response_code, :error,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExec(query, a); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to record webhook attempt").
			WithReportableDetails(map[string]interface{}{"log_id": a.LogID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *webhookLogRepository) ListAttempts(ctx context.Context, logID string) ([]*webhook.Attempt, error) {
	query := `
	SELECT * FROM webhook_attempts
	WHERE log_id = $1 AND tenant_id = $2
	ORDER BY created_at ASC`

	attempts := []*webhook.Attempt{}
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &attempts, query, logID, types.GetTenantID(ctx))
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list webhook attempts").
			Mark(ierr.ErrDatabase)
	}
	return attempts, nil
}

// ListAttemptedEndpoints considers only each endpoint's most recent attempt,
// so an endpoint that failed once and then succeeded counts as delivered.
func (r *webhookLogRepository) ListAttemptedEndpoints(ctx context.Context, logID string, status types.WebhookAttemptStatus) ([]string, error) {
	query := `
	SELECT endpoint_id FROM (
		SELECT DISTINCT ON (endpoint_id) endpoint_id, attempt_status
		FROM webhook_attempts
		WHERE log_id = $1 AND tenant_id = $2
		ORDER BY endpoint_id, created_at DESC
	) latest
	WHERE attempt_status = $3`

	ids := []string{}
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &ids, query, logID, types.GetTenantID(ctx), status)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list attempted endpoints").
			Mark(ierr.ErrDatabase)
	}
	return ids, nil
}
