package webhook

import (
	"context"
	"time"

	"github.com/frappe/press-billing/internal/types"
)

type EndpointRepository interface {
	Create(ctx context.Context, e *Endpoint) error
	Get(ctx context.Context, id string) (*Endpoint, error)
	Update(ctx context.Context, e *Endpoint) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Endpoint, error)

	// ListEnabledForEvent returns the tenant's enabled endpoints subscribed
	// to the event.
	ListEnabledForEvent(ctx context.Context, eventName string) ([]*Endpoint, error)
}

type LogRepository interface {
	Create(ctx context.Context, l *Log) error
	Get(ctx context.Context, id string) (*Log, error)
	Update(ctx context.Context, l *Log) error

	// ClaimDeliverable atomically selects up to limit deliverable logs across
	// all tenants and marks them queued so concurrent dispatchers never pick
	// the same log twice.
	ClaimDeliverable(ctx context.Context, now time.Time, limit int) ([]*Log, error)

	// DeleteOlderThan prunes completed logs past the retention window and
	// returns the number removed. Logs still awaiting a retry are kept.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	CreateAttempt(ctx context.Context, a *Attempt) error
	ListAttempts(ctx context.Context, logID string) ([]*Attempt, error)

	// ListAttemptedEndpoints returns the endpoint ids already delivered for a
	// log, so retries skip them.
	ListAttemptedEndpoints(ctx context.Context, logID string, status types.WebhookAttemptStatus) ([]string, error)
}
