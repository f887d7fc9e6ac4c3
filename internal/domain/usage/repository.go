package usage

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, r *Record) error
	List(ctx context.Context, filter *Filter) ([]*Record, error)

	// GetByIdempotencyKey returns the existing record for a key, or a
	// not-found error.
	GetByIdempotencyKey(ctx context.Context, key string) (*Record, error)

	// ListUnlinked returns records not yet attached to any invoice, oldest
	// first, across all tenants when the caller is the system actor.
	ListUnlinked(ctx context.Context, limit int) ([]*Record, error)
}

type Filter struct {
	SiteID    string
	Plan      string
	InvoiceID *string
	DateGTE   *time.Time
	DateLTE   *time.Time
	Limit     int
	Offset    int
}
