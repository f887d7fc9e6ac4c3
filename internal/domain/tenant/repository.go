package tenant

import "context"

type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id string) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) error
	List(ctx context.Context, filter *Filter) ([]*Tenant, error)
}

// Filter narrows tenant listing for scheduled jobs.
type Filter struct {
	Enabled     *bool
	PaymentMode *string
	Limit       int
	Offset      int
}
