package processor

import "context"

// EventRepository persists inbound processor events for dedup and audit.
type EventRepository interface {
	Create(ctx context.Context, e *Event) error
	Get(ctx context.Context, id string) (*Event, error)
	Update(ctx context.Context, e *Event) error

	// GetByProcessorEventID returns the stored event for an external event
	// id, or a not-found error. Repeat deliveries resolve here and stop.
	GetByProcessorEventID(ctx context.Context, processorEventID string) (*Event, error)
}
