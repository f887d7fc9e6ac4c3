package testutil

import (
	"context"
	"sync"

	"github.com/frappe/press-billing/internal/domain/processor"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

type InMemoryProcessorEventStore struct {
	mu     sync.RWMutex
	events map[string]*processor.Event
}

func NewInMemoryProcessorEventStore() *InMemoryProcessorEventStore {
	return &InMemoryProcessorEventStore{
		events: make(map[string]*processor.Event),
	}
}

func (s *InMemoryProcessorEventStore) Create(ctx context.Context, e *processor.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[e.ID]; exists {
		return ierr.NewError("processor event already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	// Mirror the unique index on processor_event_id.
	for _, existing := range s.events {
		if existing.ProcessorEventID == e.ProcessorEventID {
			return ierr.NewError("processor event already recorded").
				WithReportableDetails(map[string]any{"processor_event_id": e.ProcessorEventID}).
				Mark(ierr.ErrAlreadyExists)
		}
	}
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *InMemoryProcessorEventStore) Get(ctx context.Context, id string) (*processor.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.events[id]
	if !exists || e.Status == types.StatusDeleted {
		return nil, ierr.NewError("processor event not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (s *InMemoryProcessorEventStore) Update(ctx context.Context, e *processor.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.events[e.ID]
	if !exists {
		return ierr.NewError("processor event not found").
			Mark(ierr.ErrNotFound)
	}
	stored.TenantID = e.TenantID
	stored.Processed = e.Processed
	stored.ProcessingError = e.ProcessingError
	stored.UpdatedAt = e.UpdatedAt
	stored.UpdatedBy = e.UpdatedBy
	return nil
}

func (s *InMemoryProcessorEventStore) GetByProcessorEventID(ctx context.Context, processorEventID string) (*processor.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.events {
		if e.ProcessorEventID == processorEventID && e.Status != types.StatusDeleted {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ierr.NewError("processor event not found").
		WithReportableDetails(map[string]any{"processor_event_id": processorEventID}).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryProcessorEventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string]*processor.Event)
}
