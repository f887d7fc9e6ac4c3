package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/frappe/press-billing/internal/domain/webhook"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

type InMemoryWebhookEndpointStore struct {
	mu        sync.RWMutex
	endpoints map[string]*webhook.Endpoint
	seq       map[string]int
	nextSeq   int
}

func NewInMemoryWebhookEndpointStore() *InMemoryWebhookEndpointStore {
	return &InMemoryWebhookEndpointStore{
		endpoints: make(map[string]*webhook.Endpoint),
		seq:       make(map[string]int),
	}
}

func (s *InMemoryWebhookEndpointStore) Create(ctx context.Context, e *webhook.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.endpoints[e.ID]; exists {
		return ierr.NewError("webhook endpoint already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	cp := *e
	s.endpoints[e.ID] = &cp
	s.nextSeq++
	s.seq[e.ID] = s.nextSeq
	return nil
}

func (s *InMemoryWebhookEndpointStore) Get(ctx context.Context, id string) (*webhook.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.endpoints[id]
	if !exists || e.TenantID != types.GetTenantID(ctx) || e.Status == types.StatusDeleted {
		return nil, ierr.NewError("webhook endpoint not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (s *InMemoryWebhookEndpointStore) Update(ctx context.Context, e *webhook.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.endpoints[e.ID]; !exists {
		return ierr.NewError("webhook endpoint not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *e
	s.endpoints[e.ID] = &cp
	return nil
}

func (s *InMemoryWebhookEndpointStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.endpoints[id]
	if !exists || e.TenantID != types.GetTenantID(ctx) || e.Status == types.StatusDeleted {
		return ierr.NewError("webhook endpoint not found").
			Mark(ierr.ErrNotFound)
	}
	e.Status = types.StatusDeleted
	return nil
}

func (s *InMemoryWebhookEndpointStore) List(ctx context.Context) ([]*webhook.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*webhook.Endpoint{}
	for _, e := range s.endpoints {
		if e.TenantID != types.GetTenantID(ctx) || e.Status == types.StatusDeleted {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return s.seq[result[i].ID] < s.seq[result[j].ID]
	})
	return result, nil
}

func (s *InMemoryWebhookEndpointStore) ListEnabledForEvent(ctx context.Context, eventName string) ([]*webhook.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*webhook.Endpoint{}
	for _, e := range s.endpoints {
		if e.TenantID != types.GetTenantID(ctx) || e.Status == types.StatusDeleted {
			continue
		}
		if !e.Enabled || !e.Subscribed(eventName) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return s.seq[result[i].ID] < s.seq[result[j].ID]
	})
	return result, nil
}

func (s *InMemoryWebhookEndpointStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints = make(map[string]*webhook.Endpoint)
	s.seq = make(map[string]int)
	s.nextSeq = 0
}

type InMemoryWebhookLogStore struct {
	mu       sync.RWMutex
	logs     map[string]*webhook.Log
	attempts map[string]*webhook.Attempt
	seq      map[string]int
	nextSeq  int
}

func NewInMemoryWebhookLogStore() *InMemoryWebhookLogStore {
	return &InMemoryWebhookLogStore{
		logs:     make(map[string]*webhook.Log),
		attempts: make(map[string]*webhook.Attempt),
		seq:      make(map[string]int),
	}
}

func (s *InMemoryWebhookLogStore) Create(ctx context.Context, l *webhook.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.logs[l.ID]; exists {
		return ierr.NewError("webhook log already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	cp := *l
	s.logs[l.ID] = &cp
	s.nextSeq++
	s.seq[l.ID] = s.nextSeq
	return nil
}

func (s *InMemoryWebhookLogStore) Get(ctx context.Context, id string) (*webhook.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.logs[id]
	if !exists || l.TenantID != types.GetTenantID(ctx) {
		return nil, ierr.NewError("webhook log not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (s *InMemoryWebhookLogStore) Update(ctx context.Context, l *webhook.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.logs[l.ID]; !exists {
		return ierr.NewError("webhook log not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *l
	s.logs[l.ID] = &cp
	return nil
}

func (s *InMemoryWebhookLogStore) ClaimDeliverable(ctx context.Context, now time.Time, limit int) ([]*webhook.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := []*webhook.Log{}
	for _, l := range s.logs {
		if l.Deliverable(now) {
			candidates = append(candidates, l)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return s.seq[candidates[i].ID] < s.seq[candidates[j].ID]
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	claimed := make([]*webhook.Log, 0, len(candidates))
	for _, l := range candidates {
		l.LogStatus = types.WebhookLogStatusQueued
		l.UpdatedAt = now
		cp := *l
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (s *InMemoryWebhookLogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, l := range s.logs {
		if !l.CreatedAt.Before(cutoff) {
			continue
		}
		switch l.LogStatus {
		case types.WebhookLogStatusPending, types.WebhookLogStatusQueued:
			continue
		case types.WebhookLogStatusFailed, types.WebhookLogStatusPartiallySent:
			if l.Retries <= types.WebhookRetryCap {
				continue
			}
		}
		delete(s.logs, id)
		for aid, a := range s.attempts {
			if a.LogID == id {
				delete(s.attempts, aid)
			}
		}
		removed++
	}
	return removed, nil
}

func (s *InMemoryWebhookLogStore) CreateAttempt(ctx context.Context, a *webhook.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.attempts[a.ID] = &cp
	s.nextSeq++
	s.seq[a.ID] = s.nextSeq
	return nil
}

func (s *InMemoryWebhookLogStore) ListAttempts(ctx context.Context, logID string) ([]*webhook.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*webhook.Attempt{}
	for _, a := range s.attempts {
		if a.LogID != logID {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return s.seq[result[i].ID] < s.seq[result[j].ID]
	})
	return result, nil
}

func (s *InMemoryWebhookLogStore) ListAttemptedEndpoints(ctx context.Context, logID string, status types.WebhookAttemptStatus) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Latest attempt per endpoint decides; an endpoint that failed once and
	// then succeeded counts as delivered.
	latest := map[string]*webhook.Attempt{}
	for _, a := range s.attempts {
		if a.LogID != logID {
			continue
		}
		if prev, ok := latest[a.EndpointID]; !ok || s.seq[a.ID] > s.seq[prev.ID] {
			latest[a.EndpointID] = a
		}
	}
	result := []string{}
	for endpointID, a := range latest {
		if a.AttemptStatus == status {
			result = append(result, endpointID)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (s *InMemoryWebhookLogStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = make(map[string]*webhook.Log)
	s.attempts = make(map[string]*webhook.Attempt)
	s.seq = make(map[string]int)
	s.nextSeq = 0
}
