package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/frappe/press-billing/internal/domain/usage"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

type InMemoryUsageStore struct {
	mu      sync.RWMutex
	records map[string]*usage.Record
	seq     map[string]int
	nextSeq int
}

func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{
		records: make(map[string]*usage.Record),
		seq:     make(map[string]int),
	}
}

func (s *InMemoryUsageStore) Create(ctx context.Context, r *usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[r.ID]; exists {
		return ierr.NewError("usage record already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	// Mirror the unique index on (tenant_id, idempotency_key).
	for _, existing := range s.records {
		if existing.TenantID == r.TenantID &&
			existing.Status != types.StatusDeleted &&
			existing.IdempotencyKey == r.IdempotencyKey {
			return ierr.NewError("usage record already exists").
				WithReportableDetails(map[string]any{"idempotency_key": r.IdempotencyKey}).
				Mark(ierr.ErrAlreadyExists)
		}
	}
	cp := *r
	s.records[r.ID] = &cp
	s.nextSeq++
	s.seq[r.ID] = s.nextSeq
	return nil
}

func (s *InMemoryUsageStore) Get(ctx context.Context, id string) (*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.records[id]
	if !exists || r.TenantID != types.GetTenantID(ctx) || r.Status == types.StatusDeleted {
		return nil, ierr.NewError("usage record not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *InMemoryUsageStore) Update(ctx context.Context, r *usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[r.ID]; !exists {
		return ierr.NewError("usage record not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *r
	s.records[r.ID] = &cp
	return nil
}

func (s *InMemoryUsageStore) List(ctx context.Context, filter *usage.Filter) ([]*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*usage.Record{}
	for _, r := range s.records {
		if r.TenantID != types.GetTenantID(ctx) || r.Status == types.StatusDeleted {
			continue
		}
		if filter != nil {
			if filter.SiteID != "" && r.SiteID != filter.SiteID {
				continue
			}
			if filter.Plan != "" && r.Plan != filter.Plan {
				continue
			}
			if filter.InvoiceID != nil && (r.InvoiceID == nil || *r.InvoiceID != *filter.InvoiceID) {
				continue
			}
			if filter.DateGTE != nil && r.Date.Before(*filter.DateGTE) {
				continue
			}
			if filter.DateLTE != nil && r.Date.After(*filter.DateLTE) {
				continue
			}
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return s.seq[result[i].ID] > s.seq[result[j].ID]
	})
	if filter != nil {
		result = applyWindow(result, filter.Limit, filter.Offset)
	}
	return result, nil
}

func (s *InMemoryUsageStore) GetByIdempotencyKey(ctx context.Context, key string) (*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.TenantID != types.GetTenantID(ctx) || r.Status == types.StatusDeleted {
			continue
		}
		if r.IdempotencyKey == key {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ierr.NewError("usage record not found").
		WithReportableDetails(map[string]any{"idempotency_key": key}).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryUsageStore) ListUnlinked(ctx context.Context, limit int) ([]*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*usage.Record{}
	for _, r := range s.records {
		if r.Status == types.StatusDeleted || !r.Submitted || r.IsLinked() {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return s.seq[result[i].ID] < s.seq[result[j].ID]
	})
	return applyWindow(result, limit, 0), nil
}

func (s *InMemoryUsageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*usage.Record)
	s.seq = make(map[string]int)
	s.nextSeq = 0
}
