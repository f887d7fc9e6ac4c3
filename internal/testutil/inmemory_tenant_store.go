package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/frappe/press-billing/internal/domain/tenant"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

type InMemoryTenantStore struct {
	mu      sync.RWMutex
	tenants map[string]*tenant.Tenant
}

func NewInMemoryTenantStore() *InMemoryTenantStore {
	return &InMemoryTenantStore{
		tenants: make(map[string]*tenant.Tenant),
	}
}

func (s *InMemoryTenantStore) Create(ctx context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[t.ID]; exists {
		return ierr.NewError("tenant already exists").
			Mark(ierr.ErrAlreadyExists)
	}

	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *InMemoryTenantStore) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.tenants[id]
	if !exists || t.Status == types.StatusDeleted {
		return nil, ierr.NewError("tenant not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *InMemoryTenantStore) Update(ctx context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[t.ID]; !exists {
		return ierr.NewError("tenant not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *InMemoryTenantStore) List(ctx context.Context, filter *tenant.Filter) ([]*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*tenant.Tenant{}
	for _, t := range s.tenants {
		if t.Status == types.StatusDeleted {
			continue
		}
		if filter != nil {
			if filter.Enabled != nil && t.Enabled != *filter.Enabled {
				continue
			}
			if filter.PaymentMode != nil && string(t.PaymentMode) != *filter.PaymentMode {
				continue
			}
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter != nil {
		result = applyWindow(result, filter.Limit, filter.Offset)
	}
	return result, nil
}

func (s *InMemoryTenantStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = make(map[string]*tenant.Tenant)
}
