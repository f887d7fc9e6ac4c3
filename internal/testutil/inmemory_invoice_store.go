package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/domain/invoice"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

type InMemoryInvoiceStore struct {
	mu          sync.RWMutex
	invoices    map[string]*invoice.Invoice
	items       map[string]*invoice.InvoiceItem
	allocations map[string]*invoice.CreditAllocation
	comments    map[string]*invoice.Comment
	seq         map[string]int
	nextSeq     int
}

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		invoices:    make(map[string]*invoice.Invoice),
		items:       make(map[string]*invoice.InvoiceItem),
		allocations: make(map[string]*invoice.CreditAllocation),
		comments:    make(map[string]*invoice.Comment),
		seq:         make(map[string]int),
	}
}

func (s *InMemoryInvoiceStore) track(id string) {
	s.nextSeq++
	s.seq[id] = s.nextSeq
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID]; exists {
		return ierr.NewError("invoice already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	cp := *inv
	cp.Items = nil
	cp.Comments = nil
	s.invoices[inv.ID] = &cp
	s.track(inv.ID)
	return nil
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, exists := s.invoices[id]
	if !exists || inv.TenantID != types.GetTenantID(ctx) || inv.Status == types.StatusDeleted {
		return nil, ierr.NewError("invoice not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *inv
	return &cp, nil
}

func (s *InMemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID]; !exists {
		return ierr.NewError("invoice not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *inv
	cp.Items = nil
	cp.Comments = nil
	s.invoices[inv.ID] = &cp
	return nil
}

func (s *InMemoryInvoiceStore) List(ctx context.Context, filter *invoice.Filter) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.filterLocked(ctx, filter)
	sort.Slice(result, func(i, j int) bool {
		return s.seq[result[i].ID] > s.seq[result[j].ID]
	})
	if filter != nil {
		result = applyWindow(result, filter.Limit, filter.Offset)
	}
	return result, nil
}

func (s *InMemoryInvoiceStore) Count(ctx context.Context, filter *invoice.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filterLocked(ctx, filter)), nil
}

func (s *InMemoryInvoiceStore) filterLocked(ctx context.Context, filter *invoice.Filter) []*invoice.Invoice {
	result := []*invoice.Invoice{}
	for _, inv := range s.invoices {
		if inv.Status == types.StatusDeleted {
			continue
		}
		if (filter == nil || !filter.AllTenants) && inv.TenantID != types.GetTenantID(ctx) {
			continue
		}
		if filter != nil {
			if len(filter.Types) > 0 && !containsInvoiceType(filter.Types, inv.Type) {
				continue
			}
			if len(filter.Statuses) > 0 && !containsInvoiceStatus(filter.Statuses, inv.InvoiceStatus) {
				continue
			}
			if filter.PeriodEndLTE != nil && inv.PeriodEnd.After(*filter.PeriodEndLTE) {
				continue
			}
			if filter.DueDateLTE != nil && (inv.DueDate == nil || inv.DueDate.After(*filter.DueDateLTE)) {
				continue
			}
		}
		cp := *inv
		result = append(result, &cp)
	}
	return result
}

func (s *InMemoryInvoiceStore) GetDraftForPeriod(ctx context.Context, at time.Time) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.invoices {
		if inv.TenantID != types.GetTenantID(ctx) || inv.Status == types.StatusDeleted {
			continue
		}
		if inv.Type != types.InvoiceTypeSubscription || inv.InvoiceStatus != types.InvoiceStatusDraft {
			continue
		}
		if !inv.PeriodStart.After(at) && !inv.PeriodEnd.Before(at) {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ierr.NewError("no draft invoice for period").
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryInvoiceStore) ExistsOverlapping(ctx context.Context, periodStart, periodEnd time.Time, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.invoices {
		if inv.TenantID != types.GetTenantID(ctx) || inv.Status == types.StatusDeleted {
			continue
		}
		if inv.Type != types.InvoiceTypeSubscription || inv.ID == excludeID {
			continue
		}
		switch inv.InvoiceStatus {
		case types.InvoiceStatusRefunded, types.InvoiceStatusUncollectible, types.InvoiceStatusEmpty:
			continue
		}
		if !inv.PeriodStart.After(periodEnd) && !inv.PeriodEnd.Before(periodStart) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryInvoiceStore) GetByProcessorInvoiceID(ctx context.Context, processorInvoiceID string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.invoices {
		if inv.Status == types.StatusDeleted {
			continue
		}
		if inv.ProcessorInvoiceID != nil && *inv.ProcessorInvoiceID == processorInvoiceID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ierr.NewError("invoice not found").
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryInvoiceStore) CreateItem(ctx context.Context, item *invoice.InvoiceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *item
	s.items[item.ID] = &cp
	s.track(item.ID)
	return nil
}

func (s *InMemoryInvoiceStore) UpdateItem(ctx context.Context, item *invoice.InvoiceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; !exists {
		return ierr.NewError("invoice item not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *item
	s.items[item.ID] = &cp
	return nil
}

func (s *InMemoryInvoiceStore) ListItems(ctx context.Context, invoiceID string) ([]*invoice.InvoiceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*invoice.InvoiceItem{}
	for _, item := range s.items {
		if item.TenantID != types.GetTenantID(ctx) || item.Status == types.StatusDeleted {
			continue
		}
		if item.InvoiceID != invoiceID {
			continue
		}
		cp := *item
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return s.seq[result[i].ID] < s.seq[result[j].ID]
	})
	return result, nil
}

func (s *InMemoryInvoiceStore) GetItemForUsage(ctx context.Context, invoiceID, siteID, plan string, rate decimal.Decimal) (*invoice.InvoiceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.TenantID != types.GetTenantID(ctx) || item.Status == types.StatusDeleted {
			continue
		}
		if item.InvoiceID != invoiceID || item.SiteID != siteID || item.Plan != plan {
			continue
		}
		if !item.Rate.Equal(rate) {
			continue
		}
		cp := *item
		return &cp, nil
	}
	return nil, ierr.NewError("invoice item not found").
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryInvoiceStore) CreateCreditAllocation(ctx context.Context, ca *invoice.CreditAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ca
	s.allocations[ca.ID] = &cp
	s.track(ca.ID)
	return nil
}

func (s *InMemoryInvoiceStore) ListCreditAllocations(ctx context.Context, invoiceID string) ([]*invoice.CreditAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*invoice.CreditAllocation{}
	for _, ca := range s.allocations {
		if ca.TenantID != types.GetTenantID(ctx) || ca.InvoiceID != invoiceID {
			continue
		}
		cp := *ca
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return s.seq[result[i].ID] < s.seq[result[j].ID]
	})
	return result, nil
}

func (s *InMemoryInvoiceStore) AddComment(ctx context.Context, c *invoice.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.comments[c.ID] = &cp
	s.track(c.ID)
	return nil
}

func (s *InMemoryInvoiceStore) ListComments(ctx context.Context, invoiceID string) ([]*invoice.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*invoice.Comment{}
	for _, c := range s.comments {
		if c.TenantID != types.GetTenantID(ctx) || c.InvoiceID != invoiceID {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return s.seq[result[i].ID] < s.seq[result[j].ID]
	})
	return result, nil
}

func containsInvoiceType(haystack []types.InvoiceType, needle types.InvoiceType) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}

func containsInvoiceStatus(haystack []types.InvoiceStatus, needle types.InvoiceStatus) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func (s *InMemoryInvoiceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = make(map[string]*invoice.Invoice)
	s.items = make(map[string]*invoice.InvoiceItem)
	s.allocations = make(map[string]*invoice.CreditAllocation)
	s.comments = make(map[string]*invoice.Comment)
	s.seq = make(map[string]int)
	s.nextSeq = 0
}
