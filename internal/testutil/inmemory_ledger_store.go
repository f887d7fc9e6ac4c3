package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/domain/ledger"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

type InMemoryLedgerStore struct {
	mu           sync.RWMutex
	transactions map[string]*ledger.BalanceTransaction
	allocations  map[string]*ledger.Allocation
	seq          map[string]int
	nextSeq      int
}

func NewInMemoryLedgerStore() *InMemoryLedgerStore {
	return &InMemoryLedgerStore{
		transactions: make(map[string]*ledger.BalanceTransaction),
		allocations:  make(map[string]*ledger.Allocation),
		seq:          make(map[string]int),
	}
}

func (s *InMemoryLedgerStore) Create(ctx context.Context, bt *ledger.BalanceTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[bt.ID]; exists {
		return ierr.NewError("balance transaction already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	cp := *bt
	s.transactions[bt.ID] = &cp
	s.nextSeq++
	s.seq[bt.ID] = s.nextSeq
	return nil
}

func (s *InMemoryLedgerStore) Get(ctx context.Context, id string) (*ledger.BalanceTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bt, exists := s.transactions[id]
	if !exists || bt.TenantID != types.GetTenantID(ctx) {
		return nil, ierr.NewError("balance transaction not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *bt
	return &cp, nil
}

func (s *InMemoryLedgerStore) Update(ctx context.Context, bt *ledger.BalanceTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[bt.ID]; !exists {
		return ierr.NewError("balance transaction not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *bt
	s.transactions[bt.ID] = &cp
	return nil
}

func (s *InMemoryLedgerStore) List(ctx context.Context, filter *ledger.Filter) ([]*ledger.BalanceTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*ledger.BalanceTransaction{}
	for _, bt := range s.transactions {
		if bt.TenantID != types.GetTenantID(ctx) || bt.Status == types.StatusDeleted {
			continue
		}
		if filter != nil {
			if len(filter.Types) > 0 && !containsType(filter.Types, bt.Type) {
				continue
			}
			if filter.Source != "" && bt.Source != filter.Source {
				continue
			}
			if filter.InvoiceID != nil && (bt.InvoiceID == nil || *bt.InvoiceID != *filter.InvoiceID) {
				continue
			}
			if filter.Reverted != nil && bt.Reverted != *filter.Reverted {
				continue
			}
		}
		cp := *bt
		result = append(result, &cp)
	}
	s.sortNewestFirst(result)
	if filter != nil {
		result = applyWindow(result, filter.Limit, filter.Offset)
	}
	return result, nil
}

func (s *InMemoryLedgerStore) GetLatest(ctx context.Context) (*ledger.BalanceTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *ledger.BalanceTransaction
	for _, bt := range s.transactions {
		if bt.TenantID != types.GetTenantID(ctx) || !bt.Submitted {
			continue
		}
		if latest == nil || s.seq[bt.ID] > s.seq[latest.ID] {
			latest = bt
		}
	}
	if latest == nil {
		return nil, ierr.NewError("ledger is empty").
			Mark(ierr.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (s *InMemoryLedgerStore) ListOpenCredits(ctx context.Context, source types.CreditSource) ([]*ledger.BalanceTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*ledger.BalanceTransaction{}
	for _, bt := range s.transactions {
		if bt.TenantID != types.GetTenantID(ctx) || !bt.Submitted || bt.Reverted {
			continue
		}
		if !bt.Amount.IsPositive() || !bt.UnallocatedAmount.IsPositive() {
			continue
		}
		if source != "" && bt.Source != source {
			continue
		}
		cp := *bt
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return s.seq[result[i].ID] < s.seq[result[j].ID]
	})
	return result, nil
}

func (s *InMemoryLedgerStore) SumUnallocated(ctx context.Context, source types.CreditSource) (decimal.Decimal, error) {
	credits, err := s.ListOpenCredits(ctx, source)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, bt := range credits {
		sum = sum.Add(bt.UnallocatedAmount)
	}
	return sum, nil
}

func (s *InMemoryLedgerStore) CreateAllocation(ctx context.Context, a *ledger.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.allocations[a.ID] = &cp
	s.nextSeq++
	s.seq[a.ID] = s.nextSeq
	return nil
}

func (s *InMemoryLedgerStore) ListAllocationsByDebit(ctx context.Context, debitTransactionID string) ([]*ledger.Allocation, error) {
	return s.listAllocations(ctx, func(a *ledger.Allocation) bool {
		return a.DebitTransactionID == debitTransactionID
	})
}

func (s *InMemoryLedgerStore) ListAllocationsByCredit(ctx context.Context, creditTransactionID string) ([]*ledger.Allocation, error) {
	return s.listAllocations(ctx, func(a *ledger.Allocation) bool {
		return a.CreditTransactionID == creditTransactionID
	})
}

func (s *InMemoryLedgerStore) listAllocations(ctx context.Context, match func(*ledger.Allocation) bool) ([]*ledger.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*ledger.Allocation{}
	for _, a := range s.allocations {
		if a.TenantID != types.GetTenantID(ctx) || !match(a) {
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

func (s *InMemoryLedgerStore) sortNewestFirst(transactions []*ledger.BalanceTransaction) {
	sort.Slice(transactions, func(i, j int) bool {
		return s.seq[transactions[i].ID] > s.seq[transactions[j].ID]
	})
}

func containsType(haystack []types.TransactionType, needle types.TransactionType) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}

func (s *InMemoryLedgerStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = make(map[string]*ledger.BalanceTransaction)
	s.allocations = make(map[string]*ledger.Allocation)
	s.seq = make(map[string]int)
	s.nextSeq = 0
}
