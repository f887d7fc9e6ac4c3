package service

import (
	"testing"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/frappe/press-billing/internal/api/dto"
	"github.com/frappe/press-billing/internal/domain/ledger"
	"github.com/frappe/press-billing/internal/domain/tenant"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/testutil"
	"github.com/frappe/press-billing/internal/types"
)

type LedgerServiceSuite struct {
	testutil.BaseServiceTestSuite
	service LedgerService
}

func TestLedgerService(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewLedgerService(newTestParams(&s.BaseServiceTestSuite))
	s.seedTenant()
}

func (s *LedgerServiceSuite) seedTenant() {
	t := &tenant.Tenant{
		ID:          types.DefaultTenantID,
		Name:        "Test Tenant",
		Email:       "billing@example.com",
		Currency:    "INR",
		PaymentMode: types.PaymentModePrepaidCredits,
		Enabled:     true,
		BaseModel:   types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().TenantRepo.Create(s.GetContext(), t))
}

func (s *LedgerServiceSuite) allocate(amount string, source types.CreditSource) *dto.BalanceTransactionResponse {
	resp, err := s.service.AllocateCredit(s.GetContext(), &dto.AllocateCreditRequest{
		Amount: decimal.RequireFromString(amount),
		Source: source,
	})
	s.NoError(err)
	return resp
}

func (s *LedgerServiceSuite) TestAllocateCreditRunsBalanceForward() {
	first := s.allocate("100", types.CreditSourcePrepaid)
	s.True(first.EndingBalance.Equal(decimal.NewFromInt(100)))
	s.True(first.UnallocatedAmount.Equal(decimal.NewFromInt(100)))

	second := s.allocate("50", types.CreditSourceFree)
	s.True(second.EndingBalance.Equal(decimal.NewFromInt(150)))

	balance, err := s.service.GetBalance(s.GetContext())
	s.NoError(err)
	s.True(balance.Equal(decimal.NewFromInt(150)))
}

func (s *LedgerServiceSuite) TestDebitConsumesCreditsOldestFirst() {
	first := s.allocate("60", types.CreditSourcePrepaid)
	second := s.allocate("50", types.CreditSourcePrepaid)

	debit, err := s.service.AllocateCredit(s.GetContext(), &dto.AllocateCreditRequest{
		Amount: decimal.NewFromInt(-80),
	})
	s.NoError(err)
	s.True(debit.EndingBalance.Equal(decimal.NewFromInt(30)))

	// Oldest credit fully drained, newer one partially
	oldest, err := s.GetStores().LedgerRepo.Get(s.GetContext(), first.ID)
	s.NoError(err)
	s.True(oldest.UnallocatedAmount.IsZero())

	newer, err := s.GetStores().LedgerRepo.Get(s.GetContext(), second.ID)
	s.NoError(err)
	s.True(newer.UnallocatedAmount.Equal(decimal.NewFromInt(30)))

	allocations, err := s.GetStores().LedgerRepo.ListAllocationsByDebit(s.GetContext(), debit.ID)
	s.NoError(err)
	s.Len(allocations, 2)
	s.True(allocations[0].Amount.Equal(decimal.NewFromInt(60)))
	s.True(allocations[1].Amount.Equal(decimal.NewFromInt(20)))
}

func (s *LedgerServiceSuite) TestDebitBeyondBalanceFailsAtomically() {
	s.allocate("40", types.CreditSourcePrepaid)

	_, err := s.service.AllocateCredit(s.GetContext(), &dto.AllocateCreditRequest{
		Amount: decimal.NewFromInt(-100),
	})
	s.Error(err)
	s.True(ierr.IsInsufficientBalance(err))

	// Balance untouched after the failed debit
	balance, err := s.service.GetBalance(s.GetContext())
	s.NoError(err)
	s.True(balance.Equal(decimal.NewFromInt(40)))
}

// seedNegativeBalance plants a submitted debit row directly, the way an
// imported legacy ledger can leave the running balance below zero.
func (s *LedgerServiceSuite) seedNegativeBalance(amount string) {
	owed := decimal.RequireFromString(amount)
	s.NoError(s.GetStores().LedgerRepo.Create(s.GetContext(), &ledger.BalanceTransaction{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BALANCE_TRANSACTION),
		Type:          types.TransactionTypeAdjustment,
		Source:        types.CreditSourceFree,
		Amount:        owed.Neg(),
		EndingBalance: owed.Neg(),
		Currency:      "INR",
		Description:   "imported opening debit",
		Submitted:     true,
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}))
}

func (s *LedgerServiceSuite) TestCreditSettlesNegativeBalanceFirst() {
	s.seedNegativeBalance("50")

	grant := s.allocate("80", types.CreditSourcePrepaid)
	s.True(grant.EndingBalance.Equal(decimal.NewFromInt(30)))
	// Only the remainder past the settled debt stays consumable.
	s.True(grant.UnallocatedAmount.Equal(decimal.NewFromInt(30)))
}

func (s *LedgerServiceSuite) TestCreditSmallerThanDebtLeavesNothingOpen() {
	s.seedNegativeBalance("50")

	grant := s.allocate("30", types.CreditSourcePrepaid)
	s.True(grant.EndingBalance.Equal(decimal.NewFromInt(-20)))
	s.True(grant.UnallocatedAmount.IsZero())
}

func (s *LedgerServiceSuite) TestZeroAmountRejected() {
	_, err := s.service.AllocateCredit(s.GetContext(), &dto.AllocateCreditRequest{
		Amount: decimal.Zero,
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *LedgerServiceSuite) TestReverseCreditAppendsCompensatingDebit() {
	grant := s.allocate("100", types.CreditSourcePrepaid)

	reversal, err := s.service.ReverseTransaction(s.GetContext(), grant.ID, "granted in error")
	s.NoError(err)
	s.True(reversal.Amount.Equal(decimal.NewFromInt(-100)))
	s.True(reversal.EndingBalance.IsZero())
	s.Equal(grant.ID, lo.FromPtr(reversal.ReversedTransactionID))

	original, err := s.GetStores().LedgerRepo.Get(s.GetContext(), grant.ID)
	s.NoError(err)
	s.True(original.Reverted)
	// The original amount is never rewritten
	s.True(original.Amount.Equal(decimal.NewFromInt(100)))
}

func (s *LedgerServiceSuite) TestReverseTwiceRejected() {
	grant := s.allocate("25", types.CreditSourceFree)

	_, err := s.service.ReverseTransaction(s.GetContext(), grant.ID, "")
	s.NoError(err)

	_, err = s.service.ReverseTransaction(s.GetContext(), grant.ID, "")
	s.Error(err)
	s.True(ierr.IsInvalidState(err))
}

func (s *LedgerServiceSuite) TestListTransactionsNewestFirst() {
	s.allocate("10", types.CreditSourcePrepaid)
	s.allocate("20", types.CreditSourcePrepaid)

	resp, err := s.service.ListTransactions(s.GetContext(), &ledger.Filter{})
	s.NoError(err)
	s.Equal(2, resp.Total)
	s.True(resp.Items[0].Amount.Equal(decimal.NewFromInt(20)))
	s.True(resp.Items[1].Amount.Equal(decimal.NewFromInt(10)))
}

func (s *LedgerServiceSuite) TestBalanceEmptyLedgerIsZero() {
	balance, err := s.service.GetBalance(s.GetContext())
	s.NoError(err)
	s.True(balance.IsZero())
}
