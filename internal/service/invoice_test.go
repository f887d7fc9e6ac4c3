package service

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/frappe/press-billing/internal/api/dto"
	"github.com/frappe/press-billing/internal/domain/processor"
	"github.com/frappe/press-billing/internal/domain/tenant"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/testutil"
	"github.com/frappe/press-billing/internal/types"
)

type InvoiceServiceSuite struct {
	testutil.BaseServiceTestSuite
	service InvoiceService
	ledger  LedgerService
}

func TestInvoiceService(t *testing.T) {
	suite.Run(t, new(InvoiceServiceSuite))
}

func (s *InvoiceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestParams(&s.BaseServiceTestSuite)
	s.service = NewInvoiceService(params)
	s.ledger = NewLedgerService(params)
}

func (s *InvoiceServiceSuite) seedTenant(mode types.PaymentMode) *tenant.Tenant {
	t := &tenant.Tenant{
		ID:          types.DefaultTenantID,
		Name:        "Test Tenant",
		Email:       "billing@example.com",
		Currency:    "INR",
		PaymentMode: mode,
		Enabled:     true,
		BaseModel:   types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().TenantRepo.Create(s.GetContext(), t))
	return t
}

func (s *InvoiceServiceSuite) credit(amount string) {
	_, err := s.ledger.AllocateCredit(s.GetContext(), &dto.AllocateCreditRequest{
		Amount: decimal.RequireFromString(amount),
		Source: types.CreditSourcePrepaid,
	})
	s.NoError(err)
}

// newDraft opens a March 2026 subscription invoice with a single line.
func (s *InvoiceServiceSuite) newDraft(quantity, rate string) *dto.InvoiceResponse {
	resp, err := s.service.CreateInvoice(s.GetContext(), &dto.CreateInvoiceRequest{
		Type:        types.InvoiceTypeSubscription,
		PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Items: []dto.CreateInvoiceItemRequest{{
			SiteID:   "site-alpha",
			Plan:     "basic-10",
			Quantity: decimal.RequireFromString(quantity),
			Rate:     decimal.RequireFromString(rate),
		}},
	})
	s.NoError(err)
	return resp
}

func (s *InvoiceServiceSuite) TestFinalizeSettledFullyByCredits() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	s.credit("500")
	draft := s.newDraft("10", "30")

	resp, err := s.service.FinalizeInvoice(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, resp.InvoiceStatus)
	s.True(resp.Subtotal.Equal(decimal.NewFromInt(300)))
	s.True(resp.AppliedCredits.Equal(decimal.NewFromInt(300)))
	s.True(resp.AmountDue.IsZero())
	s.NotNil(resp.PaidAt)
	s.NotNil(resp.FinalizedAt)
	// Prepaid-credit tenants are never taxed.
	s.True(resp.TaxAmount.IsZero())

	balance, err := s.ledger.GetBalance(s.GetContext())
	s.NoError(err)
	s.True(balance.Equal(decimal.NewFromInt(200)))

	allocations, err := s.GetStores().InvoiceRepo.ListCreditAllocations(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Len(allocations, 1)
	s.True(allocations[0].Amount.Equal(decimal.NewFromInt(300)))
}

func (s *InvoiceServiceSuite) TestFinalizeWithoutLinesLandsEmpty() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	resp, err := s.service.CreateInvoice(s.GetContext(), &dto.CreateInvoiceRequest{
		Type:        types.InvoiceTypeSubscription,
		PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	s.NoError(err)

	finalized, err := s.service.FinalizeInvoice(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusEmpty, finalized.InvoiceStatus)
}

func (s *InvoiceServiceSuite) TestFinalizeInsufficientCreditsLeavesUnpaid() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	s.credit("100")
	draft := s.newDraft("10", "30")

	resp, err := s.service.FinalizeInvoice(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusUnpaid, resp.InvoiceStatus)
	s.True(resp.AppliedCredits.Equal(decimal.NewFromInt(100)))
	s.True(resp.AmountDue.Equal(decimal.NewFromInt(200)))
	s.Nil(resp.PaidAt)

	comments, err := s.GetStores().InvoiceRepo.ListComments(s.GetContext(), draft.ID)
	s.NoError(err)
	s.NotEmpty(comments)
}

func (s *InvoiceServiceSuite) TestFinalizeRerunAllocatesOnlyTheRemainder() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	s.credit("100")
	draft := s.newDraft("10", "30")

	first, err := s.service.FinalizeInvoice(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusUnpaid, first.InvoiceStatus)

	// A later top-up settles the remainder without re-consuming the first 100.
	s.credit("200")
	second, err := s.service.FinalizeInvoice(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, second.InvoiceStatus)
	s.True(second.AppliedCredits.Equal(decimal.NewFromInt(300)))
	s.True(second.AmountDue.IsZero())

	allocations, err := s.GetStores().InvoiceRepo.ListCreditAllocations(s.GetContext(), draft.ID)
	s.NoError(err)
	total := decimal.Zero
	for _, ca := range allocations {
		total = total.Add(ca.Amount)
	}
	s.True(total.Equal(decimal.NewFromInt(300)))

	balance, err := s.ledger.GetBalance(s.GetContext())
	s.NoError(err)
	s.True(balance.IsZero())
}

func (s *InvoiceServiceSuite) TestFinalizeOnPaidInvoiceIsNoOp() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	s.credit("500")
	draft := s.newDraft("10", "30")

	_, err := s.service.FinalizeInvoice(s.GetContext(), draft.ID)
	s.NoError(err)

	again, err := s.service.FinalizeInvoice(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, again.InvoiceStatus)

	// No second allocation pass ran.
	balance, err := s.ledger.GetBalance(s.GetContext())
	s.NoError(err)
	s.True(balance.Equal(decimal.NewFromInt(200)))
}

func (s *InvoiceServiceSuite) TestFinalizeCardTenantMirrorsToProcessor() {
	t := s.seedTenant(types.PaymentModeCard)
	draft := s.newDraft("10", "30")

	resp, err := s.service.FinalizeInvoice(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusCreated, resp.InvoiceStatus)
	s.NotNil(resp.ProcessorInvoiceID)
	s.NotNil(resp.IdempotencyKey)

	// 18% GST on the uncovered INR remainder.
	s.True(resp.TaxAmount.Equal(decimal.NewFromInt(54)))
	s.True(resp.AmountDueWithTax.Equal(decimal.NewFromInt(354)))

	proc := s.GetPaymentProcessor()
	s.Len(proc.CreatedInvoices, 1)
	s.Equal(int64(35400), proc.CreatedInvoices[0].AmountCents)
	s.Equal("INR", proc.CreatedInvoices[0].Currency)
	s.Len(proc.FinalizedIDs, 1)

	// The processor customer id sticks to the tenant.
	stored, err := s.GetStores().TenantRepo.Get(s.GetContext(), t.ID)
	s.NoError(err)
	s.Equal("cus_mock_"+t.ID, stored.ProcessorCustomerID(types.ProcessorStripe))
}

func (s *InvoiceServiceSuite) TestFinalizePicksUpOutOfBandSettlement() {
	s.seedTenant(types.PaymentModeCard)
	draft := s.newDraft("10", "30")

	procInvoiceID := "in_mock_settled"
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), draft.ID)
	s.NoError(err)
	inv.ProcessorInvoiceID = &procInvoiceID
	s.NoError(s.GetStores().InvoiceRepo.Update(s.GetContext(), inv))

	s.GetPaymentProcessor().RetrieveInvoiceFn = func(_ context.Context, id string) (*processor.InvoiceResult, error) {
		return &processor.InvoiceResult{
			ProcessorInvoiceID: id,
			Status:             types.ProcessorInvoiceStatusPaid,
		}, nil
	}

	resp, err := s.service.FinalizeInvoice(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, resp.InvoiceStatus)
	// No new processor invoice was opened.
	s.Empty(s.GetPaymentProcessor().CreatedInvoices)
}

func (s *InvoiceServiceSuite) TestFinalizeWritesOffTinyResidual() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	s.credit("300")
	draft := s.newDraft("1", "300.05")

	resp, err := s.service.FinalizeInvoice(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, resp.InvoiceStatus)
	s.True(resp.WriteOffAmount.Equal(decimal.RequireFromString("0.05")))
	s.True(resp.AmountDue.IsZero())
}

func (s *InvoiceServiceSuite) TestFinalizeSkippedForDisabledTenant() {
	t := s.seedTenant(types.PaymentModePrepaidCredits)
	draft := s.newDraft("10", "30")

	t.Enabled = false
	s.NoError(s.GetStores().TenantRepo.Update(s.GetContext(), t))

	resp, err := s.service.FinalizeInvoice(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusDraft, resp.InvoiceStatus)

	comments, err := s.GetStores().InvoiceRepo.ListComments(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Len(comments, 1)
}

func (s *InvoiceServiceSuite) TestItemDiscountReducesTotal() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	s.credit("500")

	resp, err := s.service.CreateInvoice(s.GetContext(), &dto.CreateInvoiceRequest{
		Type:        types.InvoiceTypeSubscription,
		PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Items: []dto.CreateInvoiceItemRequest{{
			SiteID:          "site-alpha",
			Plan:            "basic-10",
			Quantity:        decimal.NewFromInt(10),
			Rate:            decimal.NewFromInt(30),
			DiscountPercent: decimal.NewFromInt(10),
		}},
	})
	s.NoError(err)

	finalized, err := s.service.FinalizeInvoice(s.GetContext(), resp.ID)
	s.NoError(err)
	s.True(finalized.Subtotal.Equal(decimal.NewFromInt(300)))
	s.True(finalized.DiscountTotal.Equal(decimal.NewFromInt(30)))
	s.True(finalized.Total.Equal(decimal.NewFromInt(270)))
	s.True(finalized.AppliedCredits.Equal(decimal.NewFromInt(270)))
}

func (s *InvoiceServiceSuite) TestOverlappingSubscriptionPeriodRejected() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	s.newDraft("1", "10")

	_, err := s.service.CreateInvoice(s.GetContext(), &dto.CreateInvoiceRequest{
		Type:        types.InvoiceTypeSubscription,
		PeriodStart: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC),
	})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *InvoiceServiceSuite) TestConsumeCreditsSettlesCoveredInvoice() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	s.credit("500")
	draft := s.newDraft("10", "30")

	resp, err := s.service.ConsumeCreditsAndMarkPaid(s.GetContext(), draft.ID, "settled manually")
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, resp.InvoiceStatus)
	s.True(resp.AppliedCredits.Equal(decimal.NewFromInt(300)))

	balance, err := s.ledger.GetBalance(s.GetContext())
	s.NoError(err)
	s.True(balance.Equal(decimal.NewFromInt(200)))
}

func (s *InvoiceServiceSuite) TestConsumeCreditsFailsWhenShort() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	s.credit("100")
	draft := s.newDraft("10", "30")

	_, err := s.service.ConsumeCreditsAndMarkPaid(s.GetContext(), draft.ID, "")
	s.Error(err)
	s.True(ierr.IsInsufficientBalance(err))

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), draft.ID)
	s.NoError(err)
	s.NotEqual(types.InvoiceStatusPaid, inv.InvoiceStatus)
}

func (s *InvoiceServiceSuite) TestCancelReturnsAllocatedCredits() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	s.credit("100")
	draft := s.newDraft("10", "30")

	_, err := s.service.FinalizeInvoice(s.GetContext(), draft.ID)
	s.NoError(err)

	balance, err := s.ledger.GetBalance(s.GetContext())
	s.NoError(err)
	s.True(balance.IsZero())

	s.NoError(s.service.CancelInvoice(s.GetContext(), draft.ID, "tenant churned"))

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusUncollectible, inv.InvoiceStatus)

	balance, err = s.ledger.GetBalance(s.GetContext())
	s.NoError(err)
	s.True(balance.Equal(decimal.NewFromInt(100)))
}

func (s *InvoiceServiceSuite) TestCancelTerminalInvoiceRejected() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	draft := s.newDraft("1", "10")

	s.NoError(s.service.CancelInvoice(s.GetContext(), draft.ID, "first"))

	err := s.service.CancelInvoice(s.GetContext(), draft.ID, "second")
	s.Error(err)
	s.True(ierr.IsInvalidState(err))
}

func (s *InvoiceServiceSuite) TestRefundChargedInvoice() {
	s.seedTenant(types.PaymentModeCard)
	draft := s.newDraft("10", "30")

	procInvoiceID := "in_mock_charged"
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), draft.ID)
	s.NoError(err)
	inv.InvoiceStatus = types.InvoiceStatusPaid
	inv.AmountPaid = decimal.NewFromInt(354)
	inv.ProcessorInvoiceID = &procInvoiceID
	s.NoError(s.GetStores().InvoiceRepo.Update(s.GetContext(), inv))

	resp, err := s.service.RefundInvoice(s.GetContext(), draft.ID, &dto.RefundInvoiceRequest{
		Reason: "double charge",
	})
	s.NoError(err)
	s.Equal(types.InvoiceStatusRefunded, resp.InvoiceStatus)
	s.NotNil(resp.RefundedAt)
	s.Equal("re_mock_"+procInvoiceID, lo.FromPtr(resp.ProcessorRefundID))
	s.Equal([]string{procInvoiceID}, s.GetPaymentProcessor().RefundedIDs)
}

func (s *InvoiceServiceSuite) TestRefundTwiceRejected() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	draft := s.newDraft("1", "10")

	_, err := s.service.RefundInvoice(s.GetContext(), draft.ID, &dto.RefundInvoiceRequest{Reason: "first"})
	s.NoError(err)

	_, err = s.service.RefundInvoice(s.GetContext(), draft.ID, &dto.RefundInvoiceRequest{Reason: "second"})
	s.Error(err)
	s.True(ierr.IsInvalidState(err))
}

func (s *InvoiceServiceSuite) TestFinalizeDueDraftsSweepsEndedPeriods() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	s.credit("500")
	draft := s.newDraft("10", "30")

	// Well past the period end, so the same-day evening gate does not apply.
	now := time.Date(2026, 4, 5, 10, 0, 0, 0, time.UTC)
	finalized, err := s.service.FinalizeDueDrafts(s.GetContext(), now)
	s.NoError(err)
	s.Equal(1, finalized)

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
}

func (s *InvoiceServiceSuite) TestFinalizeDueDraftsSkipsOpenPeriods() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	s.newDraft("10", "30")

	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	finalized, err := s.service.FinalizeDueDrafts(s.GetContext(), now)
	s.NoError(err)
	s.Equal(0, finalized)
}

func (s *InvoiceServiceSuite) TestFinalizeUnpaidPrepaidRetriesAfterTopUp() {
	s.seedTenant(types.PaymentModePrepaidCredits)
	draft := s.newDraft("10", "30")

	first, err := s.service.FinalizeInvoice(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusUnpaid, first.InvoiceStatus)

	s.credit("500")
	settled, err := s.service.FinalizeUnpaidPrepaid(s.GetContext())
	s.NoError(err)
	s.Equal(1, settled)

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), draft.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
}
