package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/frappe/press-billing/internal/api/dto"
	"github.com/frappe/press-billing/internal/domain/tenant"
	"github.com/frappe/press-billing/internal/domain/usage"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/testutil"
	"github.com/frappe/press-billing/internal/types"
)

type UsageServiceSuite struct {
	testutil.BaseServiceTestSuite
	service UsageService
}

func TestUsageService(t *testing.T) {
	suite.Run(t, new(UsageServiceSuite))
}

func (s *UsageServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewUsageService(newTestParams(&s.BaseServiceTestSuite))
	s.seedTenant()
}

func (s *UsageServiceSuite) seedTenant() {
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

func (s *UsageServiceSuite) record(siteID, plan string, date time.Time, quantity, rate string) *dto.UsageRecordResponse {
	resp, err := s.service.RecordUsage(s.GetContext(), &dto.RecordUsageRequest{
		SiteID:   siteID,
		Plan:     plan,
		Date:     date,
		Quantity: decimal.RequireFromString(quantity),
		Rate:     decimal.RequireFromString(rate),
	})
	s.NoError(err)
	return resp
}

func (s *UsageServiceSuite) TestRecordUsageAttachesToDraftInvoice() {
	date := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	resp := s.record("site-alpha", "basic-10", date, "1", "33.33")

	s.True(resp.Submitted)
	s.NotNil(resp.InvoiceID)
	s.NotNil(resp.InvoiceItemID)
	s.True(resp.Date.Equal(types.DateOnly(date)))

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), *resp.InvoiceID)
	s.NoError(err)
	s.Equal(types.InvoiceTypeSubscription, inv.Type)
	s.Equal(types.InvoiceStatusDraft, inv.InvoiceStatus)
	s.False(inv.PeriodStart.After(types.DateOnly(date)))
	s.False(inv.PeriodEnd.Before(types.DateOnly(date)))

	items, err := s.GetStores().InvoiceRepo.ListItems(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Len(items, 1)
	s.Equal("site-alpha", items[0].SiteID)
	s.Equal("basic-10", items[0].Plan)
	s.True(items[0].Quantity.Equal(decimal.NewFromInt(1)))
	s.True(items[0].Amount.Equal(decimal.RequireFromString("33.33")))
}

func (s *UsageServiceSuite) TestRecordUsageDefaultsQuantityToOne() {
	resp, err := s.service.RecordUsage(s.GetContext(), &dto.RecordUsageRequest{
		SiteID: "site-alpha",
		Plan:   "basic-10",
		Date:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Rate:   decimal.NewFromInt(10),
	})
	s.NoError(err)
	s.True(resp.Quantity.Equal(decimal.NewFromInt(1)))
	s.True(resp.Amount.Equal(decimal.NewFromInt(10)))
}

func (s *UsageServiceSuite) TestSameDayResubmissionRejected() {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s.record("site-alpha", "basic-10", date, "1", "10")

	// Clock-time differences within the day do not open a second slot.
	_, err := s.service.RecordUsage(s.GetContext(), &dto.RecordUsageRequest{
		SiteID:   "site-alpha",
		Plan:     "basic-10",
		Date:     date.Add(6 * time.Hour),
		Quantity: decimal.NewFromInt(1),
		Rate:     decimal.NewFromInt(10),
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))

	records, err := s.GetStores().UsageRepo.List(s.GetContext(), &usage.Filter{})
	s.NoError(err)
	s.Len(records, 1)
}

func (s *UsageServiceSuite) TestConsecutiveDaysAccumulateOnOneLine() {
	day1 := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	first := s.record("site-alpha", "basic-10", day1, "1", "10")
	second := s.record("site-alpha", "basic-10", day2, "1", "10")

	s.Equal(*first.InvoiceID, *second.InvoiceID)
	// Same site, plan and rate increment the existing line.
	s.Equal(*first.InvoiceItemID, *second.InvoiceItemID)

	items, err := s.GetStores().InvoiceRepo.ListItems(s.GetContext(), *first.InvoiceID)
	s.NoError(err)
	s.Len(items, 1)
	s.True(items[0].Quantity.Equal(decimal.NewFromInt(2)))
	s.True(items[0].Amount.Equal(decimal.NewFromInt(20)))
}

func (s *UsageServiceSuite) TestRateChangeOpensNewLine() {
	day1 := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	first := s.record("site-alpha", "basic-10", day1, "1", "10")
	second := s.record("site-alpha", "basic-10", day2, "1", "12")

	s.Equal(*first.InvoiceID, *second.InvoiceID)
	s.NotEqual(*first.InvoiceItemID, *second.InvoiceItemID)

	items, err := s.GetStores().InvoiceRepo.ListItems(s.GetContext(), *first.InvoiceID)
	s.NoError(err)
	s.Len(items, 2)
}

func (s *UsageServiceSuite) TestFractionalQuantityRounded() {
	resp := s.record("site-alpha", "autoscale", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), "2.456", "4")
	s.True(resp.Quantity.Equal(decimal.RequireFromString("2.46")))
	s.True(resp.Amount.Equal(decimal.RequireFromString("9.84")))
}

func (s *UsageServiceSuite) TestCancelUsageDecrementsInvoiceLine() {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	resp := s.record("site-alpha", "basic-10", date, "2", "15")
	itemID := *resp.InvoiceItemID
	invoiceID := *resp.InvoiceID

	s.NoError(s.service.CancelUsage(s.GetContext(), resp.ID))

	items, err := s.GetStores().InvoiceRepo.ListItems(s.GetContext(), invoiceID)
	s.NoError(err)
	s.Len(items, 1)
	s.Equal(itemID, items[0].ID)
	s.True(items[0].Quantity.IsZero())
	s.True(items[0].Amount.IsZero())

	// Cancelled records drop out of reads and listings.
	_, err = s.GetStores().UsageRepo.Get(s.GetContext(), resp.ID)
	s.True(ierr.IsNotFound(err))
}

func (s *UsageServiceSuite) TestCancelFreesTheDaySlot() {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	first := s.record("site-alpha", "basic-10", date, "1", "10")
	s.NoError(s.service.CancelUsage(s.GetContext(), first.ID))

	// The same tuple can be resubmitted after cancellation.
	second := s.record("site-alpha", "basic-10", date, "1", "10")
	s.NotEqual(first.ID, second.ID)
}

func (s *UsageServiceSuite) TestCancelTwiceRejected() {
	resp := s.record("site-alpha", "basic-10", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), "1", "10")
	s.NoError(s.service.CancelUsage(s.GetContext(), resp.ID))

	err := s.service.CancelUsage(s.GetContext(), resp.ID)
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *UsageServiceSuite) TestLinkUnlinkedUsageReattaches() {
	date := types.DateOnly(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	orphan := &usage.Record{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_RECORD),
		SiteID:         "site-orphan",
		Plan:           "basic-10",
		Interval:       types.UsageIntervalDaily,
		Date:           date,
		Quantity:       decimal.NewFromInt(1),
		Rate:           decimal.NewFromInt(10),
		Amount:         decimal.NewFromInt(10),
		Currency:       "INR",
		IdempotencyKey: "orphan-key",
		Submitted:      true,
		BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().UsageRepo.Create(s.GetContext(), orphan))

	linked, err := s.service.LinkUnlinkedUsage(s.GetContext(), 100)
	s.NoError(err)
	s.Equal(1, linked)

	relinked, err := s.GetStores().UsageRepo.Get(s.GetContext(), orphan.ID)
	s.NoError(err)
	s.NotNil(relinked.InvoiceID)
	s.NotNil(relinked.InvoiceItemID)
}
