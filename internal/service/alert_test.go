package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/frappe/press-billing/internal/api/dto"
	"github.com/frappe/press-billing/internal/domain/tenant"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/testutil"
	"github.com/frappe/press-billing/internal/types"
)

var errSendFailed = ierr.NewError("email send failed").Mark(ierr.ErrSystem)

type AlertServiceSuite struct {
	testutil.BaseServiceTestSuite
	service AlertService
	usage   UsageService
}

func TestAlertService(t *testing.T) {
	suite.Run(t, new(AlertServiceSuite))
}

func (s *AlertServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestParams(&s.BaseServiceTestSuite)
	s.service = NewAlertService(params)
	s.usage = NewUsageService(params)
}

func (s *AlertServiceSuite) seedTenant(threshold string) *tenant.Tenant {
	t := &tenant.Tenant{
		ID:                   types.DefaultTenantID,
		Name:                 "Test Tenant",
		Email:                "billing@example.com",
		Currency:             "INR",
		PaymentMode:          types.PaymentModePrepaidCredits,
		Enabled:              true,
		BudgetAlertThreshold: decimal.RequireFromString(threshold),
		BaseModel:            types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().TenantRepo.Create(s.GetContext(), t))
	return t
}

func (s *AlertServiceSuite) spend(amount string, day time.Time) {
	_, err := s.usage.RecordUsage(s.GetContext(), &dto.RecordUsageRequest{
		SiteID: "site-alpha",
		Plan:   "basic-10",
		Date:   day,
		Rate:   decimal.RequireFromString(amount),
	})
	s.NoError(err)
}

func (s *AlertServiceSuite) TestAlertSentOnceWhenThresholdCrossed() {
	s.seedTenant("100")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s.spend("150", day)

	sent, err := s.service.SendBudgetAlerts(s.GetContext(), day)
	s.NoError(err)
	s.Equal(1, sent)

	emails := s.GetEmailSender().Sent()
	s.Require().Len(emails, 1)
	s.Equal("budget_alert", emails[0].Kind)
	s.Equal("billing@example.com", emails[0].To)
	s.True(emails[0].Amount.Equal(decimal.NewFromInt(150)))

	// The sweep is idempotent per invoice.
	sent, err = s.service.SendBudgetAlerts(s.GetContext(), day)
	s.NoError(err)
	s.Zero(sent)
	s.Len(s.GetEmailSender().Sent(), 1)
}

func (s *AlertServiceSuite) TestNoAlertBelowThreshold() {
	s.seedTenant("100")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s.spend("50", day)

	sent, err := s.service.SendBudgetAlerts(s.GetContext(), day)
	s.NoError(err)
	s.Zero(sent)
	s.Empty(s.GetEmailSender().Sent())
}

func (s *AlertServiceSuite) TestZeroThresholdDisablesAlerts() {
	s.seedTenant("0")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s.spend("10000", day)

	sent, err := s.service.SendBudgetAlerts(s.GetContext(), day)
	s.NoError(err)
	s.Zero(sent)
}

func (s *AlertServiceSuite) TestSendFailureLeavesAlertPending() {
	s.seedTenant("100")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s.spend("150", day)

	s.GetEmailSender().Err = errSendFailed
	sent, err := s.service.SendBudgetAlerts(s.GetContext(), day)
	s.NoError(err)
	s.Zero(sent)

	// The next sweep retries once sending works again.
	s.GetEmailSender().Err = nil
	sent, err = s.service.SendBudgetAlerts(s.GetContext(), day)
	s.NoError(err)
	s.Equal(1, sent)
}
