package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/frappe/press-billing/internal/api/dto"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/testutil"
	"github.com/frappe/press-billing/internal/types"
)

type TenantServiceSuite struct {
	testutil.BaseServiceTestSuite
	service TenantService
}

func TestTenantService(t *testing.T) {
	suite.Run(t, new(TenantServiceSuite))
}

func (s *TenantServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewTenantService(newTestParams(&s.BaseServiceTestSuite))
}

func (s *TenantServiceSuite) create() *dto.TenantResponse {
	resp, err := s.service.CreateTenant(s.GetContext(), &dto.CreateTenantRequest{
		Name:     "Acme Hosting",
		Email:    "billing@acme.example.com",
		Currency: "inr",
	})
	s.NoError(err)
	return resp
}

func (s *TenantServiceSuite) TestCreateTenantNormalizesCurrency() {
	resp := s.create()
	s.Equal("INR", resp.Currency)
	s.True(resp.Enabled)
	s.False(resp.CurrencyLocked)
	// A tenant is its own tenancy scope.
	s.Equal(resp.ID, resp.TenantID)
}

func (s *TenantServiceSuite) TestCreateTenantRejectsBadCurrency() {
	_, err := s.service.CreateTenant(s.GetContext(), &dto.CreateTenantRequest{
		Name:     "Acme Hosting",
		Email:    "billing@acme.example.com",
		Currency: "rupees",
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *TenantServiceSuite) TestUpdateTenantPartialFields() {
	created := s.create()
	ctx := types.SetTenantID(s.GetContext(), created.ID)

	resp, err := s.service.UpdateTenant(ctx, created.ID, &dto.UpdateTenantRequest{
		PaymentMode:          lo.ToPtr(types.PaymentModePrepaidCredits),
		BudgetAlertThreshold: lo.ToPtr(decimal.NewFromInt(5000)),
	})
	s.NoError(err)
	s.Equal(types.PaymentModePrepaidCredits, resp.PaymentMode)
	s.True(resp.BudgetAlertThreshold.Equal(decimal.NewFromInt(5000)))
	// Untouched fields survive.
	s.Equal("Acme Hosting", resp.Name)
	s.Equal("INR", resp.Currency)
}

func (s *TenantServiceSuite) TestCurrencyLockedAfterFirstInvoice() {
	created := s.create()
	ctx := types.SetTenantID(s.GetContext(), created.ID)

	invoiceSvc := NewInvoiceService(newTestParams(&s.BaseServiceTestSuite))
	_, err := invoiceSvc.CreateInvoice(ctx, &dto.CreateInvoiceRequest{
		Type:        types.InvoiceTypeSubscription,
		PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	s.NoError(err)

	_, err = s.service.UpdateTenant(ctx, created.ID, &dto.UpdateTenantRequest{
		Currency: lo.ToPtr("USD"),
	})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))

	// Same-currency updates are still fine.
	_, err = s.service.UpdateTenant(ctx, created.ID, &dto.UpdateTenantRequest{
		Currency: lo.ToPtr("inr"),
		Name:     lo.ToPtr("Acme Hosting Pvt Ltd"),
	})
	s.NoError(err)
}

func (s *TenantServiceSuite) TestDeleteTenantRefusedWithOpenInvoices() {
	created := s.create()
	ctx := types.SetTenantID(s.GetContext(), created.ID)

	invoiceSvc := NewInvoiceService(newTestParams(&s.BaseServiceTestSuite))
	_, err := invoiceSvc.CreateInvoice(ctx, &dto.CreateInvoiceRequest{
		Type:        types.InvoiceTypeSubscription,
		PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	s.NoError(err)

	err = s.service.DeleteTenant(ctx, created.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *TenantServiceSuite) TestDeleteTenantDisablesAndHides() {
	created := s.create()
	ctx := types.SetTenantID(s.GetContext(), created.ID)

	s.NoError(s.service.DeleteTenant(ctx, created.ID))

	_, err := s.service.GetTenant(ctx, created.ID)
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}
