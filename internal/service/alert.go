package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/domain/tenant"
	"github.com/frappe/press-billing/internal/types"
)

// AlertService runs the daily budget sweep: one email per tenant whose
// month-to-date spend crossed their threshold, idempotent per invoice.
type AlertService interface {
	SendBudgetAlerts(ctx context.Context, now time.Time) (int, error)
}

type alertService struct {
	ServiceParams
}

func NewAlertService(params ServiceParams) AlertService {
	return &alertService{ServiceParams: params}
}

func (s *alertService) SendBudgetAlerts(ctx context.Context, now time.Time) (int, error) {
	ctx = types.WithSystemCaller(ctx)

	enabled := true
	tenants, err := s.TenantRepo.List(ctx, &tenant.Filter{Enabled: &enabled})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, t := range tenants {
		threshold := t.BudgetAlertThreshold
		if threshold.IsZero() {
			threshold = s.Config.Billing.BudgetAlertThreshold
		}
		if !threshold.IsPositive() {
			continue
		}

		tenantCtx := types.SetTenantID(ctx, t.ID)
		inv, err := s.InvoiceRepo.GetDraftForPeriod(tenantCtx, types.DateOnly(now))
		if err != nil {
			continue
		}
		if inv.BudgetAlertSent {
			continue
		}

		items, err := s.InvoiceRepo.ListItems(tenantCtx, inv.ID)
		if err != nil {
			s.Logger.Errorw("failed to load invoice items for budget sweep",
				"error", err, "invoice_id", inv.ID, "tenant_id", t.ID)
			continue
		}
		spend := decimal.Zero
		for _, item := range items {
			spend = spend.Add(item.Amount)
		}
		if spend.LessThan(threshold) {
			continue
		}

		if s.EmailSender != nil && t.Email != "" {
			if err := s.EmailSender.SendBudgetAlert(tenantCtx, t.Email, spend, threshold, t.Currency); err != nil {
				continue
			}
		}

		inv.BudgetAlertSent = true
		if err := s.InvoiceRepo.Update(tenantCtx, inv); err != nil {
			s.Logger.Errorw("failed to mark budget alert sent",
				"error", err, "invoice_id", inv.ID)
			continue
		}
		sent++
	}
	return sent, nil
}
