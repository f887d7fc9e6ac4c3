package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/api/dto"
	"github.com/frappe/press-billing/internal/domain/invoice"
	"github.com/frappe/press-billing/internal/domain/ledger"
	tenantdomain "github.com/frappe/press-billing/internal/domain/tenant"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// InvoiceService drives the invoice state machine: accumulation in Draft,
// finalization with FIFO credit application, tax, write-off and processor
// hand-off, then settlement through inbound processor events.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, req *dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error)
	GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter *invoice.Filter) (*dto.ListInvoicesResponse, error)

	// GetOrCreateUpcoming returns the draft subscription invoice covering at,
	// creating one whose period never overlaps an existing invoice.
	GetOrCreateUpcoming(ctx context.Context, at time.Time) (*invoice.Invoice, error)

	// FinalizeInvoice runs the finalization pipeline. Re-invoking on a Paid
	// invoice is a no-op.
	FinalizeInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)

	// ConsumeCreditsAndMarkPaid settles the full remainder from the tenant's
	// credit balance, failing when credits do not cover it.
	ConsumeCreditsAndMarkPaid(ctx context.Context, id, remark string) (*dto.InvoiceResponse, error)

	// CancelInvoice reverses every credit allocation with compensating ledger
	// entries and parks the invoice in Uncollectible.
	CancelInvoice(ctx context.Context, id, reason string) error

	// RefundInvoice refunds the processor charge when one exists and marks
	// the invoice Refunded.
	RefundInvoice(ctx context.Context, id string, req *dto.RefundInvoiceRequest) (*dto.InvoiceResponse, error)

	AddComment(ctx context.Context, invoiceID string, req *dto.AddCommentRequest) error

	// FinalizeDueDrafts finalizes draft subscription invoices whose period
	// has ended, in batches. Runs as a system job.
	FinalizeDueDrafts(ctx context.Context, now time.Time) (int, error)

	// FinalizeUnpaidPrepaid re-runs finalization for unpaid invoices of
	// prepaid-credit tenants so newly purchased credits settle them.
	FinalizeUnpaidPrepaid(ctx context.Context) (int, error)
}

type invoiceService struct {
	ServiceParams
}

func NewInvoiceService(params ServiceParams) InvoiceService {
	return &invoiceService{ServiceParams: params}
}

func (s *invoiceService) CreateInvoice(ctx context.Context, req *dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := types.ValidateTenantContext(ctx); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPermissionDenied)
	}

	tenant, err := s.TenantRepo.Get(ctx, types.GetTenantID(ctx))
	if err != nil {
		return nil, err
	}
	if !tenant.Enabled {
		return nil, ierr.NewError("tenant is disabled").
			WithHint("Disabled tenants cannot receive new invoices").
			Mark(ierr.ErrInvalidOperation)
	}

	periodStart := types.DateOnly(req.PeriodStart)
	if req.PeriodStart.IsZero() {
		periodStart = types.DateOnly(time.Now())
	}
	periodEnd := types.DateOnly(req.PeriodEnd)
	if req.PeriodEnd.IsZero() {
		periodEnd = types.LastDayOfMonth(periodStart)
	}

	inv := &invoice.Invoice{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		InvoiceNumber: types.GenerateShortIDWithPrefix("INV-"),
		Type:          req.Type,
		InvoiceStatus: types.InvoiceStatusDraft,
		Currency:      tenant.Currency,
		PaymentMode:   tenant.PaymentMode,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		DueDate:       &periodEnd,
		FlatDiscount:  tenant.FlatDiscount,
		ProcessorName: types.ProcessorStripe,
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if inv.Type == types.InvoiceTypeSubscription {
			overlaps, err := s.InvoiceRepo.ExistsOverlapping(ctx, inv.PeriodStart, inv.PeriodEnd, "")
			if err != nil {
				return err
			}
			if overlaps {
				return ierr.NewError("invoice period overlaps an existing subscription invoice").
					WithReportableDetails(map[string]any{
						"period_start": inv.PeriodStart,
						"period_end":   inv.PeriodEnd,
					}).
					Mark(ierr.ErrInvalidOperation)
			}
		}
		if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
			return err
		}
		for _, reqItem := range req.Items {
			item := &invoice.InvoiceItem{
				ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM),
				InvoiceID:       inv.ID,
				SiteID:          reqItem.SiteID,
				Description:     reqItem.Description,
				Plan:            reqItem.Plan,
				Quantity:        reqItem.Quantity,
				Rate:            reqItem.Rate,
				DiscountPercent: reqItem.DiscountPercent,
				Amount:          reqItem.Quantity.Mul(reqItem.Rate).Round(2),
				Interval:        types.UsageIntervalMonthly,
				BaseModel:       types.GetDefaultBaseModel(ctx),
			}
			if err := s.InvoiceRepo.CreateItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Currency locks once the first invoice exists.
	if !tenant.CurrencyLocked {
		tenant.CurrencyLocked = true
		if err := s.TenantRepo.Update(ctx, tenant); err != nil {
			s.Logger.Errorw("failed to lock tenant currency", "error", err, "tenant_id", tenant.ID)
		}
	}

	return &dto.InvoiceResponse{Invoice: inv}, nil
}

func (s *invoiceService) GetOrCreateUpcoming(ctx context.Context, at time.Time) (*invoice.Invoice, error) {
	at = types.DateOnly(at)

	inv, err := s.InvoiceRepo.GetDraftForPeriod(ctx, at)
	if err == nil {
		return inv, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	// Start the new period after the latest existing subscription invoice so
	// periods never overlap.
	periodStart := at
	existing, err := s.InvoiceRepo.List(ctx, &invoice.Filter{
		Types: []types.InvoiceType{types.InvoiceTypeSubscription},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 && !existing[0].PeriodEnd.Before(periodStart) {
		periodStart = types.DateOnly(existing[0].PeriodEnd.AddDate(0, 0, 1))
	}

	resp, err := s.CreateInvoice(ctx, &dto.CreateInvoiceRequest{
		Type:        types.InvoiceTypeSubscription,
		PeriodStart: periodStart,
		PeriodEnd:   types.LastDayOfMonth(periodStart),
	})
	if err != nil {
		return nil, err
	}
	return resp.Invoice, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.InvoiceRepo.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return &dto.InvoiceResponse{Invoice: inv}, nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter *invoice.Filter) (*dto.ListInvoicesResponse, error) {
	if filter == nil {
		filter = &invoice.Filter{}
	}
	invoices, err := s.InvoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := &dto.ListInvoicesResponse{Total: len(invoices)}
	for _, inv := range invoices {
		resp.Items = append(resp.Items, &dto.InvoiceResponse{Invoice: inv})
	}
	return resp, nil
}

func (s *invoiceService) FinalizeInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = types.SetTenantID(ctx, inv.TenantID)

	// Re-finalizing a settled invoice is a no-op.
	if inv.InvoiceStatus == types.InvoiceStatusPaid {
		return &dto.InvoiceResponse{Invoice: inv}, nil
	}
	if inv.InvoiceStatus.IsTerminal() {
		return nil, ierr.NewError("invoice is in a terminal state").
			WithReportableDetails(map[string]any{"status": inv.InvoiceStatus}).
			Mark(ierr.ErrInvalidState)
	}

	tenant, err := s.TenantRepo.Get(ctx, inv.TenantID)
	if err != nil {
		return nil, err
	}

	if !tenant.Enabled {
		// Committed outside the finalize transaction so the trail survives.
		s.comment(ctx, inv.ID, "Finalization skipped: tenant is disabled")
		return &dto.InvoiceResponse{Invoice: inv}, nil
	}

	var paid, becameFinal bool
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.computeTotals(ctx, inv); err != nil {
			return err
		}

		if inv.Total.IsZero() {
			inv.InvoiceStatus = types.InvoiceStatusEmpty
			becameFinal = true
			return s.InvoiceRepo.Update(ctx, inv)
		}

		// The processor may have settled the invoice out of band.
		if settled, err := s.processorAlreadyPaid(ctx, inv); err != nil {
			return err
		} else if settled {
			s.markPaid(inv, decimal.Zero)
			paid, becameFinal = true, true
			return s.InvoiceRepo.Update(ctx, inv)
		}

		if err := s.applyCreditBalance(ctx, inv); err != nil {
			return err
		}
		s.applyWriteOff(inv)
		s.applyTax(inv, tenant)

		switch {
		case inv.AmountDue.IsZero():
			s.markPaid(inv, decimal.Zero)
			paid, becameFinal = true, true
		case inv.PaymentMode.CanAutoCharge():
			paymentSvc := NewPaymentService(s.ServiceParams)
			if err := paymentSvc.CreateProcessorInvoice(ctx, inv, tenant); err != nil {
				if ierr.IsProcessorTransient(err) {
					// Swallowed: the next finalize tick retries the charge.
					inv.InvoiceStatus = types.InvoiceStatusUnpaid
					inv.LastPaymentError = err.Error()
					s.Logger.Warnw("processor call deferred",
						"error", err, "invoice_id", inv.ID)
				} else {
					return err
				}
			} else {
				inv.InvoiceStatus = types.InvoiceStatusCreated
			}
			becameFinal = true
		default:
			inv.InvoiceStatus = types.InvoiceStatusUnpaid
			becameFinal = true
		}

		now := time.Now().UTC()
		inv.FinalizedAt = &now
		return s.InvoiceRepo.Update(ctx, inv)
	})
	if err != nil {
		s.comment(ctx, inv.ID, fmt.Sprintf("Finalization failed: %v", err))
		return nil, err
	}

	if becameFinal {
		s.publishWebhook(ctx, types.WebhookEventInvoiceFinalized, inv)
	}
	if inv.InvoiceStatus == types.InvoiceStatusUnpaid && inv.AmountDue.IsPositive() {
		s.comment(ctx, inv.ID, fmt.Sprintf(
			"Insufficient credits: %s %s still due", inv.AmountDue.StringFixed(2), inv.Currency))
	}
	if paid {
		s.afterPaid(ctx, inv)
	}

	return &dto.InvoiceResponse{Invoice: inv}, nil
}

// computeTotals recomputes line amounts, prunes zero-quantity lines and
// fixes subtotal, discounts and total on the invoice.
func (s *invoiceService) computeTotals(ctx context.Context, inv *invoice.Invoice) error {
	items, err := s.InvoiceRepo.ListItems(ctx, inv.ID)
	if err != nil {
		return err
	}

	subtotal := decimal.Zero
	itemDiscount := decimal.Zero
	kept := items[:0]
	for _, item := range items {
		if item.Quantity.IsZero() {
			item.Status = types.StatusDeleted
			if err := s.InvoiceRepo.UpdateItem(ctx, item); err != nil {
				return err
			}
			continue
		}
		item.Amount = item.Quantity.Mul(item.Rate).Round(2)
		if err := s.InvoiceRepo.UpdateItem(ctx, item); err != nil {
			return err
		}
		subtotal = subtotal.Add(item.Amount)
		if item.DiscountPercent.IsPositive() {
			itemDiscount = itemDiscount.Add(
				item.Amount.Mul(item.DiscountPercent).Div(decimal.NewFromInt(100)).Round(2))
		}
		kept = append(kept, item)
	}
	inv.Items = kept

	inv.Subtotal = subtotal
	inv.DiscountTotal = itemDiscount.Add(inv.FlatDiscount)
	inv.Total = decimal.Max(decimal.Zero, subtotal.Sub(inv.DiscountTotal))
	return nil
}

// applyCreditBalance is the FIFO allocator: it decrements unallocated
// amounts on the oldest open credit rows, records one allocation per row on
// the invoice, mirrors them on the ledger, and closes with one summarizing
// applied_to_invoice entry. Prior allocations are never disturbed, so
// finalize reruns only allocate the still-open remainder.
func (s *invoiceService) applyCreditBalance(ctx context.Context, inv *invoice.Invoice) error {
	due := inv.Total.Sub(inv.AppliedCredits)
	if !due.IsPositive() {
		inv.AmountDue = decimal.Max(decimal.Zero, due)
		return nil
	}

	credits, err := s.LedgerRepo.ListOpenCredits(ctx, "")
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	taken := decimal.Zero
	type consumption struct {
		creditID string
		source   types.CreditSource
		amount   decimal.Decimal
	}
	var consumed []consumption
	for _, credit := range credits {
		if due.IsZero() {
			break
		}
		if credit.ExpiresAt != nil && credit.ExpiresAt.Before(now) {
			continue
		}

		take := decimal.Min(due, credit.UnallocatedAmount)
		credit.UnallocatedAmount = credit.UnallocatedAmount.Sub(take)
		if err := s.LedgerRepo.Update(ctx, credit); err != nil {
			return err
		}

		ca := &invoice.CreditAllocation{
			ID:                  types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CREDIT_ALLOCATION),
			InvoiceID:           inv.ID,
			CreditTransactionID: credit.ID,
			Amount:              take,
			Source:              credit.Source,
			BaseModel:           types.GetDefaultBaseModel(ctx),
		}
		if err := s.InvoiceRepo.CreateCreditAllocation(ctx, ca); err != nil {
			return err
		}

		consumed = append(consumed, consumption{creditID: credit.ID, source: credit.Source, amount: take})
		taken = taken.Add(take)
		due = due.Sub(take)
	}

	if taken.IsPositive() {
		ledgerSvc := NewLedgerService(s.ServiceParams)
		applyEntry, err := ledgerSvc.ApplyToInvoice(ctx, taken, inv.ID)
		if err != nil {
			return err
		}
		for _, c := range consumed {
			alloc := &ledger.Allocation{
				ID:                  types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ALLOCATION),
				CreditTransactionID: c.creditID,
				DebitTransactionID:  applyEntry.ID,
				Amount:              c.amount,
				Source:              c.source,
				BaseModel:           types.GetDefaultBaseModel(ctx),
			}
			if err := s.LedgerRepo.CreateAllocation(ctx, alloc); err != nil {
				return err
			}
		}
	}

	allocations, err := s.InvoiceRepo.ListCreditAllocations(ctx, inv.ID)
	if err != nil {
		return err
	}
	applied := decimal.Zero
	for _, ca := range allocations {
		applied = applied.Add(ca.Amount)
	}
	inv.AppliedCredits = applied
	inv.AmountDue = decimal.Max(decimal.Zero, inv.Total.Sub(applied))
	return nil
}

// applyWriteOff discards a residual below the configured threshold.
func (s *invoiceService) applyWriteOff(inv *invoice.Invoice) {
	threshold := s.Config.Billing.WriteOffThreshold
	if threshold.IsZero() {
		threshold = types.DefaultWriteOffThreshold
	}
	if inv.AmountDue.IsPositive() && inv.AmountDue.LessThan(threshold) {
		inv.WriteOffAmount = inv.AmountDue
		inv.AmountDue = decimal.Zero
	}
}

// applyTax adds GST on the uncovered remainder. Only Indian-currency
// subscription invoices outside prepaid-credits mode are taxed.
func (s *invoiceService) applyTax(inv *invoice.Invoice, t *tenantdomain.Tenant) {
	inv.TaxAmount = decimal.Zero
	inv.TaxRate = decimal.Zero
	inv.AmountDueWithTax = inv.AmountDue

	if inv.Currency != "INR" ||
		inv.Type != types.InvoiceTypeSubscription ||
		t.PaymentMode == types.PaymentModePrepaidCredits ||
		!inv.AmountDue.IsPositive() {
		return
	}

	inv.TaxRate = s.Config.Billing.GSTRate
	inv.TaxAmount = inv.AmountDue.Mul(inv.TaxRate).Round(2)
	inv.AmountDueWithTax = inv.AmountDue.Add(inv.TaxAmount)
}

func (s *invoiceService) markPaid(inv *invoice.Invoice, amountPaid decimal.Decimal) {
	now := time.Now().UTC()
	inv.InvoiceStatus = types.InvoiceStatusPaid
	inv.PaidAt = &now
	if amountPaid.IsPositive() {
		inv.AmountPaid = amountPaid
	}
}

// afterPaid publishes settlement events and requests site unsuspension when
// the tenant no longer holds unpaid invoices.
func (s *invoiceService) afterPaid(ctx context.Context, inv *invoice.Invoice) {
	s.publishWebhook(ctx, types.WebhookEventInvoicePaid, inv)

	unpaid, err := s.InvoiceRepo.Count(ctx, &invoice.Filter{
		Statuses: []types.InvoiceStatus{types.InvoiceStatusUnpaid, types.InvoiceStatusCreated},
	})
	if err != nil {
		s.Logger.Errorw("failed to count unpaid invoices", "error", err, "tenant_id", inv.TenantID)
		return
	}
	if unpaid == 0 {
		s.publishWebhook(ctx, types.WebhookEventSitesUnsuspended, map[string]string{
			"tenant_id": inv.TenantID,
		})
	}
}

func (s *invoiceService) processorAlreadyPaid(ctx context.Context, inv *invoice.Invoice) (bool, error) {
	if inv.ProcessorInvoiceID == nil {
		return false, nil
	}
	proc, ok := s.processorFor(inv.ProcessorName)
	if !ok {
		return false, nil
	}
	result, err := proc.RetrieveInvoice(ctx, *inv.ProcessorInvoiceID)
	if err != nil {
		if ierr.IsProcessorTransient(err) {
			return false, nil
		}
		return false, err
	}
	return result.Status == types.ProcessorInvoiceStatusPaid, nil
}

func (s *invoiceService) ConsumeCreditsAndMarkPaid(ctx context.Context, id, remark string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = types.SetTenantID(ctx, inv.TenantID)

	if inv.IsSettled() {
		return nil, ierr.NewError("invoice is already settled").
			WithReportableDetails(map[string]any{"status": inv.InvoiceStatus}).
			Mark(ierr.ErrInvalidState)
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.computeTotals(ctx, inv); err != nil {
			return err
		}
		if err := s.applyCreditBalance(ctx, inv); err != nil {
			return err
		}
		if inv.AmountDue.IsPositive() {
			return ierr.NewError("credits do not cover the invoice").
				WithReportableDetails(map[string]any{"amount_due": inv.AmountDue}).
				Mark(ierr.ErrInsufficientBalance)
		}
		s.markPaid(inv, decimal.Zero)
		return s.InvoiceRepo.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	if remark != "" {
		s.comment(ctx, inv.ID, remark)
	}
	s.afterPaid(ctx, inv)

	return &dto.InvoiceResponse{Invoice: inv}, nil
}

func (s *invoiceService) CancelInvoice(ctx context.Context, id, reason string) error {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	ctx = types.SetTenantID(ctx, inv.TenantID)

	if inv.InvoiceStatus.IsTerminal() {
		return ierr.NewError("invoice is in a terminal state").
			WithReportableDetails(map[string]any{"status": inv.InvoiceStatus}).
			Mark(ierr.ErrInvalidState)
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		allocations, err := s.InvoiceRepo.ListCreditAllocations(ctx, inv.ID)
		if err != nil {
			return err
		}

		// Allocation rows stay for audit; balance comes back through
		// compensating adjustments.
		ledgerSvc := NewLedgerService(s.ServiceParams)
		for _, ca := range allocations {
			_, err := ledgerSvc.AllocateCredit(ctx, &dto.AllocateCreditRequest{
				Amount: ca.Amount,
				Source: ca.Source,
				Remark: fmt.Sprintf("Reversal of allocation %s on cancelled invoice %s", ca.ID, inv.ID),
			})
			if err != nil {
				return err
			}
		}

		inv.InvoiceStatus = types.InvoiceStatusUncollectible
		return s.InvoiceRepo.Update(ctx, inv)
	})
	if err != nil {
		return err
	}

	s.comment(ctx, inv.ID, fmt.Sprintf("Invoice cancelled: %s", reason))
	return nil
}

func (s *invoiceService) RefundInvoice(ctx context.Context, id string, req *dto.RefundInvoiceRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = types.SetTenantID(ctx, inv.TenantID)

	if inv.InvoiceStatus == types.InvoiceStatusRefunded {
		return nil, ierr.NewError("invoice is already refunded").
			Mark(ierr.ErrInvalidState)
	}

	if inv.AmountPaid.IsPositive() && inv.ProcessorInvoiceID != nil {
		proc, ok := s.processorFor(inv.ProcessorName)
		if !ok {
			return nil, ierr.NewError("no processor configured for invoice").
				WithReportableDetails(map[string]any{"processor": inv.ProcessorName}).
				Mark(ierr.ErrInvalidOperation)
		}
		refundID, err := proc.RefundCharge(ctx, *inv.ProcessorInvoiceID)
		if err != nil {
			return nil, err
		}
		inv.ProcessorRefundID = &refundID
	}

	now := time.Now().UTC()
	inv.InvoiceStatus = types.InvoiceStatusRefunded
	inv.RefundedAt = &now
	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		return nil, err
	}

	s.comment(ctx, inv.ID, fmt.Sprintf("Invoice refunded: %s", req.Reason))
	s.publishWebhook(ctx, types.WebhookEventInvoiceRefunded, inv)

	return &dto.InvoiceResponse{Invoice: inv}, nil
}

func (s *invoiceService) AddComment(ctx context.Context, invoiceID string, req *dto.AddCommentRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if _, err := s.InvoiceRepo.Get(ctx, invoiceID); err != nil {
		return err
	}
	return s.InvoiceRepo.AddComment(ctx, &invoice.Comment{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COMMENT),
		InvoiceID: invoiceID,
		Content:   req.Content,
		BaseModel: types.GetDefaultBaseModel(ctx),
	})
}

// comment writes to the invoice trail outside the caller's transaction so
// operators can see what happened even when the operation rolled back.
func (s *invoiceService) comment(ctx context.Context, invoiceID, content string) {
	err := s.InvoiceRepo.AddComment(ctx, &invoice.Comment{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COMMENT),
		InvoiceID: invoiceID,
		Content:   content,
		BaseModel: types.GetDefaultBaseModel(ctx),
	})
	if err != nil {
		s.Logger.Errorw("failed to record invoice comment",
			"error", err, "invoice_id", invoiceID, "content", content)
	}
}

func (s *invoiceService) FinalizeDueDrafts(ctx context.Context, now time.Time) (int, error) {
	ctx = types.WithSystemCaller(ctx)
	today := types.DateOnly(now)

	batch := s.Config.Billing.FinalizeBatchSize
	if batch <= 0 {
		batch = 500
	}

	drafts, err := s.InvoiceRepo.List(ctx, &invoice.Filter{
		Types:        []types.InvoiceType{types.InvoiceTypeSubscription},
		Statuses:     []types.InvoiceStatus{types.InvoiceStatusDraft},
		PeriodEndLTE: &today,
		AllTenants:   true,
		Limit:        batch,
	})
	if err != nil {
		return 0, err
	}

	finalized := 0
	for _, inv := range drafts {
		// Same-day periods wait for the evening run so late usage lands.
		if inv.PeriodEnd.Equal(today) && now.Hour() < 18 {
			continue
		}
		tenantCtx := types.SetTenantID(ctx, inv.TenantID)
		if _, err := s.FinalizeInvoice(tenantCtx, inv.ID); err != nil {
			s.Logger.Errorw("failed to finalize draft invoice",
				"error", err, "invoice_id", inv.ID, "tenant_id", inv.TenantID)
			continue
		}
		finalized++
	}
	return finalized, nil
}

func (s *invoiceService) FinalizeUnpaidPrepaid(ctx context.Context) (int, error) {
	ctx = types.WithSystemCaller(ctx)

	unpaid, err := s.InvoiceRepo.List(ctx, &invoice.Filter{
		Types:      []types.InvoiceType{types.InvoiceTypeSubscription},
		Statuses:   []types.InvoiceStatus{types.InvoiceStatusUnpaid},
		AllTenants: true,
		Limit:      s.Config.Billing.FinalizeBatchSize,
	})
	if err != nil {
		return 0, err
	}

	finalized := 0
	for _, inv := range unpaid {
		tenant, err := s.TenantRepo.Get(types.SetTenantID(ctx, inv.TenantID), inv.TenantID)
		if err != nil || tenant.PaymentMode != types.PaymentModePrepaidCredits {
			continue
		}
		tenantCtx := types.SetTenantID(ctx, inv.TenantID)
		resp, err := s.FinalizeInvoice(tenantCtx, inv.ID)
		if err != nil {
			s.Logger.Errorw("failed to finalize unpaid prepaid invoice",
				"error", err, "invoice_id", inv.ID, "tenant_id", inv.TenantID)
			continue
		}
		if resp.InvoiceStatus == types.InvoiceStatusPaid {
			finalized++
		}
	}
	return finalized, nil
}
