package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/api/dto"
	"github.com/frappe/press-billing/internal/domain/invoice"
	"github.com/frappe/press-billing/internal/domain/processor"
	tenantdomain "github.com/frappe/press-billing/internal/domain/tenant"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/idempotency"
	"github.com/frappe/press-billing/internal/types"
)

// PaymentService is the bridge to external payment processors: it mirrors
// invoices outward and folds inbound processor events back into invoice
// state. Credit allocation and processor charging are not two-phase
// committed, so belated events on credits-paid invoices refund or void on
// the processor side.
type PaymentService interface {
	// CreateProcessorInvoice mirrors the uncovered remainder to the tenant's
	// processor and begins collection. Mutates inv in place; the caller
	// persists it inside its transaction.
	CreateProcessorInvoice(ctx context.Context, inv *invoice.Invoice, t *tenantdomain.Tenant) error

	// IngestProcessorEvent verifies, stores and applies one inbound event.
	// Re-ingesting an event id that was already applied changes nothing;
	// redelivery of an event whose processing failed retries it.
	IngestProcessorEvent(ctx context.Context, req *dto.IngestProcessorEventRequest) (*dto.ProcessorEventResponse, error)

	// CreateSetupIntent starts mandate collection for off-session charging.
	CreateSetupIntent(ctx context.Context) (*processor.SetupIntentResult, error)
}

var centsPerUnit = decimal.NewFromInt(100)

type paymentService struct {
	ServiceParams
}

func NewPaymentService(params ServiceParams) PaymentService {
	return &paymentService{ServiceParams: params}
}

func (s *paymentService) CreateProcessorInvoice(ctx context.Context, inv *invoice.Invoice, t *tenantdomain.Tenant) error {
	proc, ok := s.processorFor(inv.ProcessorName)
	if !ok {
		return ierr.NewError("no processor configured").
			WithReportableDetails(map[string]any{"processor": inv.ProcessorName}).
			Mark(ierr.ErrInvalidOperation)
	}

	customerID, err := s.ensureCustomer(ctx, proc, t)
	if err != nil {
		return err
	}

	amountCents := inv.AmountDueWithTax.Round(2).Mul(centsPerUnit).IntPart()
	key := idempotency.ProcessorInvoiceKey(inv.ID, amountCents)

	// A stale mirror with a different total is voided and replaced; the key
	// alone would otherwise force a new intent while the old one stays open.
	if inv.ProcessorInvoiceID != nil {
		existing, err := proc.RetrieveInvoice(ctx, *inv.ProcessorInvoiceID)
		if err != nil {
			return err
		}
		switch {
		case existing.Status == types.ProcessorInvoiceStatusPaid:
			// Settlement arrives through event ingestion.
			return nil
		case existing.AmountCents == amountCents:
			return nil
		default:
			if err := proc.VoidInvoice(ctx, *inv.ProcessorInvoiceID); err != nil {
				return err
			}
			s.commentInvoice(ctx, inv.ID, fmt.Sprintf(
				"Processor invoice %s voided: amount changed from %d to %d cents",
				*inv.ProcessorInvoiceID, existing.AmountCents, amountCents))
			inv.ProcessorInvoiceID = nil
			inv.ProcessorPaymentIntentID = nil
		}
	}

	created, err := proc.CreateInvoice(ctx, &processor.InvoiceRequest{
		CustomerID:     customerID,
		Currency:       inv.Currency,
		AmountCents:    amountCents,
		Description:    fmt.Sprintf("Invoice %s", inv.InvoiceNumber),
		IdempotencyKey: key,
		Metadata: map[string]string{
			"invoice_id": inv.ID,
			"tenant_id":  inv.TenantID,
		},
	})
	if err != nil {
		return err
	}

	finalized, err := proc.FinalizeInvoice(ctx, created.ProcessorInvoiceID)
	if err != nil {
		return err
	}

	inv.ProcessorInvoiceID = &finalized.ProcessorInvoiceID
	inv.IdempotencyKey = &key
	if finalized.PaymentIntentID != "" {
		inv.ProcessorPaymentIntentID = &finalized.PaymentIntentID
	}
	return nil
}

func (s *paymentService) ensureCustomer(ctx context.Context, proc processor.PaymentProcessor, t *tenantdomain.Tenant) (string, error) {
	if id := t.ProcessorCustomerID(proc.Name()); id != "" {
		return id, nil
	}

	id, err := proc.EnsureCustomer(ctx, &processor.CustomerRequest{
		TenantID: t.ID,
		Name:     t.Name,
		Email:    t.Email,
		Metadata: map[string]string{"tenant_id": t.ID},
	})
	if err != nil {
		return "", err
	}

	if t.ProcessorCustomerIDs == nil {
		t.ProcessorCustomerIDs = types.Metadata{}
	}
	t.ProcessorCustomerIDs[string(proc.Name())] = id
	if err := s.TenantRepo.Update(ctx, t); err != nil {
		return "", err
	}
	return id, nil
}

func (s *paymentService) IngestProcessorEvent(ctx context.Context, req *dto.IngestProcessorEventRequest) (*dto.ProcessorEventResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	proc, ok := s.processorFor(req.Processor)
	if !ok {
		return nil, ierr.NewError("unknown processor").
			WithReportableDetails(map[string]any{"processor": req.Processor}).
			Mark(ierr.ErrValidation)
	}

	event, err := proc.VerifyWebhookSignature(req.Payload, req.Signature)
	if err != nil {
		return nil, err
	}

	ctx = types.WithSystemCaller(ctx)

	// Repeat deliveries resolve against the stored event. Only attempts that
	// completed count as duplicates; a delivery whose processing failed is
	// re-run so the payment is applied at least once.
	existing, err := s.ProcessorEventRepo.GetByProcessorEventID(ctx, event.ProcessorEventID)
	switch {
	case err == nil && existing.Processed:
		return &dto.ProcessorEventResponse{Event: existing, Duplicate: true}, nil
	case err == nil:
		return s.processEvent(ctx, existing)
	case !ierr.IsNotFound(err):
		return nil, err
	}

	event.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PROCESSOR_EVENT)
	event.BaseModel = types.GetDefaultBaseModel(ctx)
	event.BaseModel.TenantID = types.DefaultTenantID // resolved once the invoice is known
	if err := s.ProcessorEventRepo.Create(ctx, event); err != nil {
		return nil, err
	}
	return s.processEvent(ctx, event)
}

// processEvent applies a stored event and persists the outcome on it.
func (s *paymentService) processEvent(ctx context.Context, event *processor.Event) (*dto.ProcessorEventResponse, error) {
	if err := s.applyEvent(ctx, event); err != nil {
		event.ProcessingError = err.Error()
		if updateErr := s.ProcessorEventRepo.Update(ctx, event); updateErr != nil {
			s.Logger.Errorw("failed to store processing error",
				"error", updateErr, "event_id", event.ID)
		}
		return nil, err
	}

	event.Processed = true
	event.ProcessingError = ""
	if err := s.ProcessorEventRepo.Update(ctx, event); err != nil {
		return nil, err
	}
	return &dto.ProcessorEventResponse{Event: event}, nil
}

func (s *paymentService) applyEvent(ctx context.Context, event *processor.Event) error {
	switch event.EventType {
	case types.ProcessorEventPaymentSucceeded:
		return s.onPaymentSucceeded(ctx, event)
	case types.ProcessorEventPaymentFailed:
		return s.onPaymentFailed(ctx, event)
	case types.ProcessorEventMandateActivated:
		return s.onMandateActivated(ctx, event)
	case types.ProcessorEventInvoiceFinalized:
		// Informational; our own state machine drives finalization.
		return nil
	default:
		s.Logger.Debugw("ignoring unhandled processor event type",
			"event_type", event.EventType, "event_id", event.ProcessorEventID)
		return nil
	}
}

func (s *paymentService) onPaymentSucceeded(ctx context.Context, event *processor.Event) error {
	inv, err := s.InvoiceRepo.GetByProcessorInvoiceID(ctx, event.ProcessorInvoiceID)
	if err != nil {
		return err
	}
	ctx = types.SetTenantID(ctx, inv.TenantID)
	event.TenantID = inv.TenantID

	proc, _ := s.processorFor(inv.ProcessorName)

	// Credits already settled this invoice; the out-of-band charge goes back.
	if inv.PaidByCredits() {
		if proc != nil {
			refundID, err := proc.RefundCharge(ctx, event.ProcessorInvoiceID)
			if err != nil {
				return err
			}
			inv.ProcessorRefundID = &refundID
			if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
				return err
			}
		}
		s.commentInvoice(ctx, inv.ID, fmt.Sprintf(
			"Charge %s refunded: invoice was already settled by credits", event.ChargeID))
		return nil
	}

	if inv.InvoiceStatus == types.InvoiceStatusPaid {
		return nil
	}

	invoiceSvc := NewInvoiceService(s.ServiceParams).(*invoiceService)
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		invoiceSvc.markPaid(inv, event.AmountDecimal())
		inv.LastPaymentError = ""
		inv.NextPaymentAttemptAt = nil
		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return err
		}

		// Prepaid top-up purchases convert into consumable credit.
		if inv.Type == types.InvoiceTypePrepaidCredits {
			ledgerSvc := NewLedgerService(s.ServiceParams)
			_, err := ledgerSvc.AllocateCredit(ctx, &dto.AllocateCreditRequest{
				Amount: event.AmountDecimal(),
				Source: types.CreditSourcePrepaid,
				Remark: fmt.Sprintf("Prepaid credits purchase, invoice %s", inv.InvoiceNumber),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	invoiceSvc.afterPaid(ctx, inv)
	return nil
}

func (s *paymentService) onPaymentFailed(ctx context.Context, event *processor.Event) error {
	inv, err := s.InvoiceRepo.GetByProcessorInvoiceID(ctx, event.ProcessorInvoiceID)
	if err != nil {
		return err
	}
	ctx = types.SetTenantID(ctx, inv.TenantID)
	event.TenantID = inv.TenantID

	// Credits settled this invoice in the meantime; drop the open mirror.
	if inv.PaidByCredits() {
		if proc, ok := s.processorFor(inv.ProcessorName); ok {
			if err := proc.VoidInvoice(ctx, event.ProcessorInvoiceID); err != nil {
				return err
			}
		}
		s.commentInvoice(ctx, inv.ID, "Processor invoice voided: already settled by credits")
		return nil
	}

	now := time.Now().UTC()
	next := now.AddDate(0, 0, 1)
	inv.InvoiceStatus = types.InvoiceStatusUnpaid
	inv.PaymentAttempts++
	inv.NextPaymentAttemptAt = &next
	inv.LastPaymentError = event.FailureMessage
	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		return err
	}

	s.commentInvoice(ctx, inv.ID, fmt.Sprintf(
		"Payment attempt %d failed: %s", inv.PaymentAttempts, event.FailureMessage))
	s.publishWebhook(ctx, types.WebhookEventInvoicePaymentFailed, inv)
	s.sendPaymentFailedEmail(ctx, inv)
	return nil
}

func (s *paymentService) onMandateActivated(ctx context.Context, event *processor.Event) error {
	// The customer id is the only handle we have on mandate events.
	tenants, err := s.TenantRepo.List(ctx, &tenantdomain.Filter{})
	if err != nil {
		return err
	}
	for _, t := range tenants {
		if t.ProcessorCustomerID(event.ProcessorName) != event.CustomerID {
			continue
		}
		ctx = types.SetTenantID(ctx, t.ID)
		event.TenantID = t.ID
		s.publishWebhook(ctx, types.WebhookEventMandateActivated, map[string]string{
			"tenant_id":   t.ID,
			"customer_id": event.CustomerID,
		})
		return nil
	}

	s.Logger.Warnw("mandate event for unknown customer",
		"customer_id", event.CustomerID, "processor", event.ProcessorName)
	return nil
}

func (s *paymentService) sendPaymentFailedEmail(ctx context.Context, inv *invoice.Invoice) {
	if s.EmailSender == nil {
		return
	}
	t, err := s.TenantRepo.Get(ctx, inv.TenantID)
	if err != nil || t.Email == "" {
		return
	}

	paymentLink := s.refreshPaymentLink(ctx, inv)
	if err := s.EmailSender.SendPaymentFailed(ctx, t.Email, inv.InvoiceNumber, paymentLink, inv.AmountDueWithTax, inv.Currency); err != nil {
		s.Logger.Errorw("failed to send payment failed email",
			"error", err, "invoice_id", inv.ID, "tenant_id", inv.TenantID)
	}
}

// refreshPaymentLink fetches the hosted invoice URL; processors expire old
// links, so the email always carries a fresh one.
func (s *paymentService) refreshPaymentLink(ctx context.Context, inv *invoice.Invoice) string {
	if inv.ProcessorInvoiceID == nil {
		return ""
	}
	proc, ok := s.processorFor(inv.ProcessorName)
	if !ok {
		return ""
	}
	result, err := proc.RetrieveInvoice(ctx, *inv.ProcessorInvoiceID)
	if err != nil {
		s.Logger.Warnw("failed to refresh payment link",
			"error", err, "invoice_id", inv.ID)
		return ""
	}
	return result.HostedInvoiceURL
}

func (s *paymentService) CreateSetupIntent(ctx context.Context) (*processor.SetupIntentResult, error) {
	if err := types.ValidateTenantContext(ctx); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPermissionDenied)
	}
	t, err := s.TenantRepo.Get(ctx, types.GetTenantID(ctx))
	if err != nil {
		return nil, err
	}

	proc, ok := s.processorFor(types.ProcessorStripe)
	if !ok {
		return nil, ierr.NewError("no processor configured").
			Mark(ierr.ErrInvalidOperation)
	}

	customerID, err := s.ensureCustomer(ctx, proc, t)
	if err != nil {
		return nil, err
	}
	return proc.CreateSetupIntent(ctx, customerID)
}

// commentInvoice mirrors invoiceService.comment for bridge-side trail notes.
func (s *paymentService) commentInvoice(ctx context.Context, invoiceID, content string) {
	err := s.InvoiceRepo.AddComment(ctx, &invoice.Comment{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COMMENT),
		InvoiceID: invoiceID,
		Content:   content,
		BaseModel: types.GetDefaultBaseModel(ctx),
	})
	if err != nil {
		s.Logger.Errorw("failed to record invoice comment",
			"error", err, "invoice_id", invoiceID)
	}
}
