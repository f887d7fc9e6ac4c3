package stripe

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/frappe/press-billing/internal/domain/processor"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// VerifyWebhookSignature authenticates an inbound Stripe event against the
// endpoint secret and normalizes it. Event types outside the mapping come
// back with their raw Stripe type so the caller can acknowledge and ignore
// them.
func (p *Processor) VerifyWebhookSignature(payload []byte, signature string) (*processor.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Stripe webhook signature verification failed").
			Mark(ierr.ErrPermissionDenied)
	}

	normalized := &processor.Event{
		ProcessorName:    types.ProcessorStripe,
		ProcessorEventID: event.ID,
		EventType:        types.ProcessorEventType(event.Type),
		Payload:          json.RawMessage(event.Data.Raw),
		OccurredAt:       time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case "invoice.paid":
		normalized.EventType = types.ProcessorEventPaymentSucceeded
		if err := p.normalizeInvoiceEvent(&event, normalized); err != nil {
			return nil, err
		}
	case "invoice.payment_failed":
		normalized.EventType = types.ProcessorEventPaymentFailed
		if err := p.normalizeInvoiceEvent(&event, normalized); err != nil {
			return nil, err
		}
	case "invoice.finalized":
		normalized.EventType = types.ProcessorEventInvoiceFinalized
		if err := p.normalizeInvoiceEvent(&event, normalized); err != nil {
			return nil, err
		}
	case "setup_intent.succeeded":
		var setupIntent stripe.SetupIntent
		if err := json.Unmarshal(event.Data.Raw, &setupIntent); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Invalid setup intent data in Stripe webhook").
				Mark(ierr.ErrValidation)
		}
		normalized.EventType = types.ProcessorEventMandateActivated
		if setupIntent.Customer != nil {
			normalized.CustomerID = setupIntent.Customer.ID
		}
	default:
		p.logger.Debugw("unmapped stripe webhook event type",
			"event_type", event.Type, "event_id", event.ID)
	}

	return normalized, nil
}

func (p *Processor) normalizeInvoiceEvent(event *stripe.Event, normalized *processor.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return ierr.WithError(err).
			WithHint("Invalid invoice data in Stripe webhook").
			WithReportableDetails(map[string]interface{}{
				"event_id":   event.ID,
				"event_type": event.Type,
			}).
			Mark(ierr.ErrValidation)
	}

	normalized.ProcessorInvoiceID = inv.ID
	normalized.PaymentIntentID = invoicePaymentIntentID(&inv)
	normalized.Currency = strings.ToUpper(string(inv.Currency))
	if inv.Customer != nil {
		normalized.CustomerID = inv.Customer.ID
	}

	switch normalized.EventType {
	case types.ProcessorEventPaymentSucceeded:
		normalized.AmountCents = inv.AmountPaid
	case types.ProcessorEventPaymentFailed:
		normalized.AmountCents = inv.AmountDue
		normalized.FailureMessage = "payment attempt failed"
		if inv.LastFinalizationError != nil && inv.LastFinalizationError.Msg != "" {
			normalized.FailureMessage = inv.LastFinalizationError.Msg
		}
	default:
		normalized.AmountCents = inv.AmountDue
	}
	return nil
}
