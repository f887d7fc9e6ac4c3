package stripe

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v82"

	"github.com/frappe/press-billing/internal/domain/processor"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// CreateInvoice creates a draft Stripe invoice carrying a single line item
// for the full amount due. The idempotency key is attached to both calls so
// a retried create cannot double up line items.
func (p *Processor) CreateInvoice(ctx context.Context, req *processor.InvoiceRequest) (*processor.InvoiceResult, error) {
	params := &stripe.InvoiceCreateParams{
		Customer:         stripe.String(req.CustomerID),
		Currency:         stripe.String(strings.ToLower(req.Currency)),
		AutoAdvance:      stripe.Bool(false),
		Description:      stripe.String(req.Description),
		CollectionMethod: stripe.String(string(stripe.InvoiceCollectionMethodChargeAutomatically)),
		Metadata:         req.Metadata,
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	inv, err := p.client.V1Invoices.Create(ctx, params)
	if err != nil {
		return nil, p.wrapErr(err, "Unable to create Stripe invoice", map[string]interface{}{
			"stripe_customer_id": req.CustomerID,
			"amount_cents":       req.AmountCents,
		})
	}

	itemParams := &stripe.InvoiceItemCreateParams{
		Customer:    stripe.String(req.CustomerID),
		Invoice:     stripe.String(inv.ID),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Amount:      stripe.Int64(req.AmountCents),
		Description: stripe.String(req.Description),
		Metadata:    req.Metadata,
	}
	if req.IdempotencyKey != "" {
		itemParams.SetIdempotencyKey(req.IdempotencyKey + ":item")
	}

	if _, err := p.client.V1InvoiceItems.Create(ctx, itemParams); err != nil {
		return nil, p.wrapErr(err, "Unable to add line item to Stripe invoice", map[string]interface{}{
			"stripe_invoice_id": inv.ID,
			"amount_cents":      req.AmountCents,
		})
	}

	p.logger.Infow("created stripe invoice",
		"stripe_invoice_id", inv.ID,
		"stripe_customer_id", req.CustomerID,
		"amount_cents", req.AmountCents)
	return invoiceResult(inv), nil
}

// FinalizeInvoice moves a draft Stripe invoice to open, which starts
// collection against the customer's default payment method.
func (p *Processor) FinalizeInvoice(ctx context.Context, processorInvoiceID string) (*processor.InvoiceResult, error) {
	inv, err := p.client.V1Invoices.FinalizeInvoice(ctx, processorInvoiceID, &stripe.InvoiceFinalizeInvoiceParams{
		AutoAdvance: stripe.Bool(true),
	})
	if err != nil {
		return nil, p.wrapErr(err, "Unable to finalize Stripe invoice", map[string]interface{}{
			"stripe_invoice_id": processorInvoiceID,
		})
	}
	return invoiceResult(inv), nil
}

func (p *Processor) VoidInvoice(ctx context.Context, processorInvoiceID string) error {
	_, err := p.client.V1Invoices.VoidInvoice(ctx, processorInvoiceID, &stripe.InvoiceVoidInvoiceParams{})
	if err != nil {
		return p.wrapErr(err, "Unable to void Stripe invoice", map[string]interface{}{
			"stripe_invoice_id": processorInvoiceID,
		})
	}
	return nil
}

func (p *Processor) RetrieveInvoice(ctx context.Context, processorInvoiceID string) (*processor.InvoiceResult, error) {
	inv, err := p.client.V1Invoices.Retrieve(ctx, processorInvoiceID, nil)
	if err != nil {
		return nil, p.wrapErr(err, "Unable to retrieve Stripe invoice", map[string]interface{}{
			"stripe_invoice_id": processorInvoiceID,
		})
	}
	return invoiceResult(inv), nil
}

// RefundCharge refunds the payment behind a paid Stripe invoice and returns
// the refund id.
func (p *Processor) RefundCharge(ctx context.Context, processorInvoiceID string) (string, error) {
	retrieveParams := &stripe.InvoiceRetrieveParams{}
	retrieveParams.AddExpand("payments.data.payment.payment_intent")

	inv, err := p.client.V1Invoices.Retrieve(ctx, processorInvoiceID, retrieveParams)
	if err != nil {
		return "", p.wrapErr(err, "Unable to retrieve Stripe invoice for refund", map[string]interface{}{
			"stripe_invoice_id": processorInvoiceID,
		})
	}

	paymentIntentID := invoicePaymentIntentID(inv)
	if paymentIntentID == "" {
		return "", ierr.NewError("no payment found on Stripe invoice").
			WithHint("The invoice has no settled payment to refund").
			WithReportableDetails(map[string]interface{}{
				"stripe_invoice_id": processorInvoiceID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	refund, err := p.client.V1Refunds.Create(ctx, &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(paymentIntentID),
	})
	if err != nil {
		return "", p.wrapErr(err, "Unable to refund Stripe payment", map[string]interface{}{
			"stripe_invoice_id": processorInvoiceID,
			"payment_intent_id": paymentIntentID,
		})
	}

	p.logger.Infow("refunded stripe payment",
		"stripe_invoice_id", processorInvoiceID,
		"payment_intent_id", paymentIntentID,
		"refund_id", refund.ID)
	return refund.ID, nil
}

func invoiceResult(inv *stripe.Invoice) *processor.InvoiceResult {
	return &processor.InvoiceResult{
		ProcessorInvoiceID: inv.ID,
		PaymentIntentID:    invoicePaymentIntentID(inv),
		Status:             invoiceStatus(inv.Status),
		AmountCents:        inv.AmountDue,
		Currency:           strings.ToUpper(string(inv.Currency)),
		HostedInvoiceURL:   inv.HostedInvoiceURL,
	}
}

func invoicePaymentIntentID(inv *stripe.Invoice) string {
	if inv.Payments == nil {
		return ""
	}
	for _, p := range inv.Payments.Data {
		if p.Payment != nil && p.Payment.PaymentIntent != nil {
			return p.Payment.PaymentIntent.ID
		}
	}
	return ""
}

func invoiceStatus(status stripe.InvoiceStatus) types.ProcessorInvoiceStatus {
	switch status {
	case stripe.InvoiceStatusDraft:
		return types.ProcessorInvoiceStatusDraft
	case stripe.InvoiceStatusOpen:
		return types.ProcessorInvoiceStatusOpen
	case stripe.InvoiceStatusPaid:
		return types.ProcessorInvoiceStatusPaid
	default:
		return types.ProcessorInvoiceStatusVoid
	}
}
