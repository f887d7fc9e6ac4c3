package types

import (
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/samber/lo"
)

// ProcessorName identifies an external payment processor
type ProcessorName string

const (
	ProcessorStripe   ProcessorName = "stripe"
	ProcessorRazorpay ProcessorName = "razorpay"
)

func (p ProcessorName) Validate() error {
	allowedValues := []string{
		string(ProcessorStripe),
		string(ProcessorRazorpay),
	}
	if !lo.Contains(allowedValues, string(p)) {
		return ierr.NewError("invalid processor").
			WithHint("Invalid payment processor").
			WithReportableDetails(map[string]any{
				"allowed":   allowedValues,
				"processor": p,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ProcessorEventType is the normalized inbound event type. The mapping from
// processor-specific event strings happens in the processor adapter.
type ProcessorEventType string

const (
	ProcessorEventPaymentSucceeded ProcessorEventType = "payment.succeeded"
	ProcessorEventPaymentFailed    ProcessorEventType = "payment.failed"
	ProcessorEventInvoiceFinalized ProcessorEventType = "invoice.finalized"
	ProcessorEventMandateActivated ProcessorEventType = "mandate.activated"
)

// ProcessorInvoiceStatus is the processor-side invoice status
type ProcessorInvoiceStatus string

const (
	ProcessorInvoiceStatusDraft ProcessorInvoiceStatus = "draft"
	ProcessorInvoiceStatusOpen  ProcessorInvoiceStatus = "open"
	ProcessorInvoiceStatusPaid  ProcessorInvoiceStatus = "paid"
	ProcessorInvoiceStatusVoid  ProcessorInvoiceStatus = "void"
)
