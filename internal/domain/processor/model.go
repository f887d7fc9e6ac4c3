package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/types"
)

// PaymentProcessor abstracts the external payment gateway. Amounts cross the
// boundary in the currency's smallest unit.
type PaymentProcessor interface {
	Name() types.ProcessorName

	// EnsureCustomer returns the existing external customer id or creates one.
	EnsureCustomer(ctx context.Context, req *CustomerRequest) (string, error)

	// CreateInvoice creates a draft invoice on the processor. The idempotency
	// key makes retries of the same invoice and amount safe.
	CreateInvoice(ctx context.Context, req *InvoiceRequest) (*InvoiceResult, error)

	// FinalizeInvoice moves the processor invoice to open and begins
	// collection against the customer's default payment method.
	FinalizeInvoice(ctx context.Context, processorInvoiceID string) (*InvoiceResult, error)

	// VoidInvoice cancels an open processor invoice.
	VoidInvoice(ctx context.Context, processorInvoiceID string) error

	RetrieveInvoice(ctx context.Context, processorInvoiceID string) (*InvoiceResult, error)

	// RefundCharge refunds the charge behind a paid processor invoice and
	// returns the refund id.
	RefundCharge(ctx context.Context, processorInvoiceID string) (string, error)

	// CreateSetupIntent starts mandate collection for off-session charging.
	CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntentResult, error)

	// VerifyWebhookSignature authenticates an inbound event body and returns
	// the parsed event.
	VerifyWebhookSignature(payload []byte, signature string) (*Event, error)
}

type CustomerRequest struct {
	TenantID string
	Name     string
	Email    string
	Metadata map[string]string
}

type InvoiceRequest struct {
	CustomerID     string
	Currency       string
	AmountCents    int64
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

type InvoiceResult struct {
	ProcessorInvoiceID string
	PaymentIntentID    string
	ChargeID           string
	Status             types.ProcessorInvoiceStatus
	AmountCents        int64
	Currency           string
	HostedInvoiceURL   string
}

type SetupIntentResult struct {
	SetupIntentID string
	ClientSecret  string
}

// Event is an inbound processor notification, normalized across gateways.
type Event struct {
	ID                 string                   `db:"id" json:"id"`
	ProcessorName      types.ProcessorName      `db:"processor_name" json:"processor_name"`
	ProcessorEventID   string                   `db:"processor_event_id" json:"processor_event_id"`
	EventType          types.ProcessorEventType `db:"event_type" json:"event_type"`
	ProcessorInvoiceID string                   `db:"processor_invoice_id" json:"processor_invoice_id,omitempty"`
	PaymentIntentID    string                   `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	ChargeID           string                   `db:"charge_id" json:"charge_id,omitempty"`
	CustomerID         string                   `db:"customer_id" json:"customer_id,omitempty"`
	AmountCents        int64                    `db:"amount_cents" json:"amount_cents"`
	Currency           string                   `db:"currency" json:"currency,omitempty"`
	FailureMessage     string                   `db:"failure_message" json:"failure_message,omitempty"`
	Payload            json.RawMessage          `db:"payload" json:"payload,omitempty"`
	OccurredAt         time.Time                `db:"occurred_at" json:"occurred_at"`
	Processed          bool                     `db:"processed" json:"processed"`
	ProcessingError    string                   `db:"processing_error" json:"processing_error,omitempty"`
	types.BaseModel
}

func (e *Event) TableName() string {
	return "processor_events"
}

// AmountDecimal converts the smallest-unit amount to the major unit.
func (e *Event) AmountDecimal() decimal.Decimal {
	return decimal.NewFromInt(e.AmountCents).Div(decimal.NewFromInt(100))
}
