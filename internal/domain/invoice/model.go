package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// Invoice accumulates usage for a billing period, then moves through
// finalization, payment collection and settlement.
type Invoice struct {
	ID            string              `db:"id" json:"id"`
	InvoiceNumber string              `db:"invoice_number" json:"invoice_number"`
	Type          types.InvoiceType   `db:"type" json:"type"`
	InvoiceStatus types.InvoiceStatus `db:"invoice_status" json:"invoice_status"`
	Currency      string              `db:"currency" json:"currency"`
	PaymentMode   types.PaymentMode   `db:"payment_mode" json:"payment_mode"`

	PeriodStart time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time  `db:"period_end" json:"period_end"`
	DueDate     *time.Time `db:"due_date" json:"due_date,omitempty"`

	// Subtotal is the sum of line item amounts before discounts.
	Subtotal decimal.Decimal `db:"subtotal" json:"subtotal"`
	// FlatDiscount is an invoice-level flat reduction applied after per-item
	// discounts.
	FlatDiscount  decimal.Decimal `db:"flat_discount" json:"flat_discount"`
	DiscountTotal decimal.Decimal `db:"discount_total" json:"discount_total"`
	// Total is Subtotal minus DiscountTotal.
	Total decimal.Decimal `db:"total" json:"total"`
	// TaxAmount is the GST portion added on top of the uncovered remainder,
	// zero when tax does not apply.
	TaxAmount decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	TaxRate   decimal.Decimal `db:"tax_rate" json:"tax_rate"`
	// AppliedCredits is the balance consumed against this invoice so far.
	AppliedCredits decimal.Decimal `db:"applied_credits" json:"applied_credits"`
	// AmountDue is Total minus AppliedCredits, floored at zero.
	AmountDue decimal.Decimal `db:"amount_due" json:"amount_due"`
	// AmountDueWithTax is what the processor collects: AmountDue + TaxAmount.
	AmountDueWithTax decimal.Decimal `db:"amount_due_with_tax" json:"amount_due_with_tax"`
	AmountPaid       decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	WriteOffAmount   decimal.Decimal `db:"write_off_amount" json:"write_off_amount"`

	ProcessorName            types.ProcessorName `db:"processor_name" json:"processor_name"`
	ProcessorInvoiceID       *string             `db:"processor_invoice_id" json:"processor_invoice_id,omitempty"`
	ProcessorPaymentIntentID *string             `db:"processor_payment_intent_id" json:"processor_payment_intent_id,omitempty"`
	IdempotencyKey           *string             `db:"idempotency_key" json:"idempotency_key,omitempty"`

	FinalizedAt          *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`
	PaidAt               *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	PaymentAttempts      int        `db:"payment_attempts" json:"payment_attempts"`
	NextPaymentAttemptAt *time.Time `db:"next_payment_attempt_at" json:"next_payment_attempt_at,omitempty"`
	LastPaymentError     string     `db:"last_payment_error" json:"last_payment_error,omitempty"`
	RefundedAt           *time.Time `db:"refunded_at" json:"refunded_at,omitempty"`
	ProcessorRefundID    *string    `db:"processor_refund_id" json:"processor_refund_id,omitempty"`
	BudgetAlertSent      bool       `db:"budget_alert_sent" json:"budget_alert_sent"`

	Metadata types.Metadata `db:"metadata" json:"metadata,omitempty"`

	// Items and Comments are loaded on demand, not stored on the invoice row.
	Items    []*InvoiceItem `db:"-" json:"items,omitempty"`
	Comments []*Comment     `db:"-" json:"comments,omitempty"`

	types.BaseModel
}

func (i *Invoice) TableName() string {
	return "invoices"
}

func (i *Invoice) Validate() error {
	if err := i.Type.Validate(); err != nil {
		return err
	}
	if err := i.InvoiceStatus.Validate(); err != nil {
		return err
	}
	if i.Currency == "" {
		return ierr.NewError("invoice currency is required").
			Mark(ierr.ErrValidation)
	}
	if i.Type == types.InvoiceTypeSubscription && i.PeriodEnd.Before(i.PeriodStart) {
		return ierr.NewError("invoice period end precedes period start").
			WithReportableDetails(map[string]any{
				"period_start": i.PeriodStart,
				"period_end":   i.PeriodEnd,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsDraft reports whether the invoice still accepts usage.
func (i *Invoice) IsDraft() bool {
	return i.InvoiceStatus == types.InvoiceStatusDraft
}

// IsSettled reports whether no further collection should happen.
func (i *Invoice) IsSettled() bool {
	return i.InvoiceStatus == types.InvoiceStatusPaid || i.InvoiceStatus.IsTerminal()
}

// RemainingDue is the uncollected remainder after credits, payments and
// write-offs.
func (i *Invoice) RemainingDue() decimal.Decimal {
	due := i.AmountDue.Sub(i.AmountPaid).Sub(i.WriteOffAmount)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// PaidByCredits reports whether credits alone settled the invoice.
func (i *Invoice) PaidByCredits() bool {
	return i.InvoiceStatus == types.InvoiceStatusPaid &&
		i.AmountPaid.IsZero() && i.AppliedCredits.IsPositive()
}

// InvoiceItem is one usage line on a draft invoice.
type InvoiceItem struct {
	ID        string `db:"id" json:"id"`
	InvoiceID string `db:"invoice_id" json:"invoice_id"`
	// SiteID names the hosted site the usage belongs to, when applicable.
	SiteID      string          `db:"site_id" json:"site_id,omitempty"`
	Description string          `db:"description" json:"description"`
	Plan        string          `db:"plan" json:"plan,omitempty"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Rate        decimal.Decimal `db:"rate" json:"rate"`
	// DiscountPercent is applied to Amount during finalization.
	DiscountPercent decimal.Decimal `db:"discount_percent" json:"discount_percent"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	// Date is the usage day the line covers for daily items.
	Date     *time.Time          `db:"date" json:"date,omitempty"`
	Interval types.UsageInterval `db:"interval" json:"interval"`
	Metadata types.Metadata      `db:"metadata" json:"metadata,omitempty"`
	types.BaseModel
}

func (ii *InvoiceItem) TableName() string {
	return "invoice_items"
}

func (ii *InvoiceItem) Validate() error {
	if ii.InvoiceID == "" {
		return ierr.NewError("invoice item requires an invoice id").
			Mark(ierr.ErrValidation)
	}
	if ii.Quantity.IsNegative() {
		return ierr.NewError("invoice item quantity cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CreditAllocation records balance applied to an invoice, one row per
// consumed credit transaction.
type CreditAllocation struct {
	ID                  string             `db:"id" json:"id"`
	InvoiceID           string             `db:"invoice_id" json:"invoice_id"`
	CreditTransactionID string             `db:"credit_transaction_id" json:"credit_transaction_id"`
	Amount              decimal.Decimal    `db:"amount" json:"amount"`
	Source              types.CreditSource `db:"source" json:"source"`
	types.BaseModel
}

func (ca *CreditAllocation) TableName() string {
	return "invoice_credit_allocations"
}

// Comment is a timestamped note on the invoice trail. System actors record
// state transitions here alongside user remarks.
type Comment struct {
	ID        string `db:"id" json:"id"`
	InvoiceID string `db:"invoice_id" json:"invoice_id"`
	Content   string `db:"content" json:"content"`
	types.BaseModel
}

func (c *Comment) TableName() string {
	return "invoice_comments"
}
