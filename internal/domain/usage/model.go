package usage

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// Record is one submitted unit of metered usage. Records are idempotent on
// (site, plan, date, interval) per tenant and attach to a draft invoice line.
type Record struct {
	ID       string              `db:"id" json:"id"`
	SiteID   string              `db:"site_id" json:"site_id"`
	Plan     string              `db:"plan" json:"plan"`
	Interval types.UsageInterval `db:"interval" json:"interval"`
	// Date is the usage day, truncated to midnight UTC.
	Date     time.Time       `db:"date" json:"date"`
	Quantity decimal.Decimal `db:"quantity" json:"quantity"`
	Rate     decimal.Decimal `db:"rate" json:"rate"`
	Amount   decimal.Decimal `db:"amount" json:"amount"`
	Currency string          `db:"currency" json:"currency"`
	// IdempotencyKey dedupes repeat submissions of the same usage.
	IdempotencyKey string `db:"idempotency_key" json:"idempotency_key"`
	Submitted      bool   `db:"submitted" json:"submitted"`
	// InvoiceID and InvoiceItemID are nil until the record is attached to a
	// draft invoice.
	InvoiceID     *string        `db:"invoice_id" json:"invoice_id,omitempty"`
	InvoiceItemID *string        `db:"invoice_item_id" json:"invoice_item_id,omitempty"`
	Metadata      types.Metadata `db:"metadata" json:"metadata,omitempty"`
	types.BaseModel
}

func (r *Record) TableName() string {
	return "usage_records"
}

func (r *Record) Validate() error {
	if r.SiteID == "" {
		return ierr.NewError("usage record requires a site").
			Mark(ierr.ErrValidation)
	}
	if r.Plan == "" {
		return ierr.NewError("usage record requires a plan").
			Mark(ierr.ErrValidation)
	}
	if err := r.Interval.Validate(); err != nil {
		return err
	}
	if !r.Quantity.IsPositive() {
		return ierr.NewError("usage quantity must be positive").
			WithReportableDetails(map[string]any{"quantity": r.Quantity}).
			Mark(ierr.ErrValidation)
	}
	if r.Rate.IsNegative() {
		return ierr.NewError("usage rate cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsLinked reports whether the record already sits on an invoice.
func (r *Record) IsLinked() bool {
	return r.InvoiceID != nil && *r.InvoiceID != ""
}
