package tenant

import (
	"github.com/shopspring/decimal"

	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// Tenant is the unit of billing identity. It owns a currency, a payment
// mode and one external customer id per processor.
type Tenant struct {
	ID                   string            `db:"id" json:"id"`
	Name                 string            `db:"name" json:"name"`
	Email                string            `db:"email" json:"email"`
	Currency             string            `db:"currency" json:"currency"`
	PaymentMode          types.PaymentMode `db:"payment_mode" json:"payment_mode"`
	DefaultPaymentMethod string            `db:"default_payment_method" json:"default_payment_method"`
	ProcessorCustomerIDs types.Metadata    `db:"processor_customer_ids" json:"processor_customer_ids"`
	BillingAddressID     *string           `db:"billing_address_id" json:"billing_address_id,omitempty"`
	Enabled              bool              `db:"enabled" json:"enabled"`
	// CurrencyLocked is set once the first invoice exists; the currency can
	// no longer change after that.
	CurrencyLocked bool `db:"currency_locked" json:"currency_locked"`
	// BudgetAlertThreshold is the per-tenant month-to-date spend threshold.
	// Zero disables the alert.
	BudgetAlertThreshold decimal.Decimal `db:"budget_alert_threshold" json:"budget_alert_threshold"`
	// FlatDiscount is deducted from every subscription invoice total, used
	// for non-profit accounts.
	FlatDiscount decimal.Decimal `db:"flat_discount" json:"flat_discount"`
	types.BaseModel
}

func (t *Tenant) TableName() string {
	return "tenants"
}

func (t *Tenant) Validate() error {
	if t.Currency == "" {
		return ierr.NewError("currency is required").
			WithHint("Tenant currency must be set before billing").
			Mark(ierr.ErrValidation)
	}
	if err := t.PaymentMode.Validate(); err != nil {
		return err
	}
	return nil
}

// ProcessorCustomerID returns the external customer id for a processor, if set.
func (t *Tenant) ProcessorCustomerID(processor types.ProcessorName) string {
	if t.ProcessorCustomerIDs == nil {
		return ""
	}
	return t.ProcessorCustomerIDs[string(processor)]
}
