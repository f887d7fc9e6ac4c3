package types

import (
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// InvoiceType represents the kind of invoice
type InvoiceType string

const (
	InvoiceTypeSubscription    InvoiceType = "subscription"
	InvoiceTypePrepaidCredits  InvoiceType = "prepaid_credits"
	InvoiceTypeService         InvoiceType = "service"
	InvoiceTypePartnershipFees InvoiceType = "partnership_fees"
)

func (t InvoiceType) Validate() error {
	allowedValues := []string{
		string(InvoiceTypeSubscription),
		string(InvoiceTypePrepaidCredits),
		string(InvoiceTypeService),
		string(InvoiceTypePartnershipFees),
	}
	if !lo.Contains(allowedValues, string(t)) {
		return ierr.NewError("invalid invoice type").
			WithHint("Invalid invoice type").
			WithReportableDetails(map[string]any{
				"allowed": allowedValues,
				"type":    t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// InvoiceStatus represents the state machine position of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusCreated       InvoiceStatus = "invoice_created"
	InvoiceStatusUnpaid        InvoiceStatus = "unpaid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusEmpty         InvoiceStatus = "empty"
	InvoiceStatusRefunded      InvoiceStatus = "refunded"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
	InvoiceStatusCollected     InvoiceStatus = "collected"
)

// IsTerminal reports whether no further transition is expected. Unpaid is
// not terminal: it flips to Paid through processor reconciliation.
func (s InvoiceStatus) IsTerminal() bool {
	switch s {
	case InvoiceStatusEmpty, InvoiceStatusRefunded, InvoiceStatusUncollectible, InvoiceStatusCollected:
		return true
	}
	return false
}

func (s InvoiceStatus) Validate() error {
	allowedValues := []string{
		string(InvoiceStatusDraft),
		string(InvoiceStatusCreated),
		string(InvoiceStatusUnpaid),
		string(InvoiceStatusPaid),
		string(InvoiceStatusEmpty),
		string(InvoiceStatusRefunded),
		string(InvoiceStatusUncollectible),
		string(InvoiceStatusCollected),
	}
	if !lo.Contains(allowedValues, string(s)) {
		return ierr.NewError("invalid invoice status").
			WithHint("Invalid invoice status").
			WithReportableDetails(map[string]any{
				"allowed": allowedValues,
				"status":  s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DefaultWriteOffThreshold is the residual below which amount_due is
// written off after credit application. Parameterized via billing config.
var DefaultWriteOffThreshold = decimal.NewFromFloat(0.1)
