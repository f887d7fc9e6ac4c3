package types

import (
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/samber/lo"
)

// TransactionType represents the kind of balance transaction appended to the ledger
type TransactionType string

const (
	TransactionTypeAdjustment       TransactionType = "adjustment"
	TransactionTypeAppliedToInvoice TransactionType = "applied_to_invoice"
	TransactionTypePartnershipFee   TransactionType = "partnership_fee"
)

func (t TransactionType) Validate() error {
	allowedValues := []string{
		string(TransactionTypeAdjustment),
		string(TransactionTypeAppliedToInvoice),
		string(TransactionTypePartnershipFee),
	}
	if !lo.Contains(allowedValues, string(t)) {
		return ierr.NewError("invalid transaction type").
			WithHint("Invalid transaction type").
			WithReportableDetails(map[string]any{
				"allowed": allowedValues,
				"type":    t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CreditSource represents where a credit adjustment came from.
// The empty source is valid and used for manual settlement entries.
type CreditSource string

const (
	CreditSourceNone        CreditSource = ""
	CreditSourcePrepaid     CreditSource = "prepaid_credits"
	CreditSourceFree        CreditSource = "free_credits"
	CreditSourceTransferred CreditSource = "transferred_credits"
)

func (s CreditSource) Validate() error {
	if s == CreditSourceNone {
		return nil
	}

	allowedValues := []string{
		string(CreditSourcePrepaid),
		string(CreditSourceFree),
		string(CreditSourceTransferred),
	}
	if !lo.Contains(allowedValues, string(s)) {
		return ierr.NewError("invalid credit source").
			WithHint("Invalid credit source").
			WithReportableDetails(map[string]any{
				"allowed": allowedValues,
				"source":  s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
