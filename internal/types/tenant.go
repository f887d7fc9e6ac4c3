package types

import (
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/samber/lo"
)

// PaymentMode represents how a tenant settles its invoices
type PaymentMode string

const (
	PaymentModeUnset          PaymentMode = ""
	PaymentModeCard           PaymentMode = "card"
	PaymentModePrepaidCredits PaymentMode = "prepaid_credits"
	PaymentModePaidByPartner  PaymentMode = "paid_by_partner"
	PaymentModeUPIAutopay     PaymentMode = "upi_autopay"
)

func (m PaymentMode) Validate() error {
	if m == PaymentModeUnset {
		return nil
	}

	allowedValues := []string{
		string(PaymentModeCard),
		string(PaymentModePrepaidCredits),
		string(PaymentModePaidByPartner),
		string(PaymentModeUPIAutopay),
	}
	if !lo.Contains(allowedValues, string(m)) {
		return ierr.NewError("invalid payment mode").
			WithHint("Invalid payment mode").
			WithReportableDetails(map[string]any{
				"allowed": allowedValues,
				"mode":    m,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CanAutoCharge reports whether the payment mode lets the processor collect
// the remainder without tenant action.
func (m PaymentMode) CanAutoCharge() bool {
	return m == PaymentModeCard || m == PaymentModeUPIAutopay
}
