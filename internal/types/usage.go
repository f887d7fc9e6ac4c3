package types

import (
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/samber/lo"
)

// UsageInterval represents the granularity of a usage record
type UsageInterval string

const (
	UsageIntervalDaily   UsageInterval = "daily"
	UsageIntervalMonthly UsageInterval = "monthly"
)

func (i UsageInterval) Validate() error {
	allowedValues := []string{
		string(UsageIntervalDaily),
		string(UsageIntervalMonthly),
	}
	if !lo.Contains(allowedValues, string(i)) {
		return ierr.NewError("invalid usage interval").
			WithHint("Invalid usage interval").
			WithReportableDetails(map[string]any{
				"allowed":  allowedValues,
				"interval": i,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
