package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/domain/usage"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// RecordUsageRequest submits one day of metered consumption for a site.
type RecordUsageRequest struct {
	SiteID   string              `json:"site_id" binding:"required"`
	Plan     string              `json:"plan" binding:"required"`
	Interval types.UsageInterval `json:"interval"`
	Date     time.Time           `json:"date"`
	// Quantity defaults to 1; fractional quantities carry auto-scale hours.
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate" binding:"required"`
	Description string          `json:"description"`
}

func (r *RecordUsageRequest) Validate() error {
	if r.SiteID == "" || r.Plan == "" {
		return ierr.NewError("site_id and plan are required").
			Mark(ierr.ErrValidation)
	}
	if r.Interval == "" {
		r.Interval = types.UsageIntervalDaily
	}
	if err := r.Interval.Validate(); err != nil {
		return err
	}
	if r.Quantity.IsNegative() {
		return ierr.NewError("quantity cannot be negative").
			Mark(ierr.ErrValidation)
	}
	if r.Rate.IsNegative() {
		return ierr.NewError("rate cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// UsageRecordResponse is the API shape of a usage record
type UsageRecordResponse struct {
	*usage.Record
}
