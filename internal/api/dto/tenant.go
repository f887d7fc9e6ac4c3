package dto

import (
	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/domain/tenant"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// CreateTenantRequest registers a new billing identity
type CreateTenantRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Currency string `json:"currency" binding:"required,len=3"`
}

func (r *CreateTenantRequest) Validate() error {
	if r.Name == "" || r.Email == "" {
		return ierr.NewError("name and email are required").
			Mark(ierr.ErrValidation)
	}
	if len(r.Currency) != 3 {
		return ierr.NewError("currency must be a 3-letter code").
			WithReportableDetails(map[string]any{"currency": r.Currency}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// UpdateTenantRequest mutates tenant billing settings. Nil fields are left
// unchanged; currency changes are rejected once locked.
type UpdateTenantRequest struct {
	Name                 *string            `json:"name,omitempty"`
	Email                *string            `json:"email,omitempty"`
	Currency             *string            `json:"currency,omitempty"`
	PaymentMode          *types.PaymentMode `json:"payment_mode,omitempty"`
	DefaultPaymentMethod *string            `json:"default_payment_method,omitempty"`
	Enabled              *bool              `json:"enabled,omitempty"`
	BudgetAlertThreshold *decimal.Decimal   `json:"budget_alert_threshold,omitempty"`
	FlatDiscount         *decimal.Decimal   `json:"flat_discount,omitempty"`
}

// TenantResponse is the API shape of a tenant
type TenantResponse struct {
	*tenant.Tenant
}
