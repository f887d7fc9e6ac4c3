package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/domain/invoice"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// CreateInvoiceRequest opens a new draft invoice. Subscription invoices are
// normally created implicitly by usage submission; the explicit form exists
// for service and partnership invoices and for tests.
type CreateInvoiceRequest struct {
	Type        types.InvoiceType          `json:"type"`
	PeriodStart time.Time                  `json:"period_start"`
	PeriodEnd   time.Time                  `json:"period_end"`
	Items       []CreateInvoiceItemRequest `json:"items"`
}

type CreateInvoiceItemRequest struct {
	SiteID          string          `json:"site_id"`
	Description     string          `json:"description"`
	Plan            string          `json:"plan"`
	Quantity        decimal.Decimal `json:"quantity"`
	Rate            decimal.Decimal `json:"rate"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

func (r *CreateInvoiceRequest) Validate() error {
	if r.Type == "" {
		r.Type = types.InvoiceTypeSubscription
	}
	if err := r.Type.Validate(); err != nil {
		return err
	}
	for _, item := range r.Items {
		if item.Quantity.IsNegative() || item.Rate.IsNegative() {
			return ierr.NewError("item quantity and rate cannot be negative").
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// InvoiceResponse is the API shape of an invoice
type InvoiceResponse struct {
	*invoice.Invoice
}

// ListInvoicesResponse pages invoices newest first
type ListInvoicesResponse struct {
	Items []*InvoiceResponse `json:"items"`
	Total int                `json:"total"`
}

// AddCommentRequest appends a note to the invoice trail
type AddCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

func (r *AddCommentRequest) Validate() error {
	if r.Content == "" {
		return ierr.NewError("comment content is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// RefundInvoiceRequest refunds a settled invoice
type RefundInvoiceRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (r *RefundInvoiceRequest) Validate() error {
	if r.Reason == "" {
		return ierr.NewError("refund reason is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}
