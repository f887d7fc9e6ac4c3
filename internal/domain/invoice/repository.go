package invoice

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/types"
)

type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, filter *Filter) ([]*Invoice, error)
	Count(ctx context.Context, filter *Filter) (int, error)

	// GetDraftForPeriod returns the tenant's draft subscription invoice
	// covering the given instant, or a not-found error.
	GetDraftForPeriod(ctx context.Context, at time.Time) (*Invoice, error)

	// ExistsOverlapping reports whether any non-terminal subscription invoice
	// for the tenant overlaps the given period, excluding excludeID.
	ExistsOverlapping(ctx context.Context, periodStart, periodEnd time.Time, excludeID string) (bool, error)

	// GetByProcessorInvoiceID resolves an invoice from its external reference
	// across all tenants; used by inbound processor events.
	GetByProcessorInvoiceID(ctx context.Context, processorInvoiceID string) (*Invoice, error)

	CreateItem(ctx context.Context, item *InvoiceItem) error
	UpdateItem(ctx context.Context, item *InvoiceItem) error
	ListItems(ctx context.Context, invoiceID string) ([]*InvoiceItem, error)

	// GetItemForUsage returns the draft line matching a usage record's site,
	// plan and rate so consecutive days accumulate on one line.
	GetItemForUsage(ctx context.Context, invoiceID, siteID, plan string, rate decimal.Decimal) (*InvoiceItem, error)

	CreateCreditAllocation(ctx context.Context, ca *CreditAllocation) error
	ListCreditAllocations(ctx context.Context, invoiceID string) ([]*CreditAllocation, error)

	AddComment(ctx context.Context, c *Comment) error
	ListComments(ctx context.Context, invoiceID string) ([]*Comment, error)
}

type Filter struct {
	Types        []types.InvoiceType
	Statuses     []types.InvoiceStatus
	PeriodEndLTE *time.Time
	DueDateLTE   *time.Time
	AllTenants   bool
	Limit        int
	Offset       int
}
