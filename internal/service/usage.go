package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/api/dto"
	"github.com/frappe/press-billing/internal/domain/invoice"
	"github.com/frappe/press-billing/internal/domain/usage"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/idempotency"
	"github.com/frappe/press-billing/internal/types"
)

// UsageService turns per-day consumption facts into draft invoice lines.
type UsageService interface {
	// RecordUsage submits one consumption fact and attaches it to the
	// tenant's upcoming invoice. A second submission of the same
	// (site, plan, interval, date) tuple fails and changes nothing.
	RecordUsage(ctx context.Context, req *dto.RecordUsageRequest) (*dto.UsageRecordResponse, error)

	// CancelUsage detaches a submitted record and decrements its invoice
	// line. Lines that reach zero quantity are pruned at finalize.
	CancelUsage(ctx context.Context, id string) error

	GetUsage(ctx context.Context, id string) (*dto.UsageRecordResponse, error)
	ListUsage(ctx context.Context, filter *usage.Filter) ([]*dto.UsageRecordResponse, error)

	// LinkUnlinkedUsage reattaches submitted records that lost their invoice,
	// up to limit records. Runs as a system job.
	LinkUnlinkedUsage(ctx context.Context, limit int) (int, error)
}

type usageService struct {
	ServiceParams
}

func NewUsageService(params ServiceParams) UsageService {
	return &usageService{ServiceParams: params}
}

func (s *usageService) RecordUsage(ctx context.Context, req *dto.RecordUsageRequest) (*dto.UsageRecordResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := types.ValidateTenantContext(ctx); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPermissionDenied)
	}

	tenant, err := s.TenantRepo.Get(ctx, types.GetTenantID(ctx))
	if err != nil {
		return nil, err
	}

	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}
	date = types.DateOnly(date)

	quantity := req.Quantity
	if quantity.IsZero() {
		quantity = decimal.NewFromInt(1)
	}
	// Fractional auto-scale hours are kept to 2 decimals.
	quantity = quantity.Round(2)

	key := s.IdempotencyGen.GenerateKey(idempotency.ScopeUsageRecord, map[string]interface{}{
		"tenant_id": tenant.ID,
		"site_id":   req.SiteID,
		"plan":      req.Plan,
		"interval":  string(req.Interval),
		"date":      date.Format(time.DateOnly),
	})

	if existing, err := s.UsageRepo.GetByIdempotencyKey(ctx, key); err == nil {
		return nil, ierr.NewError("usage already recorded for this site, plan and day").
			WithReportableDetails(map[string]any{
				"existing_record_id": existing.ID,
				"idempotency_key":    key,
			}).
			Mark(ierr.ErrAlreadyExists)
	} else if !ierr.IsNotFound(err) {
		return nil, err
	}

	record := &usage.Record{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_RECORD),
		SiteID:         req.SiteID,
		Plan:           req.Plan,
		Interval:       req.Interval,
		Date:           date,
		Quantity:       quantity,
		Rate:           req.Rate,
		Amount:         quantity.Mul(req.Rate).Round(2),
		Currency:       tenant.Currency,
		IdempotencyKey: key,
		Submitted:      true,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.UsageRepo.Create(ctx, record); err != nil {
			return err
		}
		return s.attach(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	return &dto.UsageRecordResponse{Record: record}, nil
}

// attach places the record on the tenant's upcoming invoice, incrementing an
// existing matching line or appending a new one.
func (s *usageService) attach(ctx context.Context, record *usage.Record) error {
	invoiceSvc := NewInvoiceService(s.ServiceParams)
	inv, err := invoiceSvc.GetOrCreateUpcoming(ctx, record.Date)
	if err != nil {
		return err
	}

	item, err := s.InvoiceRepo.GetItemForUsage(ctx, inv.ID, record.SiteID, record.Plan, record.Rate)
	switch {
	case err == nil:
		item.Quantity = item.Quantity.Add(record.Quantity)
		item.Amount = item.Quantity.Mul(item.Rate).Round(2)
		if err := s.InvoiceRepo.UpdateItem(ctx, item); err != nil {
			return err
		}
	case ierr.IsNotFound(err):
		item = invoiceItemFromUsage(ctx, record, inv.ID)
		if err := s.InvoiceRepo.CreateItem(ctx, item); err != nil {
			return err
		}
	default:
		return err
	}

	record.InvoiceID = &inv.ID
	record.InvoiceItemID = &item.ID
	return s.UsageRepo.Update(ctx, record)
}

func invoiceItemFromUsage(ctx context.Context, record *usage.Record, invoiceID string) *invoice.InvoiceItem {
	date := record.Date
	description := record.Plan
	if record.SiteID != "" {
		description = record.SiteID + " - " + record.Plan
	}
	return &invoice.InvoiceItem{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM),
		InvoiceID:   invoiceID,
		SiteID:      record.SiteID,
		Description: description,
		Plan:        record.Plan,
		Quantity:    record.Quantity,
		Rate:        record.Rate,
		Amount:      record.Quantity.Mul(record.Rate).Round(2),
		Date:        &date,
		Interval:    record.Interval,
		BaseModel:   types.GetDefaultBaseModel(ctx),
	}
}

func (s *usageService) CancelUsage(ctx context.Context, id string) error {
	record, err := s.UsageRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !record.Submitted {
		return ierr.NewError("usage record is not submitted").
			Mark(ierr.ErrInvalidState)
	}

	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		if record.IsLinked() && record.InvoiceItemID != nil {
			items, err := s.InvoiceRepo.ListItems(ctx, *record.InvoiceID)
			if err != nil {
				return err
			}
			for _, item := range items {
				if item.ID != *record.InvoiceItemID {
					continue
				}
				item.Quantity = decimal.Max(decimal.Zero, item.Quantity.Sub(record.Quantity))
				item.Amount = item.Quantity.Mul(item.Rate).Round(2)
				if err := s.InvoiceRepo.UpdateItem(ctx, item); err != nil {
					return err
				}
				break
			}
		}

		record.Submitted = false
		record.InvoiceID = nil
		record.InvoiceItemID = nil
		record.Status = types.StatusDeleted
		return s.UsageRepo.Update(ctx, record)
	})
}

func (s *usageService) GetUsage(ctx context.Context, id string) (*dto.UsageRecordResponse, error) {
	record, err := s.UsageRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.UsageRecordResponse{Record: record}, nil
}

func (s *usageService) ListUsage(ctx context.Context, filter *usage.Filter) ([]*dto.UsageRecordResponse, error) {
	if filter == nil {
		filter = &usage.Filter{}
	}
	records, err := s.UsageRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.UsageRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, &dto.UsageRecordResponse{Record: r})
	}
	return out, nil
}

func (s *usageService) LinkUnlinkedUsage(ctx context.Context, limit int) (int, error) {
	ctx = types.WithSystemCaller(ctx)
	records, err := s.UsageRepo.ListUnlinked(ctx, limit)
	if err != nil {
		return 0, err
	}

	linked := 0
	for _, record := range records {
		tenantCtx := types.SetTenantID(ctx, record.TenantID)
		err := s.DB.WithTx(tenantCtx, func(ctx context.Context) error {
			return s.attach(ctx, record)
		})
		if err != nil {
			// One tenant's failure never blocks the rest of the sweep.
			s.Logger.Errorw("failed to relink usage record",
				"error", err, "record_id", record.ID, "tenant_id", record.TenantID)
			continue
		}
		linked++
	}
	return linked, nil
}
