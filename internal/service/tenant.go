package service

import (
	"context"
	"strings"

	"github.com/frappe/press-billing/internal/api/dto"
	"github.com/frappe/press-billing/internal/domain/invoice"
	"github.com/frappe/press-billing/internal/domain/tenant"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

type TenantService interface {
	CreateTenant(ctx context.Context, req *dto.CreateTenantRequest) (*dto.TenantResponse, error)
	GetTenant(ctx context.Context, id string) (*dto.TenantResponse, error)
	UpdateTenant(ctx context.Context, id string, req *dto.UpdateTenantRequest) (*dto.TenantResponse, error)

	// DeleteTenant disables and soft-deletes a tenant. Refused while any
	// unsettled invoice exists.
	DeleteTenant(ctx context.Context, id string) error
}

type tenantService struct {
	ServiceParams
}

func NewTenantService(params ServiceParams) TenantService {
	return &tenantService{ServiceParams: params}
}

func (s *tenantService) CreateTenant(ctx context.Context, req *dto.CreateTenantRequest) (*dto.TenantResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t := &tenant.Tenant{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TENANT),
		Name:      req.Name,
		Email:     req.Email,
		Currency:  strings.ToUpper(req.Currency),
		Enabled:   true,
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	t.BaseModel.TenantID = t.ID

	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.TenantRepo.Create(ctx, t); err != nil {
		return nil, err
	}

	return &dto.TenantResponse{Tenant: t}, nil
}

func (s *tenantService) GetTenant(ctx context.Context, id string) (*dto.TenantResponse, error) {
	t, err := s.TenantRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.TenantResponse{Tenant: t}, nil
}

func (s *tenantService) UpdateTenant(ctx context.Context, id string, req *dto.UpdateTenantRequest) (*dto.TenantResponse, error) {
	t, err := s.TenantRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Currency != nil && strings.ToUpper(*req.Currency) != t.Currency {
		if t.CurrencyLocked {
			return nil, ierr.NewError("currency is locked after the first invoice").
				WithReportableDetails(map[string]any{"currency": t.Currency}).
				Mark(ierr.ErrInvalidOperation)
		}
		t.Currency = strings.ToUpper(*req.Currency)
	}
	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.Email != nil {
		t.Email = *req.Email
	}
	if req.PaymentMode != nil {
		if err := req.PaymentMode.Validate(); err != nil {
			return nil, err
		}
		t.PaymentMode = *req.PaymentMode
	}
	if req.DefaultPaymentMethod != nil {
		t.DefaultPaymentMethod = *req.DefaultPaymentMethod
	}
	if req.Enabled != nil {
		t.Enabled = *req.Enabled
	}
	if req.BudgetAlertThreshold != nil {
		t.BudgetAlertThreshold = *req.BudgetAlertThreshold
	}
	if req.FlatDiscount != nil {
		t.FlatDiscount = *req.FlatDiscount
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.TenantRepo.Update(ctx, t); err != nil {
		return nil, err
	}
	return &dto.TenantResponse{Tenant: t}, nil
}

func (s *tenantService) DeleteTenant(ctx context.Context, id string) error {
	t, err := s.TenantRepo.Get(ctx, id)
	if err != nil {
		return err
	}

	unsettled, err := s.InvoiceRepo.Count(types.SetTenantID(ctx, t.ID), &invoice.Filter{
		Statuses: []types.InvoiceStatus{
			types.InvoiceStatusDraft,
			types.InvoiceStatusCreated,
			types.InvoiceStatusUnpaid,
		},
	})
	if err != nil {
		return err
	}
	if unsettled > 0 {
		return ierr.NewError("tenant has unsettled invoices").
			WithReportableDetails(map[string]any{"unsettled": unsettled}).
			Mark(ierr.ErrInvalidOperation)
	}

	t.Enabled = false
	t.Status = types.StatusDeleted
	return s.TenantRepo.Update(ctx, t)
}
