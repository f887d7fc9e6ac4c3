package service

import (
	"context"

	"github.com/frappe/press-billing/internal/api/dto"
	webhookdomain "github.com/frappe/press-billing/internal/domain/webhook"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// WebhookEndpointService manages tenant delivery endpoints and the manual
// requeue escape hatch for abandoned logs.
type WebhookEndpointService interface {
	CreateWebhook(ctx context.Context, req *dto.CreateWebhookRequest) (*dto.WebhookResponse, error)
	GetWebhook(ctx context.Context, id string) (*dto.WebhookResponse, error)
	UpdateWebhook(ctx context.Context, id string, req *dto.UpdateWebhookRequest) (*dto.WebhookResponse, error)
	DeleteWebhook(ctx context.Context, id string) error
	ListWebhooks(ctx context.Context) ([]*dto.WebhookResponse, error)

	GetLog(ctx context.Context, id string) (*dto.WebhookLogResponse, error)

	// RequeueLog resets an abandoned log so the dispatcher picks it up again.
	RequeueLog(ctx context.Context, id string) error
}

type webhookEndpointService struct {
	ServiceParams
}

func NewWebhookEndpointService(params ServiceParams) WebhookEndpointService {
	return &webhookEndpointService{ServiceParams: params}
}

func (s *webhookEndpointService) CreateWebhook(ctx context.Context, req *dto.CreateWebhookRequest) (*dto.WebhookResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := types.ValidateTenantContext(ctx); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPermissionDenied)
	}

	endpoint := &webhookdomain.Endpoint{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK),
		URL:       req.URL,
		Secret:    req.Secret,
		Enabled:   true,
		Events:    req.Events,
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	if err := endpoint.Validate(); err != nil {
		return nil, err
	}
	if err := s.WebhookEndpointRepo.Create(ctx, endpoint); err != nil {
		return nil, err
	}
	return dto.NewWebhookResponse(endpoint), nil
}

func (s *webhookEndpointService) GetWebhook(ctx context.Context, id string) (*dto.WebhookResponse, error) {
	endpoint, err := s.WebhookEndpointRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewWebhookResponse(endpoint), nil
}

func (s *webhookEndpointService) UpdateWebhook(ctx context.Context, id string, req *dto.UpdateWebhookRequest) (*dto.WebhookResponse, error) {
	endpoint, err := s.WebhookEndpointRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.URL != nil {
		endpoint.URL = *req.URL
	}
	if req.Secret != nil {
		endpoint.Secret = *req.Secret
	}
	if req.Enabled != nil {
		endpoint.Enabled = *req.Enabled
	}
	if req.Events != nil {
		endpoint.Events = *req.Events
	}

	if err := endpoint.Validate(); err != nil {
		return nil, err
	}
	if err := s.WebhookEndpointRepo.Update(ctx, endpoint); err != nil {
		return nil, err
	}
	return dto.NewWebhookResponse(endpoint), nil
}

func (s *webhookEndpointService) DeleteWebhook(ctx context.Context, id string) error {
	if _, err := s.WebhookEndpointRepo.Get(ctx, id); err != nil {
		return err
	}
	return s.WebhookEndpointRepo.Delete(ctx, id)
}

func (s *webhookEndpointService) ListWebhooks(ctx context.Context) ([]*dto.WebhookResponse, error) {
	endpoints, err := s.WebhookEndpointRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.WebhookResponse, 0, len(endpoints))
	for _, e := range endpoints {
		out = append(out, dto.NewWebhookResponse(e))
	}
	return out, nil
}

func (s *webhookEndpointService) GetLog(ctx context.Context, id string) (*dto.WebhookLogResponse, error) {
	log, err := s.WebhookLogRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	attempts, err := s.WebhookLogRepo.ListAttempts(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.WebhookLogResponse{Log: log, Attempts: attempts}, nil
}

func (s *webhookEndpointService) RequeueLog(ctx context.Context, id string) error {
	log, err := s.WebhookLogRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	if log.LogStatus != types.WebhookLogStatusFailed &&
		log.LogStatus != types.WebhookLogStatusPartiallySent {
		return ierr.NewError("only failed or partially sent logs can be requeued").
			WithReportableDetails(map[string]any{"status": log.LogStatus}).
			Mark(ierr.ErrInvalidState)
	}

	log.Retries = 0
	log.NextRetryAt = nil
	log.LogStatus = types.WebhookLogStatusPending
	return s.WebhookLogRepo.Update(ctx, log)
}
