package webhook

import (
	"context"

	"github.com/frappe/press-billing/internal/config"
	"github.com/frappe/press-billing/internal/logger"
	pubsubRouter "github.com/frappe/press-billing/internal/pubsub/router"
	"github.com/frappe/press-billing/internal/webhook/publisher"
)

// Registrar attaches a consumer to the message router. Declared here to
// avoid a dependency on the handler package.
type Registrar interface {
	RegisterHandler(router *pubsubRouter.Router)
}

// WebhookService orchestrates webhook delivery infrastructure
type WebhookService struct {
	config    *config.Configuration
	publisher publisher.WebhookPublisher
	handler   Registrar
	router    *pubsubRouter.Router
	logger    *logger.Logger
}

func NewWebhookService(
	cfg *config.Configuration,
	pub publisher.WebhookPublisher,
	h Registrar,
	router *pubsubRouter.Router,
	l *logger.Logger,
) *WebhookService {
	return &WebhookService{
		config:    cfg,
		publisher: pub,
		handler:   h,
		router:    router,
		logger:    l,
	}
}

// Start registers the consumer on the router. The router itself is run by
// the application lifecycle.
func (s *WebhookService) Start(ctx context.Context) error {
	if !s.config.Webhook.Enabled {
		s.logger.Info("webhook service disabled")
		return nil
	}

	s.handler.RegisterHandler(s.router)
	s.logger.Info("webhook service started")
	return nil
}

// Stop closes the publisher side of the bus.
func (s *WebhookService) Stop() error {
	if err := s.publisher.Close(); err != nil {
		s.logger.Errorw("failed to close webhook publisher", "error", err)
		return err
	}
	s.logger.Info("webhook service stopped")
	return nil
}
