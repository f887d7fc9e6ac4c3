package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/frappe/press-billing/internal/config"
	"github.com/frappe/press-billing/internal/domain/invoice"
	"github.com/frappe/press-billing/internal/domain/ledger"
	"github.com/frappe/press-billing/internal/domain/processor"
	"github.com/frappe/press-billing/internal/domain/tenant"
	"github.com/frappe/press-billing/internal/domain/usage"
	webhookdomain "github.com/frappe/press-billing/internal/domain/webhook"
	"github.com/frappe/press-billing/internal/email"
	"github.com/frappe/press-billing/internal/idempotency"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/postgres"
	"github.com/frappe/press-billing/internal/types"
	webhookPublisher "github.com/frappe/press-billing/internal/webhook/publisher"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	// Repositories
	TenantRepo          tenant.Repository
	LedgerRepo          ledger.Repository
	InvoiceRepo         invoice.Repository
	UsageRepo           usage.Repository
	WebhookEndpointRepo webhookdomain.EndpointRepository
	WebhookLogRepo      webhookdomain.LogRepository
	ProcessorEventRepo  processor.EventRepository

	// External collaborators
	Processors       map[types.ProcessorName]processor.PaymentProcessor
	WebhookPublisher webhookPublisher.WebhookPublisher
	EmailSender      email.Sender
	IdempotencyGen   *idempotency.Generator
}

// publishWebhook hands an event to the dispatcher. Delivery problems are the
// dispatcher's to retry; publish failures are logged and swallowed so they
// never roll back the business transaction.
func (p ServiceParams) publishWebhook(ctx context.Context, eventName string, data any) {
	if p.WebhookPublisher == nil {
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		p.Logger.Errorw("failed to serialize webhook payload",
			"error", err, "event_name", eventName)
		return
	}

	event := &types.WebhookEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT),
		EventName: eventName,
		TenantID:  types.GetTenantID(ctx),
		UserID:    types.GetUserID(ctx),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	if err := p.WebhookPublisher.PublishWebhook(ctx, event); err != nil {
		p.Logger.Errorw("failed to publish webhook event",
			"error", err, "event_name", eventName, "tenant_id", event.TenantID)
	}
}

// processorFor resolves the gateway adapter for a processor name.
func (p ServiceParams) processorFor(name types.ProcessorName) (processor.PaymentProcessor, bool) {
	proc, ok := p.Processors[name]
	return proc, ok
}
