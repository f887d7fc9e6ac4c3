package service

import (
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

// NewServiceParams assembles the shared dependency bundle for all services
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	tenantRepo tenant.Repository,
	ledgerRepo ledger.Repository,
	invoiceRepo invoice.Repository,
	usageRepo usage.Repository,
	webhookEndpointRepo webhookdomain.EndpointRepository,
	webhookLogRepo webhookdomain.LogRepository,
	processorEventRepo processor.EventRepository,
	processors map[types.ProcessorName]processor.PaymentProcessor,
	webhookPublisher webhookPublisher.WebhookPublisher,
	emailSender email.Sender,
) ServiceParams {
	return ServiceParams{
		Logger:              logger,
		Config:              config,
		DB:                  db,
		TenantRepo:          tenantRepo,
		LedgerRepo:          ledgerRepo,
		InvoiceRepo:         invoiceRepo,
		UsageRepo:           usageRepo,
		WebhookEndpointRepo: webhookEndpointRepo,
		WebhookLogRepo:      webhookLogRepo,
		ProcessorEventRepo:  processorEventRepo,
		Processors:          processors,
		WebhookPublisher:    webhookPublisher,
		EmailSender:         emailSender,
		IdempotencyGen:      idempotency.NewGenerator(),
	}
}
