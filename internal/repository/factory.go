package repository

import (
	"github.com/frappe/press-billing/internal/domain/invoice"
	"github.com/frappe/press-billing/internal/domain/ledger"
	"github.com/frappe/press-billing/internal/domain/processor"
	"github.com/frappe/press-billing/internal/domain/tenant"
	"github.com/frappe/press-billing/internal/domain/usage"
	"github.com/frappe/press-billing/internal/domain/webhook"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/postgres"
	postgresRepo "github.com/frappe/press-billing/internal/repository/postgres"
)

func NewTenantRepository(db postgres.IClient, logger *logger.Logger) tenant.Repository {
	return postgresRepo.NewTenantRepository(db, logger)
}

func NewLedgerRepository(db postgres.IClient, logger *logger.Logger) ledger.Repository {
	return postgresRepo.NewLedgerRepository(db, logger)
}

func NewInvoiceRepository(db postgres.IClient, logger *logger.Logger) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(db, logger)
}

func NewUsageRepository(db postgres.IClient, logger *logger.Logger) usage.Repository {
	return postgresRepo.NewUsageRepository(db, logger)
}

func NewWebhookEndpointRepository(db postgres.IClient, logger *logger.Logger) webhook.EndpointRepository {
	return postgresRepo.NewWebhookEndpointRepository(db, logger)
}

func NewWebhookLogRepository(db postgres.IClient, logger *logger.Logger) webhook.LogRepository {
	return postgresRepo.NewWebhookLogRepository(db, logger)
}

func NewProcessorEventRepository(db postgres.IClient, logger *logger.Logger) processor.EventRepository {
	return postgresRepo.NewProcessorEventRepository(db, logger)
}
