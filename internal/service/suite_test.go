package service

import (
	"github.com/frappe/press-billing/internal/domain/processor"
	"github.com/frappe/press-billing/internal/idempotency"
	"github.com/frappe/press-billing/internal/testutil"
	"github.com/frappe/press-billing/internal/types"
)

// newTestParams assembles a ServiceParams bundle backed by the suite's
// in-memory stores and mocks.
func newTestParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return ServiceParams{
		Logger:              s.GetLogger(),
		Config:              s.GetConfig(),
		DB:                  s.GetDB(),
		TenantRepo:          stores.TenantRepo,
		LedgerRepo:          stores.LedgerRepo,
		InvoiceRepo:         stores.InvoiceRepo,
		UsageRepo:           stores.UsageRepo,
		WebhookEndpointRepo: stores.WebhookEndpointRepo,
		WebhookLogRepo:      stores.WebhookLogRepo,
		ProcessorEventRepo:  stores.ProcessorEventRepo,
		Processors: map[types.ProcessorName]processor.PaymentProcessor{
			types.ProcessorStripe: s.GetPaymentProcessor(),
		},
		WebhookPublisher: s.GetWebhookPublisher(),
		EmailSender:      s.GetEmailSender(),
		IdempotencyGen:   idempotency.NewGenerator(),
	}
}
