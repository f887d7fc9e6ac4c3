package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/frappe/press-billing/internal/config"
	"github.com/frappe/press-billing/internal/domain/invoice"
	"github.com/frappe/press-billing/internal/domain/ledger"
	"github.com/frappe/press-billing/internal/domain/processor"
	"github.com/frappe/press-billing/internal/domain/tenant"
	"github.com/frappe/press-billing/internal/domain/usage"
	"github.com/frappe/press-billing/internal/domain/webhook"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/postgres"
	"github.com/frappe/press-billing/internal/pubsub/memory"
	"github.com/frappe/press-billing/internal/types"
	"github.com/frappe/press-billing/internal/validator"
	webhookPublisher "github.com/frappe/press-billing/internal/webhook/publisher"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	TenantRepo          tenant.Repository
	LedgerRepo          ledger.Repository
	InvoiceRepo         invoice.Repository
	UsageRepo           usage.Repository
	WebhookEndpointRepo webhook.EndpointRepository
	WebhookLogRepo      webhook.LogRepository
	ProcessorEventRepo  processor.EventRepository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx              context.Context
	stores           Stores
	db               postgres.IClient
	logger           *logger.Logger
	config           *config.Configuration
	webhookPublisher webhookPublisher.WebhookPublisher
	paymentProcessor *MockPaymentProcessor
	emailSender      *MockEmailSender
	now              time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	s.config = config.GetDefaultConfig()

	var err error
	s.logger, err = logger.NewLogger(s.config)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.setupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = context.Background()
	s.ctx = context.WithValue(s.ctx, types.CtxTenantID, types.DefaultTenantID)
	s.ctx = context.WithValue(s.ctx, types.CtxUserID, types.DefaultUserID)
	s.ctx = context.WithValue(s.ctx, types.CtxRequestID, types.GenerateUUID())
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		TenantRepo:          NewInMemoryTenantStore(),
		LedgerRepo:          NewInMemoryLedgerStore(),
		InvoiceRepo:         NewInMemoryInvoiceStore(),
		UsageRepo:           NewInMemoryUsageStore(),
		WebhookEndpointRepo: NewInMemoryWebhookEndpointStore(),
		WebhookLogRepo:      NewInMemoryWebhookLogStore(),
		ProcessorEventRepo:  NewInMemoryProcessorEventStore(),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.paymentProcessor = NewMockPaymentProcessor()
	s.emailSender = NewMockEmailSender()

	pubsub := memory.NewPubSub(s.config, s.logger)
	publisher, err := webhookPublisher.NewPublisher(pubsub, s.config, s.logger)
	if err != nil {
		s.T().Fatalf("failed to create webhook publisher: %v", err)
	}
	s.webhookPublisher = publisher
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.TenantRepo.(*InMemoryTenantStore).Clear()
	s.stores.LedgerRepo.(*InMemoryLedgerStore).Clear()
	s.stores.InvoiceRepo.(*InMemoryInvoiceStore).Clear()
	s.stores.UsageRepo.(*InMemoryUsageStore).Clear()
	s.stores.WebhookEndpointRepo.(*InMemoryWebhookEndpointStore).Clear()
	s.stores.WebhookLogRepo.(*InMemoryWebhookLogStore).Clear()
	s.stores.ProcessorEventRepo.(*InMemoryProcessorEventStore).Clear()
	s.paymentProcessor.Clear()
	s.emailSender.Clear()
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetWebhookPublisher returns the test webhook publisher
func (s *BaseServiceTestSuite) GetWebhookPublisher() webhookPublisher.WebhookPublisher {
	return s.webhookPublisher
}

// GetPaymentProcessor returns the scriptable payment processor mock
func (s *BaseServiceTestSuite) GetPaymentProcessor() *MockPaymentProcessor {
	return s.paymentProcessor
}

// GetEmailSender returns the recording email sender
func (s *BaseServiceTestSuite) GetEmailSender() *MockEmailSender {
	return s.emailSender
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}
