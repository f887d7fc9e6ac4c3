package main

import (
	"context"
	"time"

	"github.com/frappe/press-billing/internal/api"
	v1 "github.com/frappe/press-billing/internal/api/v1"
	"github.com/frappe/press-billing/internal/config"
	"github.com/frappe/press-billing/internal/domain/processor"
	"github.com/frappe/press-billing/internal/email"
	"github.com/frappe/press-billing/internal/httpclient"
	stripeintegration "github.com/frappe/press-billing/internal/integration/stripe"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/postgres"
	"github.com/frappe/press-billing/internal/pubsub"
	"github.com/frappe/press-billing/internal/pubsub/memory"
	pubsubRouter "github.com/frappe/press-billing/internal/pubsub/router"
	"github.com/frappe/press-billing/internal/repository"
	"github.com/frappe/press-billing/internal/scheduler"
	"github.com/frappe/press-billing/internal/service"
	"github.com/frappe/press-billing/internal/types"
	"github.com/frappe/press-billing/internal/validator"
	"github.com/frappe/press-billing/internal/webhook"
	webhookHandler "github.com/frappe/press-billing/internal/webhook/handler"
	webhookPublisher "github.com/frappe/press-billing/internal/webhook/publisher"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// @title Press Billing API
// @version 1.0
// @description Billing core for the hosting control plane
// @BasePath /v1
// @schemes http https

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Postgres
			postgres.NewDB,
			postgres.NewClient,

			// HTTP Client
			httpclient.NewDefaultClient,

			// Email
			email.NewClient,
			email.NewSender,

			// Repositories
			repository.NewTenantRepository,
			repository.NewLedgerRepository,
			repository.NewInvoiceRepository,
			repository.NewUsageRepository,
			repository.NewWebhookEndpointRepository,
			repository.NewWebhookLogRepository,
			repository.NewProcessorEventRepository,

			// Payment processors
			provideProcessors,

			// PubSub and webhook pipeline
			memory.NewPubSub,
			pubsubRouter.NewRouter,
			webhookPublisher.NewPublisher,
			webhook.NewDispatcher,
			provideWebhookHandler,
			webhook.NewWebhookService,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			service.NewTenantService,
			service.NewLedgerService,
			service.NewUsageService,
			service.NewInvoiceService,
			service.NewPaymentService,
			service.NewWebhookEndpointService,
			service.NewAlertService,
		),
	)

	// API and background drivers
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			provideRouter,
			scheduler.New,
		),
		fx.Invoke(startServer),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideProcessors(cfg *config.Configuration, log *logger.Logger) map[types.ProcessorName]processor.PaymentProcessor {
	processors := make(map[types.ProcessorName]processor.PaymentProcessor)
	if cfg.Stripe.SecretKey != "" {
		stripeProc := stripeintegration.NewProcessor(cfg, log)
		processors[stripeProc.Name()] = stripeProc
	} else {
		log.Warnw("stripe secret key not configured, processor collection disabled")
	}
	return processors
}

func provideWebhookHandler(
	pubSub pubsub.PubSub,
	cfg *config.Configuration,
	params service.ServiceParams,
	dispatcher *webhook.Dispatcher,
	log *logger.Logger,
) (webhook.Registrar, error) {
	return webhookHandler.NewHandler(pubSub, cfg, params.WebhookLogRepo, dispatcher, log)
}

func provideHandlers(
	logger *logger.Logger,
	tenantService service.TenantService,
	ledgerService service.LedgerService,
	usageService service.UsageService,
	invoiceService service.InvoiceService,
	paymentService service.PaymentService,
	webhookService service.WebhookEndpointService,
) api.Handlers {
	return api.Handlers{
		Health:    v1.NewHealthHandler(logger),
		Tenant:    v1.NewTenantHandler(tenantService, logger),
		Ledger:    v1.NewLedgerHandler(ledgerService, logger),
		Usage:     v1.NewUsageHandler(usageService, logger),
		Invoice:   v1.NewInvoiceHandler(invoiceService, logger),
		Webhook:   v1.NewWebhookHandler(webhookService, logger),
		Processor: v1.NewProcessorHandler(paymentService, logger),
	}
}

func provideRouter(handlers api.Handlers, logger *logger.Logger) *gin.Engine {
	return api.NewRouter(handlers, logger)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	webhookService *webhook.WebhookService,
	router *pubsubRouter.Router,
	sched *scheduler.Scheduler,
	log *logger.Logger,
) {
	startAPIServer(lc, r, cfg, log)
	startMessageRouter(lc, router, webhookService, log)
	startScheduler(lc, sched, log)
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting API server")
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server")
			return nil
		},
	})
}

func startMessageRouter(
	lc fx.Lifecycle,
	router *pubsubRouter.Router,
	webhookService *webhook.WebhookService,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := webhookService.Start(ctx); err != nil {
				return err
			}
			log.Info("starting message router")
			go func() {
				if err := router.Run(); err != nil {
					log.Errorw("message router failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping message router")
			if err := webhookService.Stop(); err != nil {
				log.Errorw("failed to stop webhook service", "error", err)
			}
			return router.Close()
		},
	})
}

func startScheduler(lc fx.Lifecycle, sched *scheduler.Scheduler, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sched.Start()
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping scheduler")
			sched.Stop()
			return nil
		},
	})
}
