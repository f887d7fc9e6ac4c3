package api

import (
	v1 "github.com/frappe/press-billing/internal/api/v1"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/rest/middleware"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health    *v1.HealthHandler
	Tenant    *v1.TenantHandler
	Ledger    *v1.LedgerHandler
	Usage     *v1.UsageHandler
	Invoice   *v1.InvoiceHandler
	Webhook   *v1.WebhookHandler
	Processor *v1.ProcessorHandler
}

func NewRouter(handlers Handlers, logger *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.ErrorHandler())

	router.GET("/health", handlers.Health.Health)

	// Processor event ingestion authenticates by signature, not tenant headers
	system := router.Group("/v1", middleware.SystemMiddleware)
	{
		system.POST("/processor/:name/events", handlers.Processor.IngestEvent)
	}

	v1Group := router.Group("/v1", middleware.TenantMiddleware(logger))
	registerV1Routes(v1Group, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	tenants := router.Group("/tenants")
	{
		tenants.POST("", handlers.Tenant.CreateTenant)
		tenants.GET("/:id", handlers.Tenant.GetTenant)
		tenants.PUT("/:id", handlers.Tenant.UpdateTenant)
		tenants.DELETE("/:id", handlers.Tenant.DeleteTenant)
	}

	ledger := router.Group("/ledger")
	{
		ledger.POST("/allocate", handlers.Ledger.AllocateCredit)
		ledger.GET("/balance", handlers.Ledger.GetBalance)
		ledger.GET("/transactions", handlers.Ledger.ListTransactions)
		ledger.GET("/transactions/:id", handlers.Ledger.GetTransaction)
		ledger.POST("/transactions/:id/reverse", handlers.Ledger.ReverseTransaction)
	}

	usage := router.Group("/usage")
	{
		usage.POST("", handlers.Usage.RecordUsage)
		usage.GET("", handlers.Usage.ListUsage)
		usage.GET("/:id", handlers.Usage.GetUsage)
		usage.DELETE("/:id", handlers.Usage.CancelUsage)
	}

	invoices := router.Group("/invoices")
	{
		invoices.POST("", handlers.Invoice.CreateInvoice)
		invoices.GET("", handlers.Invoice.ListInvoices)
		invoices.GET("/:id", handlers.Invoice.GetInvoice)
		invoices.POST("/:id/finalize", handlers.Invoice.FinalizeInvoice)
		invoices.POST("/:id/consume-credits", handlers.Invoice.ConsumeCredits)
		invoices.POST("/:id/cancel", handlers.Invoice.CancelInvoice)
		invoices.POST("/:id/refund", handlers.Invoice.RefundInvoice)
		invoices.POST("/:id/comments", handlers.Invoice.AddComment)
	}

	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("", handlers.Webhook.CreateWebhook)
		webhooks.GET("", handlers.Webhook.ListWebhooks)
		webhooks.GET("/logs/:id", handlers.Webhook.GetLog)
		webhooks.POST("/logs/:id/requeue", handlers.Webhook.RequeueLog)
		webhooks.GET("/:id", handlers.Webhook.GetWebhook)
		webhooks.PUT("/:id", handlers.Webhook.UpdateWebhook)
		webhooks.DELETE("/:id", handlers.Webhook.DeleteWebhook)
	}

	processor := router.Group("/processor")
	{
		processor.POST("/setup-intent", handlers.Processor.CreateSetupIntent)
	}
}
