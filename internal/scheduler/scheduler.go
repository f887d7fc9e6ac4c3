package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/frappe/press-billing/internal/config"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/service"
	"github.com/frappe/press-billing/internal/webhook"
)

// Scheduler drives the periodic billing jobs: draft finalization, prepaid
// retries, usage relinking, webhook dispatch and pruning, and budget alerts.
// Schedules come from config and use seconds-granularity cron expressions.
type Scheduler struct {
	cron       *cron.Cron
	config     *config.Configuration
	logger     *logger.Logger
	invoiceSvc service.InvoiceService
	usageSvc   service.UsageService
	alertSvc   service.AlertService
	dispatcher *webhook.Dispatcher
}

func New(
	cfg *config.Configuration,
	logger *logger.Logger,
	invoiceSvc service.InvoiceService,
	usageSvc service.UsageService,
	alertSvc service.AlertService,
	dispatcher *webhook.Dispatcher,
) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		config:     cfg,
		logger:     logger,
		invoiceSvc: invoiceSvc,
		usageSvc:   usageSvc,
		alertSvc:   alertSvc,
		dispatcher: dispatcher,
	}
}

// Start registers all jobs and begins the cron loop. Job failures are
// logged, never fatal; every job runs again on its next tick.
func (s *Scheduler) Start() error {
	if !s.config.Scheduler.Enabled {
		s.logger.Infow("scheduler disabled, periodic jobs will not run")
		return nil
	}

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"finalize_due_drafts", s.config.Scheduler.FinalizeDrafts, s.finalizeDueDrafts},
		{"finalize_unpaid_prepaid", s.config.Scheduler.FinalizeUnpaid, s.finalizeUnpaidPrepaid},
		{"link_unlinked_usage", s.config.Scheduler.LinkUnlinkedUsage, s.linkUnlinkedUsage},
		{"webhook_dispatch", s.config.Scheduler.WebhookDispatch, s.dispatchWebhooks},
		{"prune_webhook_logs", s.config.Scheduler.PruneWebhookLogs, s.pruneWebhookLogs},
		{"budget_alerts", s.config.Scheduler.BudgetAlerts, s.budgetAlerts},
	}

	for _, job := range jobs {
		job := job
		if job.spec == "" {
			s.logger.Warnw("skipping job with empty schedule", "job", job.name)
			continue
		}
		_, err := s.cron.AddFunc(job.spec, func() {
			start := time.Now()
			if err := job.run(context.Background()); err != nil {
				s.logger.Errorw("scheduled job failed",
					"job", job.name,
					"duration", time.Since(start),
					"error", err)
				return
			}
			s.logger.Debugw("scheduled job finished",
				"job", job.name,
				"duration", time.Since(start))
		})
		if err != nil {
			return ierr.WithError(err).
				WithHint("Invalid cron expression").
				WithReportableDetails(map[string]interface{}{
					"job":      job.name,
					"schedule": job.spec,
				}).
				Mark(ierr.ErrValidation)
		}
	}

	s.cron.Start()
	s.logger.Infow("scheduler started",
		"finalize_drafts", s.config.Scheduler.FinalizeDrafts,
		"webhook_dispatch", s.config.Scheduler.WebhookDispatch)
	return nil
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Infow("scheduler stopped")
}

func (s *Scheduler) finalizeDueDrafts(ctx context.Context) error {
	count, err := s.invoiceSvc.FinalizeDueDrafts(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Infow("finalized due draft invoices", "count", count)
	}
	return nil
}

func (s *Scheduler) finalizeUnpaidPrepaid(ctx context.Context) error {
	count, err := s.invoiceSvc.FinalizeUnpaidPrepaid(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Infow("settled unpaid prepaid invoices", "count", count)
	}
	return nil
}

func (s *Scheduler) linkUnlinkedUsage(ctx context.Context) error {
	count, err := s.usageSvc.LinkUnlinkedUsage(ctx, s.config.Billing.FinalizeBatchSize)
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Infow("relinked usage records", "count", count)
	}
	return nil
}

func (s *Scheduler) dispatchWebhooks(ctx context.Context) error {
	return s.dispatcher.Tick(ctx)
}

func (s *Scheduler) pruneWebhookLogs(ctx context.Context) error {
	pruned, err := s.dispatcher.Prune(ctx)
	if err != nil {
		return err
	}
	if pruned > 0 {
		s.logger.Infow("pruned delivered webhook logs", "count", pruned)
	}
	return nil
}

func (s *Scheduler) budgetAlerts(ctx context.Context) error {
	count, err := s.alertSvc.SendBudgetAlerts(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Infow("sent budget alert emails", "count", count)
	}
	return nil
}
