package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frappe/press-billing/internal/config"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
)

func newTestScheduler(t *testing.T, cfg *config.Configuration) *Scheduler {
	t.Helper()
	log, err := logger.NewLogger(cfg)
	require.NoError(t, err)
	// Jobs never fire during the test, so the services stay nil.
	return New(cfg, log, nil, nil, nil, nil)
}

func TestStartDisabledIsNoOp(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Scheduler.Enabled = false

	s := newTestScheduler(t, cfg)
	assert.NoError(t, s.Start())
}

func TestStartRejectsInvalidCronSpec(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.FinalizeDrafts = "not a cron spec"

	s := newTestScheduler(t, cfg)
	err := s.Start()
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}

func TestStartAndStopWithValidSchedules(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Scheduler.Enabled = true
	// Far-off schedules; nothing runs before Stop.
	cfg.Scheduler.FinalizeDrafts = "0 0 4 * * *"
	cfg.Scheduler.FinalizeUnpaid = "0 30 4 * * *"
	cfg.Scheduler.LinkUnlinkedUsage = "0 0 * * * *"
	cfg.Scheduler.WebhookDispatch = "0 0 6 * * *"
	cfg.Scheduler.PruneWebhookLogs = "0 0 5 * * *"
	cfg.Scheduler.BudgetAlerts = "0 0 9 * * *"

	s := newTestScheduler(t, cfg)
	require.NoError(t, s.Start())
	s.Stop()
}

func TestEmptyScheduleSkipsJob(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.FinalizeDrafts = ""
	cfg.Scheduler.FinalizeUnpaid = ""
	cfg.Scheduler.LinkUnlinkedUsage = ""
	cfg.Scheduler.WebhookDispatch = ""
	cfg.Scheduler.PruneWebhookLogs = ""
	cfg.Scheduler.BudgetAlerts = ""

	s := newTestScheduler(t, cfg)
	require.NoError(t, s.Start())
	s.Stop()
}
