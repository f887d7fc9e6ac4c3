package webhook

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/samber/lo"

	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// Endpoint is a tenant-registered delivery target. An endpoint with no
// event subscriptions receives every event.
type Endpoint struct {
	ID      string `db:"id" json:"id"`
	URL     string `db:"url" json:"url"`
	Secret  string `db:"secret" json:"secret"`
	Enabled bool   `db:"enabled" json:"enabled"`
	// Events lists subscribed event names; empty means all.
	Events types.StringSlice `db:"events" json:"events"`
	types.BaseModel
}

func (e *Endpoint) TableName() string {
	return "webhook_endpoints"
}

func (e *Endpoint) Validate() error {
	u, err := url.Parse(e.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ierr.NewError("webhook url is invalid").
			WithHint("Provide an absolute http(s) URL").
			WithReportableDetails(map[string]any{"url": e.URL}).
			Mark(ierr.ErrValidation)
	}
	for _, name := range e.Events {
		if !lo.Contains(types.WebhookEventNames, name) {
			return ierr.NewError("unknown webhook event name").
				WithReportableDetails(map[string]any{"event": name}).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// Subscribed reports whether the endpoint wants the event.
func (e *Endpoint) Subscribed(eventName string) bool {
	return len(e.Events) == 0 || lo.Contains(e.Events, eventName)
}

// Log is one queued outbound event for a tenant. Delivery fans out to every
// subscribed endpoint and the log carries the aggregate outcome.
type Log struct {
	ID        string                 `db:"id" json:"id"`
	EventName string                 `db:"event_name" json:"event_name"`
	Payload   json.RawMessage        `db:"payload" json:"payload"`
	LogStatus types.WebhookLogStatus `db:"log_status" json:"log_status"`
	// Retries counts completed delivery rounds that left at least one
	// endpoint unserved.
	Retries     int        `db:"retries" json:"retries"`
	NextRetryAt *time.Time `db:"next_retry_at" json:"next_retry_at,omitempty"`
	LastError   string     `db:"last_error" json:"last_error,omitempty"`
	types.BaseModel
}

func (l *Log) TableName() string {
	return "webhook_logs"
}

// Deliverable reports whether the dispatcher should pick the log up now.
func (l *Log) Deliverable(now time.Time) bool {
	switch l.LogStatus {
	case types.WebhookLogStatusPending:
		return true
	case types.WebhookLogStatusPartiallySent, types.WebhookLogStatusFailed:
		return l.Retries <= types.WebhookRetryCap &&
			(l.NextRetryAt == nil || !l.NextRetryAt.After(now))
	default:
		return false
	}
}

// Attempt records one POST to one endpoint for a log.
type Attempt struct {
	ID            string                     `db:"id" json:"id"`
	LogID         string                     `db:"log_id" json:"log_id"`
	EndpointID    string                     `db:"endpoint_id" json:"endpoint_id"`
	AttemptStatus types.WebhookAttemptStatus `db:"attempt_status" json:"attempt_status"`
	ResponseCode  int                        `db:"response_code" json:"response_code"`
	Error         string                     `db:"error" json:"error,omitempty"`
	types.BaseModel
}

func (a *Attempt) TableName() string {
	return "webhook_attempts"
}
