package types

import (
	"encoding/json"
	"time"
)

// WebhookEvent represents an internal event handed to the dispatcher
type WebhookEvent struct {
	ID        string          `json:"id"`
	EventName string          `json:"event_name"`
	TenantID  string          `json:"tenant_id"`
	UserID    string          `json:"user_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Common webhook event names. Names are stable; subscribers opt in per-event.
const (
	WebhookEventInvoiceFinalized     = "invoice.finalized"
	WebhookEventInvoicePaid          = "invoice.paid"
	WebhookEventInvoicePaymentFailed = "invoice.payment_failed"
	WebhookEventInvoiceRefunded      = "invoice.refunded"
	WebhookEventCreditsAdded         = "credits.added"
	WebhookEventBalanceUpdated       = "balance.updated"
	WebhookEventMandateActivated     = "mandate.activated"
	WebhookEventSitesUnsuspended     = "sites.unsuspend_requested"
)

// WebhookEventNames lists every event a webhook may subscribe to.
var WebhookEventNames = []string{
	WebhookEventInvoiceFinalized,
	WebhookEventInvoicePaid,
	WebhookEventInvoicePaymentFailed,
	WebhookEventInvoiceRefunded,
	WebhookEventCreditsAdded,
	WebhookEventBalanceUpdated,
	WebhookEventMandateActivated,
	WebhookEventSitesUnsuspended,
}

// WebhookLogStatus represents the aggregate delivery state of one event
// across all subscribed endpoints.
type WebhookLogStatus string

const (
	WebhookLogStatusPending       WebhookLogStatus = "pending"
	WebhookLogStatusQueued        WebhookLogStatus = "queued"
	WebhookLogStatusSent          WebhookLogStatus = "sent"
	WebhookLogStatusPartiallySent WebhookLogStatus = "partially_sent"
	WebhookLogStatusFailed        WebhookLogStatus = "failed"
)

// WebhookAttemptStatus represents the outcome of one POST to one endpoint
type WebhookAttemptStatus string

const (
	WebhookAttemptStatusSent   WebhookAttemptStatus = "sent"
	WebhookAttemptStatusFailed WebhookAttemptStatus = "failed"
)

// WebhookRetryCap bounds delivery retries per log. A log that still has
// failed endpoints after the cap is abandoned in Failed.
const WebhookRetryCap = 3

// NextWebhookRetryAt computes the retry schedule: now + 2^retries minutes.
func NextWebhookRetryAt(now time.Time, retries int) time.Time {
	return now.Add(time.Duration(1<<retries) * time.Minute)
}
