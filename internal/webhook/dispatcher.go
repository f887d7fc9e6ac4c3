package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/frappe/press-billing/internal/config"
	webhookdomain "github.com/frappe/press-billing/internal/domain/webhook"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/httpclient"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/types"
)

// envelope is the wire format posted to subscriber endpoints. Subscribers
// dedup on the event id.
type envelope struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Dispatcher drains the webhook log queue: fan-out to subscribed endpoints,
// per-endpoint attempt records, aggregate status, bounded retries.
type Dispatcher struct {
	logRepo      webhookdomain.LogRepository
	endpointRepo webhookdomain.EndpointRepository
	client       httpclient.Client
	config       *config.Webhook
	logger       *logger.Logger
}

func NewDispatcher(
	logRepo webhookdomain.LogRepository,
	endpointRepo webhookdomain.EndpointRepository,
	client httpclient.Client,
	cfg *config.Configuration,
	logger *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		logRepo:      logRepo,
		endpointRepo: endpointRepo,
		client:       client,
		config:       &cfg.Webhook,
		logger:       logger,
	}
}

// Tick claims one batch of deliverable logs and delivers them. Claiming
// marks the logs queued so concurrent workers never double-dispatch.
func (d *Dispatcher) Tick(ctx context.Context) error {
	ctx = types.WithSystemCaller(ctx)
	logs, err := d.logRepo.ClaimDeliverable(ctx, time.Now().UTC(), d.config.DispatchBatchSize)
	if err != nil {
		return err
	}

	for _, log := range logs {
		tenantCtx := types.SetTenantID(ctx, log.TenantID)
		if err := d.Deliver(tenantCtx, log); err != nil {
			// Per-log failures never block the rest of the batch.
			d.logger.Errorw("webhook delivery failed",
				"error", err,
				"log_id", log.ID,
				"event_name", log.EventName,
				"tenant_id", log.TenantID,
			)
		}
	}
	return nil
}

// Deliver posts one log to every pending endpoint and records the outcome.
// The log must already be claimed (queued) by the caller.
func (d *Dispatcher) Deliver(ctx context.Context, log *webhookdomain.Log) error {
	endpoints, err := d.endpointRepo.ListEnabledForEvent(ctx, log.EventName)
	if err != nil {
		return err
	}

	// Retries re-post only to endpoints whose last attempt failed.
	if log.Retries > 0 {
		served, err := d.logRepo.ListAttemptedEndpoints(ctx, log.ID, types.WebhookAttemptStatusSent)
		if err != nil {
			return err
		}
		endpoints = lo.Filter(endpoints, func(e *webhookdomain.Endpoint, _ int) bool {
			return !lo.Contains(served, e.ID)
		})
	}

	if len(endpoints) == 0 {
		log.LogStatus = types.WebhookLogStatusSent
		return d.logRepo.Update(ctx, log)
	}

	body, err := json.Marshal(envelope{
		ID:        log.ID,
		Event:     log.EventName,
		Timestamp: time.Now().UTC(),
		Data:      log.Payload,
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Webhook payload is not serializable").
			Mark(ierr.ErrSystem)
	}

	sent, failed := 0, 0
	var lastError string
	for _, endpoint := range endpoints {
		attempt := &webhookdomain.Attempt{
			ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_ATTEMPT),
			LogID:      log.ID,
			EndpointID: endpoint.ID,
			BaseModel:  types.GetDefaultBaseModel(ctx),
		}

		resp, postErr := d.post(ctx, endpoint, body)
		if postErr != nil {
			failed++
			attempt.AttemptStatus = types.WebhookAttemptStatusFailed
			attempt.Error = postErr.Error()
			if httpErr, ok := httpclient.IsHTTPError(postErr); ok {
				attempt.ResponseCode = httpErr.StatusCode
			}
			lastError = postErr.Error()
		} else {
			sent++
			attempt.AttemptStatus = types.WebhookAttemptStatusSent
			attempt.ResponseCode = resp.StatusCode
		}

		if err := d.logRepo.CreateAttempt(ctx, attempt); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	switch {
	case failed == 0:
		log.LogStatus = types.WebhookLogStatusSent
		log.NextRetryAt = nil
		log.LastError = ""
	case sent > 0:
		log.LogStatus = types.WebhookLogStatusPartiallySent
	default:
		log.LogStatus = types.WebhookLogStatusFailed
	}

	if failed > 0 {
		log.Retries++
		log.LastError = lastError
		if log.Retries <= types.WebhookRetryCap {
			next := types.NextWebhookRetryAt(now, log.Retries)
			log.NextRetryAt = &next
		} else {
			// Out of rounds: the log is abandoned even if some endpoints
			// were served along the way.
			log.LogStatus = types.WebhookLogStatusFailed
			log.NextRetryAt = nil
		}
	}

	return d.logRepo.Update(ctx, log)
}

func (d *Dispatcher) post(ctx context.Context, endpoint *webhookdomain.Endpoint, body []byte) (*httpclient.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.DeliveryTimeout)
	defer cancel()

	return d.client.Send(ctx, &httpclient.Request{
		Method: http.MethodPost,
		URL:    endpoint.URL,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Webhook-Secret": endpoint.Secret,
		},
		Body: body,
	})
}

// Prune removes delivered and abandoned logs past the retention window.
func (d *Dispatcher) Prune(ctx context.Context) (int, error) {
	ctx = types.WithSystemCaller(ctx)
	cutoff := time.Now().UTC().Add(-d.config.LogRetention)
	return d.logRepo.DeleteOlderThan(ctx, cutoff)
}
