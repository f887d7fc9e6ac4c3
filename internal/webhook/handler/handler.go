package handler

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/frappe/press-billing/internal/config"
	webhookdomain "github.com/frappe/press-billing/internal/domain/webhook"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/pubsub"
	pubsubRouter "github.com/frappe/press-billing/internal/pubsub/router"
	"github.com/frappe/press-billing/internal/types"
	"github.com/frappe/press-billing/internal/webhook"
)

// Handler interface for processing webhook events
type Handler interface {
	RegisterHandler(router *pubsubRouter.Router)
}

// handler persists each published event as a delivery log and attempts the
// first delivery inline. Missed or failed deliveries are picked up by the
// dispatch tick.
type handler struct {
	pubSub     pubsub.PubSub
	config     *config.Webhook
	logRepo    webhookdomain.LogRepository
	dispatcher *webhook.Dispatcher
	logger     *logger.Logger
}

func NewHandler(
	pubSub pubsub.PubSub,
	cfg *config.Configuration,
	logRepo webhookdomain.LogRepository,
	dispatcher *webhook.Dispatcher,
	logger *logger.Logger,
) (Handler, error) {
	return &handler{
		pubSub:     pubSub,
		config:     &cfg.Webhook,
		logRepo:    logRepo,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

func (h *handler) RegisterHandler(router *pubsubRouter.Router) {
	router.AddNoPublishHandler(
		"webhook_handler",
		h.config.Topic,
		h.pubSub,
		h.processMessage,
	)
}

// processMessage processes a single webhook message
func (h *handler) processMessage(msg *message.Message) error {
	ctx := msg.Context()

	var event types.WebhookEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		h.logger.Errorw("failed to unmarshal webhook event",
			"error", err,
			"message_uuid", msg.UUID,
		)
		return nil // Don't retry on unmarshal errors
	}

	ctx = context.WithValue(ctx, types.CtxTenantID, event.TenantID)
	ctx = context.WithValue(ctx, types.CtxUserID, event.UserID)

	log := &webhookdomain.Log{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_LOG),
		EventName: event.EventName,
		Payload:   event.Payload,
		LogStatus: types.WebhookLogStatusPending,
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	if err := h.logRepo.Create(ctx, log); err != nil {
		h.logger.Errorw("failed to persist webhook log",
			"error", err,
			"event_id", event.ID,
			"event_name", event.EventName,
			"tenant_id", event.TenantID,
		)
		return err
	}

	// Inline first attempt; the claim keeps the dispatch tick off this log.
	log.LogStatus = types.WebhookLogStatusQueued
	if err := h.logRepo.Update(ctx, log); err != nil {
		return err
	}
	if err := h.dispatcher.Deliver(ctx, log); err != nil {
		h.logger.Errorw("inline webhook delivery failed",
			"error", err,
			"log_id", log.ID,
			"event_name", event.EventName,
		)
	}
	return nil
}
