package v1

import (
	"net/http"

	"github.com/frappe/press-billing/internal/api/dto"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/service"
	"github.com/gin-gonic/gin"
)

type WebhookHandler struct {
	webhookService service.WebhookEndpointService
	logger         *logger.Logger
}

func NewWebhookHandler(webhookService service.WebhookEndpointService, logger *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		logger:         logger,
	}
}

// @Summary Register a webhook endpoint
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param webhook body dto.CreateWebhookRequest true "Endpoint details"
// @Success 201 {object} dto.WebhookResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /webhooks [post]
func (h *WebhookHandler) CreateWebhook(c *gin.Context) {
	var req dto.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorw("failed to bind request", "error", err)
		c.Error(ierr.WithError(err).WithHint("invalid request").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.webhookService.CreateWebhook(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorw("failed to create webhook endpoint", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a webhook endpoint
// @Tags Webhooks
// @Produce json
// @Param id path string true "Endpoint ID"
// @Success 200 {object} dto.WebhookResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /webhooks/{id} [get]
func (h *WebhookHandler) GetWebhook(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid webhook endpoint id").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.webhookService.GetWebhook(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Update a webhook endpoint
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param id path string true "Endpoint ID"
// @Param webhook body dto.UpdateWebhookRequest true "Fields to update"
// @Success 200 {object} dto.WebhookResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /webhooks/{id} [put]
func (h *WebhookHandler) UpdateWebhook(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid webhook endpoint id").Mark(ierr.ErrValidation))
		return
	}

	var req dto.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).WithHint("invalid request").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.webhookService.UpdateWebhook(c.Request.Context(), id, &req)
	if err != nil {
		h.logger.Errorw("failed to update webhook endpoint", "error", err, "endpoint_id", id)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Delete a webhook endpoint
// @Tags Webhooks
// @Produce json
// @Param id path string true "Endpoint ID"
// @Success 204
// @Failure 404 {object} ierr.ErrorResponse
// @Router /webhooks/{id} [delete]
func (h *WebhookHandler) DeleteWebhook(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid webhook endpoint id").Mark(ierr.ErrValidation))
		return
	}

	if err := h.webhookService.DeleteWebhook(c.Request.Context(), id); err != nil {
		h.logger.Errorw("failed to delete webhook endpoint", "error", err, "endpoint_id", id)
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary List webhook endpoints
// @Tags Webhooks
// @Produce json
// @Success 200 {array} dto.WebhookResponse
// @Router /webhooks [get]
func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	resp, err := h.webhookService.ListWebhooks(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to list webhook endpoints", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get a webhook delivery log
// @Description Returns the log with its per-endpoint delivery attempts
// @Tags Webhooks
// @Produce json
// @Param id path string true "Log ID"
// @Success 200 {object} dto.WebhookLogResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /webhooks/logs/{id} [get]
func (h *WebhookHandler) GetLog(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid webhook log id").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.webhookService.GetLog(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Requeue a webhook delivery log
// @Description Reset a failed log past its retry budget so the dispatcher picks it up again
// @Tags Webhooks
// @Produce json
// @Param id path string true "Log ID"
// @Success 202
// @Failure 400 {object} ierr.ErrorResponse
// @Router /webhooks/logs/{id}/requeue [post]
func (h *WebhookHandler) RequeueLog(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid webhook log id").Mark(ierr.ErrValidation))
		return
	}

	if err := h.webhookService.RequeueLog(c.Request.Context(), id); err != nil {
		h.logger.Errorw("failed to requeue webhook log", "error", err, "log_id", id)
		c.Error(err)
		return
	}

	c.Status(http.StatusAccepted)
}
