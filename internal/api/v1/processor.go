package v1

import (
	"io"
	"net/http"

	"github.com/frappe/press-billing/internal/api/dto"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/service"
	"github.com/frappe/press-billing/internal/types"
	"github.com/gin-gonic/gin"
)

type ProcessorHandler struct {
	paymentService service.PaymentService
	logger         *logger.Logger
}

func NewProcessorHandler(paymentService service.PaymentService, logger *logger.Logger) *ProcessorHandler {
	return &ProcessorHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// @Summary Ingest a processor event
// @Description Receive a signed gateway notification; repeat deliveries of the
// @Description same event id are acknowledged without re-processing
// @Tags Processor
// @Accept json
// @Produce json
// @Param name path string true "Processor name"
// @Success 200 {object} dto.ProcessorEventResponse
// @Failure 401 {object} ierr.ErrorResponse
// @Router /processor/{name}/events [post]
func (h *ProcessorHandler) IngestEvent(c *gin.Context) {
	name := types.ProcessorName(c.Param("name"))

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(ierr.WithError(err).WithHint("failed to read request body").Mark(ierr.ErrValidation))
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		signature = c.GetHeader(types.HeaderWebhookSignature)
	}

	req := &dto.IngestProcessorEventRequest{
		Processor: name,
		Signature: signature,
		Payload:   payload,
	}

	resp, err := h.paymentService.IngestProcessorEvent(c.Request.Context(), req)
	if err != nil {
		h.logger.Errorw("failed to ingest processor event", "error", err, "processor", name)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Create a setup intent
// @Description Start payment mandate collection for the tenant
// @Tags Processor
// @Produce json
// @Success 201 {object} processor.SetupIntentResult
// @Failure 400 {object} ierr.ErrorResponse
// @Router /processor/setup-intent [post]
func (h *ProcessorHandler) CreateSetupIntent(c *gin.Context) {
	resp, err := h.paymentService.CreateSetupIntent(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to create setup intent", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}
