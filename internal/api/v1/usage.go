package v1

import (
	"net/http"
	"time"

	"github.com/frappe/press-billing/internal/api/dto"
	"github.com/frappe/press-billing/internal/domain/usage"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type UsageHandler struct {
	usageService service.UsageService
	logger       *logger.Logger
}

func NewUsageHandler(usageService service.UsageService, logger *logger.Logger) *UsageHandler {
	return &UsageHandler{
		usageService: usageService,
		logger:       logger,
	}
}

// @Summary Record usage
// @Description Submit one day of metered consumption for a site. Repeat
// @Description submissions of the same site, plan, date and interval are rejected.
// @Tags Usage
// @Accept json
// @Produce json
// @Param usage body dto.RecordUsageRequest true "Usage details"
// @Success 201 {object} dto.UsageRecordResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /usage [post]
func (h *UsageHandler) RecordUsage(c *gin.Context) {
	var req dto.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorw("failed to bind request", "error", err)
		c.Error(ierr.WithError(err).WithHint("invalid request").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.usageService.RecordUsage(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorw("failed to record usage", "error", err, "site_id", req.SiteID)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Cancel a usage record
// @Description Remove a submitted record from its draft invoice line
// @Tags Usage
// @Produce json
// @Param id path string true "Usage record ID"
// @Success 204
// @Failure 400 {object} ierr.ErrorResponse
// @Router /usage/{id} [delete]
func (h *UsageHandler) CancelUsage(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid usage record id").Mark(ierr.ErrValidation))
		return
	}

	if err := h.usageService.CancelUsage(c.Request.Context(), id); err != nil {
		h.logger.Errorw("failed to cancel usage", "error", err, "usage_id", id)
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary Get a usage record
// @Tags Usage
// @Produce json
// @Param id path string true "Usage record ID"
// @Success 200 {object} dto.UsageRecordResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /usage/{id} [get]
func (h *UsageHandler) GetUsage(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid usage record id").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.usageService.GetUsage(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List usage records
// @Tags Usage
// @Produce json
// @Param site_id query string false "Site ID"
// @Param plan query string false "Plan"
// @Param invoice_id query string false "Invoice ID"
// @Param from query string false "Start date (RFC3339)"
// @Param to query string false "End date (RFC3339)"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {array} dto.UsageRecordResponse
// @Router /usage [get]
func (h *UsageHandler) ListUsage(c *gin.Context) {
	filter := &usage.Filter{
		SiteID: c.Query("site_id"),
		Plan:   c.Query("plan"),
		Limit:  parseIntQuery(c, "limit", 50),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if invoiceID := c.Query("invoice_id"); invoiceID != "" {
		filter.InvoiceID = lo.ToPtr(invoiceID)
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			c.Error(ierr.WithError(err).WithHint("from must be RFC3339").Mark(ierr.ErrValidation))
			return
		}
		filter.DateGTE = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			c.Error(ierr.WithError(err).WithHint("to must be RFC3339").Mark(ierr.ErrValidation))
			return
		}
		filter.DateLTE = &t
	}

	resp, err := h.usageService.ListUsage(c.Request.Context(), filter)
	if err != nil {
		h.logger.Errorw("failed to list usage", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
