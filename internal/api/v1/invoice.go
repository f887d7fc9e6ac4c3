package v1

import (
	"net/http"

	"github.com/frappe/press-billing/internal/api/dto"
	"github.com/frappe/press-billing/internal/domain/invoice"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/service"
	"github.com/frappe/press-billing/internal/types"
	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
	logger         *logger.Logger
}

func NewInvoiceHandler(invoiceService service.InvoiceService, logger *logger.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		logger:         logger,
	}
}

// @Summary Create a new invoice
// @Description Open a draft invoice; subscription drafts are normally created implicitly by usage
// @Tags Invoices
// @Accept json
// @Produce json
// @Param invoice body dto.CreateInvoiceRequest true "Invoice details"
// @Success 201 {object} dto.InvoiceResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorw("failed to bind request", "error", err)
		c.Error(ierr.WithError(err).WithHint("invalid request").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.invoiceService.CreateInvoice(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorw("failed to create invoice", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get an invoice by ID
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} dto.InvoiceResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid invoice id").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.invoiceService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List invoices
// @Tags Invoices
// @Produce json
// @Param type query string false "Invoice type"
// @Param status query string false "Invoice status"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} dto.ListInvoicesResponse
// @Router /invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	filter := &invoice.Filter{
		Limit:  parseIntQuery(c, "limit", 50),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if t := c.Query("type"); t != "" {
		filter.Types = []types.InvoiceType{types.InvoiceType(t)}
	}
	if s := c.Query("status"); s != "" {
		filter.Statuses = []types.InvoiceStatus{types.InvoiceStatus(s)}
	}

	resp, err := h.invoiceService.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		h.logger.Errorw("failed to list invoices", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Finalize an invoice
// @Description Run the finalization pipeline on a draft invoice
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} dto.InvoiceResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /invoices/{id}/finalize [post]
func (h *InvoiceHandler) FinalizeInvoice(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid invoice id").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.invoiceService.FinalizeInvoice(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorw("failed to finalize invoice", "error", err, "invoice_id", id)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Apply credits to an invoice
// @Description Consume available balance against the invoice and mark it paid when fully covered
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} dto.InvoiceResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /invoices/{id}/consume-credits [post]
func (h *InvoiceHandler) ConsumeCredits(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid invoice id").Mark(ierr.ErrValidation))
		return
	}

	var body struct {
		Remark string `json:"remark"`
	}
	_ = c.ShouldBindJSON(&body)

	resp, err := h.invoiceService.ConsumeCreditsAndMarkPaid(c.Request.Context(), id, body.Remark)
	if err != nil {
		h.logger.Errorw("failed to consume credits", "error", err, "invoice_id", id)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel an invoice
// @Description Void a draft or finalized-unpaid invoice
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 204
// @Failure 400 {object} ierr.ErrorResponse
// @Router /invoices/{id}/cancel [post]
func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid invoice id").Mark(ierr.ErrValidation))
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	if err := h.invoiceService.CancelInvoice(c.Request.Context(), id, body.Reason); err != nil {
		h.logger.Errorw("failed to cancel invoice", "error", err, "invoice_id", id)
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary Refund an invoice
// @Description Refund a settled invoice; credit-settled invoices are refunded back to balance
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param refund body dto.RefundInvoiceRequest true "Refund details"
// @Success 200 {object} dto.InvoiceResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /invoices/{id}/refund [post]
func (h *InvoiceHandler) RefundInvoice(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid invoice id").Mark(ierr.ErrValidation))
		return
	}

	var req dto.RefundInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorw("failed to bind request", "error", err)
		c.Error(ierr.WithError(err).WithHint("invalid request").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.invoiceService.RefundInvoice(c.Request.Context(), id, &req)
	if err != nil {
		h.logger.Errorw("failed to refund invoice", "error", err, "invoice_id", id)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Comment on an invoice
// @Description Append a note to the invoice trail
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param comment body dto.AddCommentRequest true "Comment"
// @Success 201
// @Failure 400 {object} ierr.ErrorResponse
// @Router /invoices/{id}/comments [post]
func (h *InvoiceHandler) AddComment(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid invoice id").Mark(ierr.ErrValidation))
		return
	}

	var req dto.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).WithHint("invalid request").Mark(ierr.ErrValidation))
		return
	}

	if err := h.invoiceService.AddComment(c.Request.Context(), id, &req); err != nil {
		h.logger.Errorw("failed to add comment", "error", err, "invoice_id", id)
		c.Error(err)
		return
	}

	c.Status(http.StatusCreated)
}
