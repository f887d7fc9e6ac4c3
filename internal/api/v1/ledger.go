package v1

import (
	"net/http"
	"strconv"

	"github.com/frappe/press-billing/internal/api/dto"
	"github.com/frappe/press-billing/internal/domain/ledger"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/service"
	"github.com/frappe/press-billing/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type LedgerHandler struct {
	ledgerService service.LedgerService
	logger        *logger.Logger
}

func NewLedgerHandler(ledgerService service.LedgerService, logger *logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
		logger:        logger,
	}
}

// @Summary Allocate credit
// @Description Append a signed entry to the tenant's balance ledger
// @Tags Ledger
// @Accept json
// @Produce json
// @Param allocation body dto.AllocateCreditRequest true "Allocation details"
// @Success 201 {object} dto.BalanceTransactionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /ledger/allocate [post]
func (h *LedgerHandler) AllocateCredit(c *gin.Context) {
	var req dto.AllocateCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorw("failed to bind request", "error", err)
		c.Error(ierr.WithError(err).WithHint("invalid request").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.ledgerService.AllocateCredit(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorw("failed to allocate credit", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get balance
// @Description Current consumable balance for the tenant
// @Tags Ledger
// @Produce json
// @Success 200 {object} dto.BalanceResponse
// @Router /ledger/balance [get]
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	balance, err := h.ledgerService.GetBalance(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.BalanceResponse{
		Balance:  balance,
		Currency: c.Query("currency"),
	})
}

// @Summary Get a ledger transaction
// @Tags Ledger
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} dto.BalanceTransactionResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /ledger/transactions/{id} [get]
func (h *LedgerHandler) GetTransaction(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid transaction id").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.ledgerService.GetTransaction(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List ledger transactions
// @Description List the tenant's ledger entries newest first
// @Tags Ledger
// @Produce json
// @Param type query string false "Transaction type"
// @Param source query string false "Credit source"
// @Param invoice_id query string false "Invoice ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} dto.ListTransactionsResponse
// @Router /ledger/transactions [get]
func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	filter := &ledger.Filter{
		Source: types.CreditSource(c.Query("source")),
		Limit:  parseIntQuery(c, "limit", 50),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if t := c.Query("type"); t != "" {
		filter.Types = []types.TransactionType{types.TransactionType(t)}
	}
	if invoiceID := c.Query("invoice_id"); invoiceID != "" {
		filter.InvoiceID = lo.ToPtr(invoiceID)
	}

	resp, err := h.ledgerService.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		h.logger.Errorw("failed to list transactions", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Reverse a ledger transaction
// @Description Append a compensating entry for a submitted transaction
// @Tags Ledger
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} dto.BalanceTransactionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /ledger/transactions/{id}/reverse [post]
func (h *LedgerHandler) ReverseTransaction(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid transaction id").Mark(ierr.ErrValidation))
		return
	}

	var body struct {
		Remark string `json:"remark"`
	}
	// Body is optional
	_ = c.ShouldBindJSON(&body)

	resp, err := h.ledgerService.ReverseTransaction(c.Request.Context(), id, body.Remark)
	if err != nil {
		h.logger.Errorw("failed to reverse transaction", "error", err, "transaction_id", id)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
