package v1

import (
	"net/http"

	"github.com/frappe/press-billing/internal/api/dto"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/service"
	"github.com/gin-gonic/gin"
)

type TenantHandler struct {
	tenantService service.TenantService
	logger        *logger.Logger
}

func NewTenantHandler(tenantService service.TenantService, logger *logger.Logger) *TenantHandler {
	return &TenantHandler{
		tenantService: tenantService,
		logger:        logger,
	}
}

// @Summary Create a tenant
// @Description Register a new billing identity
// @Tags Tenants
// @Accept json
// @Produce json
// @Param tenant body dto.CreateTenantRequest true "Tenant details"
// @Success 201 {object} dto.TenantResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /tenants [post]
func (h *TenantHandler) CreateTenant(c *gin.Context) {
	var req dto.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorw("failed to bind request", "error", err)
		c.Error(ierr.WithError(err).WithHint("invalid request").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.tenantService.CreateTenant(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorw("failed to create tenant", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a tenant by ID
// @Tags Tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} dto.TenantResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /tenants/{id} [get]
func (h *TenantHandler) GetTenant(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid tenant id").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.tenantService.GetTenant(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Update a tenant
// @Description Update billing settings; currency is immutable once transactions exist
// @Tags Tenants
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param tenant body dto.UpdateTenantRequest true "Fields to update"
// @Success 200 {object} dto.TenantResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /tenants/{id} [put]
func (h *TenantHandler) UpdateTenant(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid tenant id").Mark(ierr.ErrValidation))
		return
	}

	var req dto.UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorw("failed to bind request", "error", err)
		c.Error(ierr.WithError(err).WithHint("invalid request").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.tenantService.UpdateTenant(c.Request.Context(), id, &req)
	if err != nil {
		h.logger.Errorw("failed to update tenant", "error", err, "tenant_id", id)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Disable a tenant
// @Description Soft-delete a tenant with no outstanding balance or open invoices
// @Tags Tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 204
// @Failure 400 {object} ierr.ErrorResponse
// @Router /tenants/{id} [delete]
func (h *TenantHandler) DeleteTenant(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invalid tenant id").Mark(ierr.ErrValidation))
		return
	}

	if err := h.tenantService.DeleteTenant(c.Request.Context(), id); err != nil {
		h.logger.Errorw("failed to delete tenant", "error", err, "tenant_id", id)
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
