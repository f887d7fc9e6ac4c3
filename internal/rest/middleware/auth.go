package middleware

import (
	"context"
	"net/http"

	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/types"
	"github.com/gin-gonic/gin"
)

// GuestAuthenticateMiddleware is a middleware that allows requests without authentication
// For now it sets a default tenant ID and user ID in the request context
func GuestAuthenticateMiddleware(c *gin.Context) {
	ctx := c.Request.Context()
	ctx = context.WithValue(ctx, types.CtxTenantID, types.DefaultTenantID)
	ctx = context.WithValue(ctx, types.CtxUserID, types.DefaultUserID)
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

// TenantMiddleware resolves the acting tenant from request headers. The API
// sits behind the control plane, which authenticates callers and forwards
// tenant identity; requests without a tenant header are rejected.
func TenantMiddleware(logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(types.HeaderTenantID)
		if tenantID == "" {
			logger.Debugw("request missing tenant header", "path", c.Request.URL.Path)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant identity"})
			c.Abort()
			return
		}

		userID := c.GetHeader(types.HeaderUserID)
		if userID == "" {
			userID = types.DefaultUserID
		}

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, types.CtxTenantID, tenantID)
		ctx = context.WithValue(ctx, types.CtxUserID, userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// SystemMiddleware marks the request as a platform-initiated call. Processor
// event ingestion runs here; tenant attribution happens after the event is
// matched to an invoice.
func SystemMiddleware(c *gin.Context) {
	ctx := types.WithSystemCaller(c.Request.Context())
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}
