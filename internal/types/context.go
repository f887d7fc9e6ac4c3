package types

import (
	"context"
	"fmt"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID ContextKey = "ctx_request_id"
	CtxTenantID  ContextKey = "ctx_tenant_id"
	CtxUserID    ContextKey = "ctx_user_id"
	CtxIsSystem  ContextKey = "ctx_is_system"

	// Default values
	DefaultTenantID = "00000000-0000-0000-0000-000000000000"
	DefaultUserID   = "00000000-0000-0000-0000-000000000000"
)

// HTTP header names used by the API surface
const (
	HeaderRequestID        = "X-Request-ID"
	HeaderTenantID         = "X-Tenant-ID"
	HeaderUserID           = "X-User-ID"
	HeaderWebhookSignature = "X-Processor-Signature"
)

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(CtxUserID).(string); ok {
		return userID
	}
	return ""
}

func GetTenantID(ctx context.Context) string {
	if tenantID, ok := ctx.Value(CtxTenantID).(string); ok {
		return tenantID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

// IsSystemCaller reports whether the operation runs on behalf of the
// platform itself (scheduler jobs, processor event ingestion) rather than a
// tenant user.
func IsSystemCaller(ctx context.Context) bool {
	if isSystem, ok := ctx.Value(CtxIsSystem).(bool); ok {
		return isSystem
	}
	return false
}

// SetTenantID sets the tenant ID in the context
func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, CtxTenantID, tenantID)
}

// SetUserID sets the user ID in the context
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

// WithSystemCaller marks the context as a system caller
func WithSystemCaller(ctx context.Context) context.Context {
	return context.WithValue(ctx, CtxIsSystem, true)
}

// ValidateTenantContext validates that the required tenant context fields are present
func ValidateTenantContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context is nil")
	}

	if GetTenantID(ctx) == "" {
		return fmt.Errorf("no tenant context found in context")
	}

	return nil
}
