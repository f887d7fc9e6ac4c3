package dto

import (
	"github.com/frappe/press-billing/internal/domain/webhook"
	ierr "github.com/frappe/press-billing/internal/errors"
)

// CreateWebhookRequest registers a delivery endpoint. An empty events list
// subscribes to everything.
type CreateWebhookRequest struct {
	URL    string   `json:"url" binding:"required,url"`
	Secret string   `json:"secret" binding:"required"`
	Events []string `json:"events"`
}

func (r *CreateWebhookRequest) Validate() error {
	if r.Secret == "" {
		return ierr.NewError("webhook secret is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// UpdateWebhookRequest mutates an endpoint; nil fields are left unchanged
type UpdateWebhookRequest struct {
	URL     *string   `json:"url,omitempty"`
	Secret  *string   `json:"secret,omitempty"`
	Enabled *bool     `json:"enabled,omitempty"`
	Events  *[]string `json:"events,omitempty"`
}

// WebhookResponse is the API shape of an endpoint, secret redacted
type WebhookResponse struct {
	*webhook.Endpoint
	Secret string `json:"secret,omitempty"`
}

func NewWebhookResponse(e *webhook.Endpoint) *WebhookResponse {
	return &WebhookResponse{Endpoint: e}
}

// WebhookLogResponse is the API shape of a delivery log with its attempts
type WebhookLogResponse struct {
	*webhook.Log
	Attempts []*webhook.Attempt `json:"attempts,omitempty"`
}
