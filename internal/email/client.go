package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"

	"github.com/frappe/press-billing/internal/config"
)

// Client wraps the resend API. A disabled client accepts sends and drops
// them, so callers never branch on configuration.
type Client struct {
	client      *resend.Client
	enabled     bool
	fromAddress string
	replyTo     string
}

// NewClient creates a new email client from configuration
func NewClient(cfg *config.Configuration) *Client {
	if !cfg.Email.Enabled || cfg.Email.APIKey == "" {
		return &Client{enabled: false}
	}

	return &Client{
		client:      resend.NewClient(cfg.Email.APIKey),
		enabled:     true,
		fromAddress: cfg.Email.FromAddress,
		replyTo:     cfg.Email.ReplyTo,
	}
}

// IsEnabled returns whether the email client is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled
}

// SendEmail sends a plain text or HTML email and returns the provider id
func (c *Client) SendEmail(ctx context.Context, to, subject, htmlContent, textContent string) (string, error) {
	if !c.enabled {
		return "", fmt.Errorf("email client is disabled")
	}

	params := &resend.SendEmailRequest{
		From:    c.fromAddress,
		To:      []string{to},
		Subject: subject,
		Html:    htmlContent,
		Text:    textContent,
	}
	if c.replyTo != "" {
		params.ReplyTo = c.replyTo
	}

	sent, err := c.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	return sent.Id, nil
}
