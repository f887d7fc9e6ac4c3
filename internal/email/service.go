package email

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/logger"
)

// Sender delivers the billing notification emails. Implementations must be
// safe to call from background jobs; failures are logged, never fatal.
type Sender interface {
	// SendPaymentFailed notifies the tenant that collection failed, with a
	// processor-hosted link to settle manually.
	SendPaymentFailed(ctx context.Context, to, invoiceNumber, paymentLink string, amount decimal.Decimal, currency string) error

	// SendBudgetAlert notifies the tenant that month-to-date spend crossed
	// their configured threshold.
	SendBudgetAlert(ctx context.Context, to string, spend, threshold decimal.Decimal, currency string) error
}

type sender struct {
	client *Client
	logger *logger.Logger
}

func NewSender(client *Client, logger *logger.Logger) Sender {
	return &sender{client: client, logger: logger}
}

func (s *sender) SendPaymentFailed(ctx context.Context, to, invoiceNumber, paymentLink string, amount decimal.Decimal, currency string) error {
	if !s.client.IsEnabled() {
		s.logger.Debugw("email disabled, skipping payment failed notification", "to", to)
		return nil
	}

	subject := fmt.Sprintf("Payment failed for invoice %s", invoiceNumber)
	text := fmt.Sprintf(
		"We could not collect %s %s for invoice %s. Pay manually here: %s",
		amount.StringFixed(2), currency, invoiceNumber, paymentLink,
	)
	html := fmt.Sprintf(
		`<p>We could not collect <b>%s %s</b> for invoice %s.</p><p><a href=%q>Pay now</a></p>`,
		amount.StringFixed(2), currency, invoiceNumber, paymentLink,
	)

	id, err := s.client.SendEmail(ctx, to, subject, html, text)
	if err != nil {
		s.logger.Errorw("failed to send payment failed email", "error", err, "to", to)
		return err
	}
	s.logger.Infow("sent payment failed email", "to", to, "email_id", id)
	return nil
}

func (s *sender) SendBudgetAlert(ctx context.Context, to string, spend, threshold decimal.Decimal, currency string) error {
	if !s.client.IsEnabled() {
		s.logger.Debugw("email disabled, skipping budget alert", "to", to)
		return nil
	}

	subject := "Your monthly spend crossed the configured budget"
	text := fmt.Sprintf(
		"Month-to-date usage of %s %s exceeded your budget of %s %s.",
		spend.StringFixed(2), currency, threshold.StringFixed(2), currency,
	)
	html := fmt.Sprintf(
		"<p>Month-to-date usage of <b>%s %s</b> exceeded your budget of %s %s.</p>",
		spend.StringFixed(2), currency, threshold.StringFixed(2), currency,
	)

	id, err := s.client.SendEmail(ctx, to, subject, html, text)
	if err != nil {
		s.logger.Errorw("failed to send budget alert email", "error", err, "to", to)
		return err
	}
	s.logger.Infow("sent budget alert email", "to", to, "email_id", id)
	return nil
}
