package stripe

import (
	"github.com/stripe/stripe-go/v82"

	"github.com/frappe/press-billing/internal/config"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/types"
)

// Processor adapts the Stripe API to the payment processor contract.
type Processor struct {
	client        *stripe.Client
	webhookSecret string
	logger        *logger.Logger
}

func NewProcessor(cfg *config.Configuration, logger *logger.Logger) *Processor {
	return &Processor{
		client:        stripe.NewClient(cfg.Stripe.SecretKey, nil),
		webhookSecret: cfg.Stripe.WebhookSecret,
		logger:        logger,
	}
}

func (p *Processor) Name() types.ProcessorName {
	return types.ProcessorStripe
}

// wrapErr classifies a Stripe API error. Card and request errors are
// rejections that retrying the same call cannot fix; everything else
// (rate limits, 5xx, network) is transient.
func (p *Processor) wrapErr(err error, msg string, details map[string]interface{}) error {
	mark := ierr.ErrProcessorTransient
	if stripeErr, ok := err.(*stripe.Error); ok {
		details["stripe_error_code"] = stripeErr.Code
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			mark = ierr.ErrProcessorRejected
		}
	}
	details["error"] = err.Error()
	return ierr.WithError(err).
		WithHint(msg).
		WithReportableDetails(details).
		Mark(mark)
}
