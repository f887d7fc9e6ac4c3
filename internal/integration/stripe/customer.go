package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v82"

	"github.com/frappe/press-billing/internal/domain/processor"
)

// EnsureCustomer creates a Stripe customer for the tenant. The caller is
// responsible for persisting the returned id and passing it back on
// subsequent requests, so this only ever creates.
func (p *Processor) EnsureCustomer(ctx context.Context, req *processor.CustomerRequest) (string, error) {
	params := &stripe.CustomerCreateParams{
		Name:     stripe.String(req.Name),
		Email:    stripe.String(req.Email),
		Metadata: req.Metadata,
	}
	if params.Metadata == nil {
		params.Metadata = map[string]string{}
	}
	params.Metadata["tenant_id"] = req.TenantID

	customer, err := p.client.V1Customers.Create(ctx, params)
	if err != nil {
		return "", p.wrapErr(err, "Unable to create Stripe customer", map[string]interface{}{
			"tenant_id": req.TenantID,
		})
	}

	p.logger.Infow("created stripe customer",
		"tenant_id", req.TenantID,
		"stripe_customer_id", customer.ID)
	return customer.ID, nil
}

// CreateSetupIntent starts card mandate collection for off-session charging.
func (p *Processor) CreateSetupIntent(ctx context.Context, customerID string) (*processor.SetupIntentResult, error) {
	params := &stripe.SetupIntentCreateParams{
		Customer: stripe.String(customerID),
		Usage:    stripe.String("off_session"),
	}

	setupIntent, err := p.client.V1SetupIntents.Create(ctx, params)
	if err != nil {
		return nil, p.wrapErr(err, "Unable to create Stripe setup intent", map[string]interface{}{
			"stripe_customer_id": customerID,
		})
	}

	return &processor.SetupIntentResult{
		SetupIntentID: setupIntent.ID,
		ClientSecret:  setupIntent.ClientSecret,
	}, nil
}
