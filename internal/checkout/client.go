package checkout

import (
	"context"
	"log/slog"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Provider is the payment-provider surface the order flow needs. Kept small
// so tests can fake it without touching the network.
type Provider interface {
	GetSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	ListLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error)
	VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error)
}

type StripeProvider struct {
	sessions      session.Client
	webhookSecret string
	log           *slog.Logger
}

func NewStripeProvider(apiKey, webhookSecret string, log *slog.Logger) *StripeProvider {
	return &StripeProvider{
		sessions:      session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: apiKey},
		webhookSecret: webhookSecret,
		log:           log,
	}
}

func (p *StripeProvider) GetSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
	}
	return p.sessions.Get(id, params)
}

func (p *StripeProvider) ListLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		ListParams: stripe.ListParams{Context: ctx},
		Session:    stripe.String(sessionID),
	}
	iter := p.sessions.ListLineItems(params)
	var items []*stripe.LineItem
	for iter.Next() {
		items = append(items, iter.LineItem())
	}
	if err := iter.Err(); err != nil {
		p.log.Error("stripe_list_line_items_failed", "session_id", sessionID, "error", err)
		return nil, err
	}
	return items, nil
}

func (p *StripeProvider) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, p.webhookSecret)
}
