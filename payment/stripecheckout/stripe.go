// Package stripecheckout adapts Stripe hosted Checkout to
// mystic.PaymentProvider.
package stripecheckout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mystic "github.com/phbpx/mystic-services"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

var ErrUnhandledEvent = errors.New("unhandled stripe event")

// Provider opens and queries Checkout sessions.
type Provider struct {
	sessions *session.Client
}

// New builds a provider for the secret key. A nil backend uses the live
// Stripe API.
func New(secretKey string, backend stripe.Backend) *Provider {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Provider{sessions: &session.Client{B: backend, Key: secretKey}}
}

func (p *Provider) CreateSession(ctx context.Context, req mystic.SessionRequest) (mystic.Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
					UnitAmount: stripe.Int64(req.AmountMinor),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := p.sessions.New(params)
	if err != nil {
		return mystic.Session{}, fmt.Errorf("creating checkout session: %w", err)
	}
	return mystic.Session{ID: s.ID, RedirectURL: s.URL}, nil
}

func (p *Provider) SessionStatus(ctx context.Context, sessionID string) (mystic.SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := p.sessions.Get(sessionID, params)
	if err != nil {
		return mystic.SessionStatus{}, fmt.Errorf("retrieving checkout session: %w", err)
	}
	return status(s), nil
}

func status(s *stripe.CheckoutSession) mystic.SessionStatus {
	return mystic.SessionStatus{
		PaymentStatus: string(s.PaymentStatus),
		SessionStatus: string(s.Status),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
}

// Webhook verifies Stripe event deliveries.
type Webhook struct {
	secret string
}

func NewWebhook(secret string) *Webhook {
	return &Webhook{secret: secret}
}

// Verify checks the Stripe-Signature header and extracts the checkout
// session of completed and expired events. Other event types return
// ErrUnhandledEvent.
func (w *Webhook) Verify(payload []byte, signature string) (mystic.SessionEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, w.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return mystic.SessionEvent{}, fmt.Errorf("verifying stripe signature: %w", err)
	}

	switch ev.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded", "checkout.session.expired":
	default:
		return mystic.SessionEvent{}, fmt.Errorf("%w: %s", ErrUnhandledEvent, ev.Type)
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return mystic.SessionEvent{}, fmt.Errorf("decoding checkout session: %w", err)
	}

	return mystic.SessionEvent{SessionID: s.ID, Status: status(&s)}, nil
}
