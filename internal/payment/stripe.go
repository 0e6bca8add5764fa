package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/config"
)

// SessionAPI is the part of the Stripe client used here.
type SessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type Stripe struct {
	Sessions      SessionAPI
	WebhookSecret string
	Currency      string
}

func NewStripe(cfg config.StripeConfig) *Stripe {
	sc := client.New(cfg.SecretKey, nil)
	return &Stripe{Sessions: sc.CheckoutSessions, WebhookSecret: cfg.WebhookSecret, Currency: cfg.Currency}
}

// CreateSession starts a hosted Checkout session; its id is the reference.
func (s *Stripe) CreateSession(ctx context.Context, kind string, userID, amountCents int64, title, successURL, cancelURL string) (*Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(fmt.Sprint(userID)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(s.Currency),
				UnitAmount:  stripe.Int64(amountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(title)},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	params.AddMetadata("kind", kind)
	params.AddMetadata("user_id", fmt.Sprint(userID))

	sess, err := s.Sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create session: %w", err)
	}
	return &Checkout{Reference: sess.ID, RedirectURL: sess.URL}, nil
}

// CompletedSession is a paid Checkout session reported by a webhook.
type CompletedSession struct {
	ID          string
	AmountCents int64
}

// ParseWebhook verifies the signature and returns the paid session, or nil
// for events that do not complete a payment.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*CompletedSession, error) {
	if s.WebhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret is not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.WithMessage(apperr.ErrInvalidRequest, "webhook signature verification failed"), err)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return nil, nil
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, apperr.Wrap(apperr.WithMessage(apperr.ErrInvalidRequest, "invalid event data"), err)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, nil
	}
	return &CompletedSession{ID: sess.ID, AmountCents: sess.AmountTotal}, nil
}
