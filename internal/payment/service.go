// Package payment starts gateway payments and turns gateway confirmations
// into bookings or wallet top-ups, at most once per gateway reference.
package payment

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/booking"
	"ms-coaching/internal/cart"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/pricing"
	"ms-coaching/internal/utils"
	"ms-coaching/internal/wallet"
)

type Pendings interface {
	Save(ctx context.Context, p *Pending) error
	Load(ctx context.Context, ref string) (*Pending, error)
}

type StripeGateway interface {
	CreateSession(ctx context.Context, kind string, userID, amountCents int64, title, successURL, cancelURL string) (*Checkout, error)
	ParseWebhook(payload []byte, signature string) (*CompletedSession, error)
}

type PayPalGateway interface {
	CreateOrder(ctx context.Context, requestID string, amountCents int64, returnURL, cancelURL string) (*Checkout, error)
	CaptureOrder(ctx context.Context, orderID string) (*Capture, error)
}

type NETSGateway interface {
	RequestQR(ctx context.Context, txnID string, amountCents int64, now time.Time) (*QR, error)
	Paid(ctx context.Context, txnRetrievalRef string) (bool, error)
}

type Carts interface {
	Get(ctx context.Context, userID int64) (*cart.View, error)
}

type Bookings interface {
	FinalizeBookingPayment(ctx context.Context, in booking.FinalizeInput) (*booking.Result, error)
}

type Wallets interface {
	TopUp(ctx context.Context, in wallet.TopUpInput) (*wallet.Balance, error)
}

type Confirmations interface {
	FindConfirmation(ctx context.Context, reference string) (*models.PaymentConfirmation, error)
}

// Caps makes the binding AML decision for a top-up, caps and high-value
// cooldown both, before the gateway is asked for money.
type Caps interface {
	CheckTopUp(ctx context.Context, userID, amountCents int64) error
}

type Service struct {
	Pending       Pendings
	Stripe        StripeGateway
	PayPal        PayPalGateway
	NETS          NETSGateway
	Carts         Carts
	Bookings      Bookings
	Wallets       Wallets
	Confirmations Confirmations
	Caps          Caps
	PublicURL     string
	Logger        *logger.Logger
	Now           func() time.Time
}

func NewService(pending Pendings, carts Carts, bookings Bookings, wallets Wallets, confirmations Confirmations, caps Caps, publicURL string, log *logger.Logger) *Service {
	return &Service{
		Pending: pending, Carts: carts, Bookings: bookings, Wallets: wallets,
		Confirmations: confirmations, Caps: caps,
		PublicURL: strings.TrimRight(publicURL, "/"), Logger: log, Now: time.Now,
	}
}

type StartInput struct {
	UserID   int64
	Kind     string
	Provider string
	// AmountCents is only read for top-ups; bookings charge the cart total.
	AmountCents int64
}

// Started tells the client how to pay.
type Started struct {
	Provider    string     `json:"provider"`
	Kind        string     `json:"kind"`
	Reference   string     `json:"reference"`
	AmountCents int64      `json:"amount_cents"`
	Amount      string     `json:"amount"`
	RedirectURL string     `json:"redirect_url,omitempty"`
	QRCode      string     `json:"qr_code_png,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
)

// Outcome is the result of a confirmation attempt.
type Outcome struct {
	Kind      string          `json:"kind"`
	Provider  string          `json:"provider"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Booking   *booking.Result `json:"booking,omitempty"`
	Balance   *wallet.Balance `json:"wallet,omitempty"`
}

func (s *Service) amount(ctx context.Context, in StartInput) (int64, string, error) {
	switch in.Kind {
	case KindBooking:
		view, err := s.Carts.Get(ctx, in.UserID)
		if err != nil {
			return 0, "", err
		}
		if len(view.Items) == 0 || view.TotalCents <= 0 {
			return 0, "", apperr.ErrEmptyCart
		}
		return view.TotalCents, "Coaching sessions", nil
	case KindTopUp:
		if !pricing.IsValidTopUpCents(in.AmountCents) {
			return 0, "", apperr.ErrInvalidTopUp
		}
		if s.Caps != nil {
			if err := s.Caps.CheckTopUp(ctx, in.UserID, in.AmountCents); err != nil {
				s.Logger.LogWallet("TOPUP_BLOCKED", in.UserID, fmt.Sprintf("%s %s not started: %v", in.Provider, pricing.Format(in.AmountCents), err))
				return 0, "", err
			}
		}
		return in.AmountCents, "Wallet top-up", nil
	}
	return 0, "", apperr.WithMessage(apperr.ErrInvalidRequest, "unknown payment kind")
}

// Start creates the gateway payment and remembers it until the gateway confirms.
func (s *Service) Start(ctx context.Context, in StartInput) (*Started, error) {
	// Before amount: a top-up that cannot start must not take the AML cooldown.
	if err := s.enabled(in.Provider); err != nil {
		return nil, err
	}
	amount, title, err := s.amount(ctx, in)
	if err != nil {
		return nil, err
	}
	now := s.Now().UTC()
	out := &Started{Provider: in.Provider, Kind: in.Kind, AmountCents: amount, Amount: pricing.Format(amount)}

	switch in.Provider {
	case ProviderStripe:
		if s.Stripe == nil {
			return nil, errProviderDisabled
		}
		c, err := s.Stripe.CreateSession(ctx, in.Kind, in.UserID, amount, title,
			s.PublicURL+"/payments/stripe/success?session_id={CHECKOUT_SESSION_ID}",
			s.PublicURL+"/payments/cancelled")
		if err != nil {
			return nil, s.gatewayError(in.Provider, err)
		}
		out.Reference, out.RedirectURL = c.Reference, c.RedirectURL
	case ProviderPayPal:
		if s.PayPal == nil {
			return nil, errProviderDisabled
		}
		c, err := s.PayPal.CreateOrder(ctx, utils.NewReference("pp"), amount,
			s.PublicURL+"/payments/paypal/return", s.PublicURL+"/payments/cancelled")
		if err != nil {
			return nil, s.gatewayError(in.Provider, err)
		}
		out.Reference, out.RedirectURL = c.Reference, c.RedirectURL
	case ProviderNETS:
		if s.NETS == nil {
			return nil, errProviderDisabled
		}
		qr, err := s.NETS.RequestQR(ctx, utils.NewReference("nets"), amount, now)
		if err != nil {
			return nil, s.gatewayError(in.Provider, err)
		}
		out.Reference = qr.Reference
		out.QRCode = base64.StdEncoding.EncodeToString(qr.PNG)
		out.ExpiresAt = &qr.ExpiresAt
	default:
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "unknown payment provider")
	}

	p := &Pending{Reference: out.Reference, Kind: in.Kind, Provider: in.Provider, UserID: in.UserID, AmountCents: amount, CreatedAt: now}
	if err := s.Pending.Save(ctx, p); err != nil {
		return nil, err
	}
	s.Logger.LogPayment(in.Provider, out.Reference, fmt.Sprintf("Started %s of %s for user %d", in.Kind, out.Amount, in.UserID))
	return out, nil
}

var errProviderDisabled = apperr.WithMessage(apperr.ErrInvalidRequest, "payment provider is not enabled")

func (s *Service) enabled(provider string) error {
	var ok bool
	switch provider {
	case ProviderStripe:
		ok = s.Stripe != nil
	case ProviderPayPal:
		ok = s.PayPal != nil
	case ProviderNETS:
		ok = s.NETS != nil
	default:
		return apperr.WithMessage(apperr.ErrInvalidRequest, "unknown payment provider")
	}
	if !ok {
		return errProviderDisabled
	}
	return nil
}

func (s *Service) gatewayError(provider string, err error) error {
	s.Logger.Error("PAYMENT", fmt.Sprintf("%s gateway call failed: %v", provider, err))
	return apperr.Wrap(apperr.ErrGateway, err)
}

// load returns the pending payment for ref. userID 0 skips the owner check.
func (s *Service) load(ctx context.Context, ref string, userID int64) (*Pending, error) {
	if ref == "" {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "payment reference is required")
	}
	p, err := s.Pending.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.ErrPaymentExpired
	}
	if userID != 0 && p.UserID != userID {
		s.Logger.LogSecurity("ACCESS_DENIED", fmt.Sprintf("user %d tried to confirm payment %s of user %d", userID, ref, p.UserID))
		return nil, apperr.WithMessage(apperr.ErrNotFound, "payment not found")
	}
	return p, nil
}

func (s *Service) confirmed(ctx context.Context, ref string) (bool, error) {
	c, err := s.Confirmations.FindConfirmation(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("look up payment confirmation: %w", err)
	}
	return c != nil, nil
}

// complete applies a confirmed payment. paidCents of 0 means the gateway did
// not report an amount.
func (s *Service) complete(ctx context.Context, p *Pending, paidCents int64) (*Outcome, error) {
	out := &Outcome{Kind: p.Kind, Provider: p.Provider, Reference: p.Reference, Status: StatusCompleted}
	if paidCents != 0 && paidCents != p.AmountCents {
		s.Logger.LogSecurity("AMOUNT_MISMATCH", fmt.Sprintf("%s %s paid %s, expected %s", p.Provider, p.Reference, pricing.Format(paidCents), pricing.Format(p.AmountCents)))
		return nil, apperr.WithMessage(apperr.ErrInvalidState, "paid amount does not match the payment")
	}

	switch p.Kind {
	case KindBooking:
		res, err := s.Bookings.FinalizeBookingPayment(ctx, booking.FinalizeInput{
			UserID: p.UserID, Provider: p.Provider, Reference: p.Reference, ExpectedCents: p.AmountCents,
		})
		out.Booking = res
		return out, err
	case KindTopUp:
		// Replays report the prior credit without touching the wallet.
		if done, err := s.confirmed(ctx, p.Reference); err != nil {
			return nil, err
		} else if done {
			return out, apperr.ErrAlreadyProcessed
		}
		bal, err := s.Wallets.TopUp(ctx, wallet.TopUpInput{
			UserID: p.UserID, AmountCents: p.AmountCents, Method: p.Provider, Provider: p.Provider, Reference: p.Reference,
			Captured: true,
		})
		out.Balance = bal
		return out, err
	}
	return nil, fmt.Errorf("pending payment %s has unknown kind %q", p.Reference, p.Kind)
}

// HandleStripeWebhook applies a checkout.session.completed event. Events that
// do not complete a payment return nil, nil.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) (*Outcome, error) {
	if s.Stripe == nil {
		return nil, errProviderDisabled
	}
	sess, err := s.Stripe.ParseWebhook(payload, signature)
	if err != nil || sess == nil {
		return nil, err
	}
	p, err := s.load(ctx, sess.ID, 0)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, p, sess.AmountCents)
}

// CapturePayPal captures an approved PayPal order for its owner.
func (s *Service) CapturePayPal(ctx context.Context, userID int64, orderID string) (*Outcome, error) {
	if s.PayPal == nil {
		return nil, errProviderDisabled
	}
	p, err := s.load(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if done, err := s.confirmed(ctx, orderID); err != nil {
		return nil, err
	} else if done {
		return s.complete(ctx, p, 0)
	}

	c, err := s.PayPal.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, s.gatewayError(ProviderPayPal, err)
	}
	if !c.Completed {
		return nil, apperr.WithMessage(apperr.ErrInvalidState, "PayPal payment is not completed")
	}
	return s.complete(ctx, p, c.AmountCents)
}

// CheckNETS polls a NETS QR payment and applies it once paid.
func (s *Service) CheckNETS(ctx context.Context, userID int64, ref string) (*Outcome, error) {
	if s.NETS == nil {
		return nil, errProviderDisabled
	}
	p, err := s.load(ctx, ref, userID)
	if err != nil {
		return nil, err
	}
	if done, err := s.confirmed(ctx, ref); err != nil {
		return nil, err
	} else if done {
		return s.complete(ctx, p, 0)
	}
	if QRExpired(p.CreatedAt, s.Now()) {
		return nil, apperr.ErrPaymentExpired
	}

	paid, err := s.NETS.Paid(ctx, ref)
	if err != nil {
		return nil, s.gatewayError(ProviderNETS, err)
	}
	if !paid {
		return &Outcome{Kind: p.Kind, Provider: p.Provider, Reference: ref, Status: StatusPending}, nil
	}
	return s.complete(ctx, p, 0)
}
