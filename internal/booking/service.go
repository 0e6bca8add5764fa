package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	bookingdb "ms-coaching/internal/booking/db"
	"ms-coaching/internal/cart"
	"ms-coaching/internal/config"
	"ms-coaching/internal/database"
	"ms-coaching/internal/kafka"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/obs"
	"ms-coaching/internal/pricing"
	"ms-coaching/internal/sse"
)

type Store interface {
	Create(ctx context.Context, b *models.Booking, within bookingdb.TxHook) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListForUser(ctx context.Context, userID int64) ([]models.Booking, error)
	ListForCoach(ctx context.Context, coachID int64) ([]models.Booking, error)
	CoachOwns(ctx context.Context, bookingID, coachID int64) (bool, error)
	Accept(ctx context.Context, id int64) (bool, error)
	MarkCoachCompleted(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkUserCompleted(ctx context.Context, id, userID int64, at time.Time) (bool, error)
	Settle(ctx context.Context, id int64, at time.Time) (bool, error)
	FindConfirmation(ctx context.Context, reference string) (*models.PaymentConfirmation, error)
}

type CartReader interface {
	Lines(ctx context.Context, userID int64) ([]models.CartLine, error)
}

// WalletDebiter takes the booking total out of the student's wallet inside the
// booking transaction.
type WalletDebiter interface {
	DeductForBooking(ctx context.Context, idb bun.IDB, userID, amountCents, bookingID int64) error
}

// CartSessions drops the rendered cart mirror once a checkout empties the cart.
type CartSessions interface {
	Clear(ctx context.Context, userID int64) error
}

type Service struct {
	DB       Store
	Cart     CartReader
	Sessions CartSessions
	Wallet   WalletDebiter
	Events   kafka.Publisher
	Topics   config.TopicConfig
	Emitter  *sse.BookingEventEmitter
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewService(db Store, cartReader CartReader, wallet WalletDebiter, events kafka.Publisher, topics config.TopicConfig, emitter *sse.BookingEventEmitter, log *logger.Logger) *Service {
	if events == nil {
		events = kafka.Nop{}
	}
	return &Service{
		DB:      db,
		Cart:    cartReader,
		Wallet:  wallet,
		Events:  events,
		Topics:  topics,
		Emitter: emitter,
		Logger:  log,
		Now:     time.Now,
	}
}

// Result is what checkout hands back to the caller.
type Result struct {
	BookingID  int64  `json:"order_id"`
	TotalCents int64  `json:"total_cents"`
	Total      string `json:"total"`
}

// FinalizeInput identifies a payment a gateway reported as successful.
type FinalizeInput struct {
	UserID        int64
	Provider      string
	Reference     string
	ExpectedCents int64
}

const MethodWallet = "wallet"

// Payment says how a checkout is paid. Apply runs inside the booking
// transaction and must take the money or fail.
type Payment struct {
	Method    string
	Reference string
	Apply     bookingdb.TxHook
}

// PayWithWallet books the cart and debits the wallet in the same transaction.
// Insufficient funds leave the cart and the wallet untouched.
func (s *Service) PayWithWallet(ctx context.Context, userID int64) (*Result, error) {
	if s.Wallet == nil {
		return nil, apperr.WithMessage(apperr.ErrInvalidState, "wallet payments are not enabled")
	}
	return s.ConfirmCheckout(ctx, userID, Payment{Method: MethodWallet, Apply: func(ctx context.Context, tx bun.Tx, b *models.Booking) error {
		return s.Wallet.DeductForBooking(ctx, tx, userID, b.TotalCents, b.ID)
	}})
}

// FinalizeBookingPayment books the cart for a payment the gateway confirmed.
// The reference is claimed in the booking transaction, so a repeated callback
// returns apperr.ErrAlreadyProcessed together with the original booking.
func (s *Service) FinalizeBookingPayment(ctx context.Context, in FinalizeInput) (*Result, error) {
	ctx, span := obs.Tracer("booking").Start(ctx, "booking.FinalizeBookingPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.provider", in.Provider), attribute.String("payment.reference", in.Reference))

	if in.Reference == "" {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "payment reference is required")
	}
	if prior, err := s.alreadyProcessed(ctx, in.Reference); prior != nil || err != nil {
		return prior, err
	}

	res, err := s.ConfirmCheckout(ctx, in.UserID, Payment{Method: in.Provider, Reference: in.Reference, Apply: func(ctx context.Context, tx bun.Tx, b *models.Booking) error {
		if in.ExpectedCents > 0 && b.TotalCents != in.ExpectedCents {
			return apperr.WithMessage(apperr.ErrInvalidState, "cart changed after the payment was started")
		}
		return database.ClaimReference(ctx, tx, &models.PaymentConfirmation{
			Reference: in.Reference,
			Kind:      models.ConfirmBooking,
			Provider:  in.Provider,
			UserID:    in.UserID,
			BookingID: b.ID,
			CreatedAt: s.Now().UTC(),
		})
	}})
	if errors.Is(err, apperr.ErrAlreadyProcessed) {
		return s.alreadyProcessed(ctx, in.Reference)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.Logger.LogPayment(in.Provider, in.Reference, fmt.Sprintf("Finalize failed for user %d: %v", in.UserID, err))
		return nil, err
	}
	s.Logger.LogPayment(in.Provider, in.Reference, fmt.Sprintf("Booking %d paid", res.BookingID))
	return res, nil
}

func (s *Service) alreadyProcessed(ctx context.Context, reference string) (*Result, error) {
	prior, err := s.DB.FindConfirmation(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("look up payment confirmation: %w", err)
	}
	if prior == nil {
		return nil, nil
	}
	s.Logger.Warn("PAYMENT", fmt.Sprintf("Reference %s already finalized as booking %d", reference, prior.BookingID))
	res := &Result{BookingID: prior.BookingID}
	if b, err := s.DB.GetBooking(ctx, prior.BookingID); err == nil {
		res.TotalCents = b.TotalCents
		res.Total = pricing.Format(b.TotalCents)
	}
	return res, apperr.ErrAlreadyProcessed
}

// ConfirmCheckout turns the user's cart into a pending booking paid by pay.
// PayWithWallet and FinalizeBookingPayment are the callers; a booking is
// never committed without a payment method and a hook that took the money.
func (s *Service) ConfirmCheckout(ctx context.Context, userID int64, pay Payment) (*Result, error) {
	ctx, span := obs.Tracer("booking").Start(ctx, "booking.ConfirmCheckout")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.String("payment.method", pay.Method))

	if pay.Method == "" || pay.Apply == nil {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "checkout requires a payment")
	}

	lines, err := s.Cart.Lines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, apperr.ErrEmptyCart
	}
	for _, l := range lines {
		if l.SlotAvailable || l.SlotHeldBy != userID {
			s.Logger.Warn("BOOKING", fmt.Sprintf("Slot %d in cart of user %d is no longer held", l.SlotID, userID))
			return nil, apperr.ErrSlotUnavailable
		}
	}

	total := cart.PriceLines(lines)
	b := &models.Booking{
		UserID:        userID,
		Location:      lines[0].Location,
		TotalCents:    total,
		Status:        models.BookingPending,
		PaymentMethod: pay.Method,
		PaymentRef:    pay.Reference,
		CreatedAt:     s.Now().UTC(),
	}
	for _, l := range lines {
		b.Items = append(b.Items, &models.BookingItem{
			ListingID:          l.ListingID,
			SlotID:             l.SlotID,
			CoachID:            l.CoachID,
			ListingTitle:       l.Title,
			Sport:              l.Sport,
			BasePriceCents:     l.BasePriceCents,
			DiscountPercentage: l.DiscountPercentage,
			PriceCents:         l.PriceCents,
			Quantity:           l.Quantity,
			Location:           l.Location,
			SessionDate:        l.SessionDate,
			SessionTime:        l.SessionTime,
			DurationMinutes:    l.DurationMinutes,
		})
	}

	if err := s.DB.Create(ctx, b, pay.Apply); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		if database.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.ErrSlotUnavailable, err)
		}
		s.Logger.Error("BOOKING", fmt.Sprintf("Checkout for user %d rolled back: %v", userID, err))
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.Logger.LogBooking("CREATE", b.ID, fmt.Sprintf("user %d, %d item(s), total %s", userID, len(b.Items), pricing.Format(total)))
	if s.Sessions != nil {
		if err := s.Sessions.Clear(ctx, userID); err != nil {
			s.Logger.Warn("BOOKING", fmt.Sprintf("Cart session for user %d not cleared: %v", userID, err))
		}
	}
	s.publish(ctx, s.Topics.BookingCreated, sse.EventBookingCreated, b)
	return &Result{BookingID: b.ID, TotalCents: total, Total: pricing.Format(total)}, nil
}

// BookingEvent is the Kafka payload for booking lifecycle topics.
type BookingEvent struct {
	BookingID  int64     `json:"booking_id"`
	UserID     int64     `json:"user_id"`
	TotalCents int64     `json:"total_cents"`
	CoachIDs   []int64   `json:"coach_ids"`
	SlotIDs    []int64   `json:"slot_ids"`
	At         time.Time `json:"at"`
}

// publish writes to Kafka and notifies every coach on the booking over SSE.
// Neither failure affects the already committed booking.
func (s *Service) publish(ctx context.Context, topic, sseType string, b *models.Booking) {
	now := s.Now().UTC()
	perCoach := make(map[int64]*sse.BookingEvent)
	evt := BookingEvent{BookingID: b.ID, UserID: b.UserID, TotalCents: b.TotalCents, At: now}
	for _, it := range b.Items {
		evt.SlotIDs = append(evt.SlotIDs, it.SlotID)
		ce, ok := perCoach[it.CoachID]
		if !ok {
			ce = &sse.BookingEvent{Type: sseType, BookingID: b.ID, CoachID: it.CoachID, At: now}
			perCoach[it.CoachID] = ce
			evt.CoachIDs = append(evt.CoachIDs, it.CoachID)
		}
		ce.TotalCents += it.PriceCents * int64(it.Quantity)
		ce.SlotIDs = append(ce.SlotIDs, it.SlotID)
	}

	if topic != "" {
		if err := s.Events.Publish(ctx, topic, fmt.Sprint(b.ID), evt); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("Booking %d event not published: %v", b.ID, err))
		}
	}
	if s.Emitter != nil {
		for _, ce := range perCoach {
			s.Emitter.Emit(*ce)
		}
	}
}

// GetBooking returns a booking visible to actor: its student, a coach with an
// item on it, or any admin.
func (s *Service) GetBooking(ctx context.Context, actor auth.Principal, id int64) (*models.Booking, error) {
	b, err := s.DB.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	switch p := actor.(type) {
	case auth.Admin:
		return b, nil
	case auth.Student:
		if b.UserID == p.ID {
			return b, nil
		}
	case auth.Coach:
		for _, it := range b.Items {
			if it.CoachID == p.ID {
				return b, nil
			}
		}
	}
	s.Logger.LogSecurity("ACCESS_DENIED", fmt.Sprintf("%s %d read booking %d", actor.Role(), actor.UserID(), id))
	return nil, apperr.ErrForbidden
}

func (s *Service) ListForUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	return s.DB.ListForUser(ctx, userID)
}

func (s *Service) ListForCoach(ctx context.Context, coachID int64) ([]models.Booking, error) {
	return s.DB.ListForCoach(ctx, coachID)
}
