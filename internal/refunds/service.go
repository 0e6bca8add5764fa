package refunds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/kafka"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/obs"
	"ms-coaching/internal/pricing"
	refunddb "ms-coaching/internal/refunds/db"
)

type Store interface {
	GetItemWithBooking(ctx context.Context, itemID int64) (*models.BookingItem, *models.Booking, error)
	Get(ctx context.Context, id int64) (*models.RefundRequest, error)
	FindByItem(ctx context.Context, itemID int64) (*models.RefundRequest, error)
	Create(ctx context.Context, r *models.RefundRequest) error
	Resubmit(ctx context.Context, r *models.RefundRequest) (bool, error)
	Approve(ctx context.Context, id, adminID, approvedCents int64, at time.Time, credit refunddb.CreditFunc) (*models.RefundRequest, error)
	Reject(ctx context.Context, id, adminID int64, note string, at time.Time) (bool, error)
	List(ctx context.Context, status string) ([]models.RefundRequest, error)
	ListForUser(ctx context.Context, userID int64) ([]models.RefundRequest, error)
}

type WalletCrediter interface {
	CreditRefund(ctx context.Context, idb bun.IDB, userID, amountCents, bookingID int64, reference string) error
}

type Service struct {
	DB       Store
	Wallet   WalletCrediter
	Events   kafka.Publisher
	Topic    string
	Logger   *logger.Logger
	Location *time.Location
	Now      func() time.Time
}

func NewService(db Store, wallet WalletCrediter, events kafka.Publisher, topic string, log *logger.Logger, loc *time.Location) *Service {
	if events == nil {
		events = kafka.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{DB: db, Wallet: wallet, Events: events, Topic: topic, Logger: log, Location: loc, Now: time.Now}
}

// eligible reports whether the session is over or the booking is settled.
func (s *Service) eligible(it *models.BookingItem, b *models.Booking) bool {
	if b.Status == models.BookingCompleted || !b.CompletedAt.IsZero() {
		return true
	}
	slot := models.Slot{SessionDate: it.SessionDate, SessionTime: it.SessionTime}
	start, err := slot.StartsAt(s.Location)
	if err != nil {
		return false
	}
	return start.Before(s.Now())
}

// paidCents is what the student paid for the item, or zero when the booking
// was committed without a payment.
func paidCents(it *models.BookingItem, b *models.Booking) int64 {
	if b.PaymentMethod == "" {
		return 0
	}
	amount := it.PriceCents * int64(it.Quantity)
	if amount > b.TotalCents {
		amount = b.TotalCents
	}
	return amount
}

// RequestRefund asks for the full price of one booked item back. A rejected
// request for the same item is reopened rather than duplicated.
func (s *Service) RequestRefund(ctx context.Context, student auth.Student, itemID int64, reason string) (*models.RefundRequest, error) {
	it, b, err := s.DB.GetItemWithBooking(ctx, itemID)
	if err != nil {
		return nil, apperr.Wrap(apperr.WithMessage(apperr.ErrInvalidRequest, "booking item not found"), err)
	}
	if b.UserID != student.ID {
		s.Logger.LogSecurity("ACCESS_DENIED", fmt.Sprintf("student %d requested refund on item %d of user %d", student.ID, itemID, b.UserID))
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "booking item not found")
	}
	if !s.eligible(it, b) || b.PaymentMethod == "" {
		return nil, apperr.ErrNotEligible
	}
	amount := paidCents(it, b)
	if amount <= 0 {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "nothing to refund for this item")
	}

	now := s.Now().UTC()
	r := &models.RefundRequest{
		BookingID:      b.ID,
		BookingItemID:  it.ID,
		UserID:         student.ID,
		RequestedCents: amount,
		Status:         models.RefundPending,
		Reason:         strings.TrimSpace(reason),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	existing, err := s.DB.FindByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("look up refund: %w", err)
	}
	switch {
	case existing == nil:
		if err := s.DB.Create(ctx, r); err != nil {
			return nil, err
		}
	case existing.Status == models.RefundRejected:
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
		ok, err := s.DB.Resubmit(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("resubmit refund: %w", err)
		}
		if !ok {
			return nil, apperr.ErrRefundExists
		}
	default:
		return nil, apperr.ErrRefundExists
	}

	s.Logger.LogWallet("REFUND_REQUESTED", student.ID, fmt.Sprintf("item %d, %s", itemID, pricing.Format(amount)))
	return r, nil
}

// RefundApproved is published after the wallet credit commits.
type RefundApproved struct {
	RefundID      int64     `json:"refund_id"`
	UserID        int64     `json:"user_id"`
	BookingID     int64     `json:"booking_id"`
	ApprovedCents int64     `json:"approved_cents"`
	ApprovedBy    int64     `json:"approved_by"`
	At            time.Time `json:"at"`
}

// ApproveRefund credits approvedCents to the student's wallet. The credit is
// capped by the request and by what was paid for the item.
func (s *Service) ApproveRefund(ctx context.Context, admin auth.Admin, id, approvedCents int64) (*models.RefundRequest, error) {
	ctx, span := obs.Tracer("refunds").Start(ctx, "refunds.ApproveRefund")
	defer span.End()
	span.SetAttributes(attribute.Int64("refund.id", id), attribute.Int64("refund.approved_cents", approvedCents))

	if approvedCents <= 0 {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "approved amount must be positive")
	}
	req, err := s.DB.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == models.RefundPending {
		it, b, err := s.DB.GetItemWithBooking(ctx, req.BookingItemID)
		if err != nil {
			return nil, fmt.Errorf("load refunded item: %w", err)
		}
		paid := paidCents(it, b)
		if paid == 0 {
			s.Logger.LogSecurity("REFUND_UNPAID", fmt.Sprintf("refund %d is for unpaid booking %d", id, b.ID))
			return nil, apperr.ErrNotEligible
		}
		if approvedCents > paid {
			return nil, apperr.ErrAmountTooHigh
		}
	}
	now := s.Now().UTC()
	r, err := s.DB.Approve(ctx, id, admin.ID, approvedCents, now, func(ctx context.Context, tx bun.Tx, r *models.RefundRequest) error {
		return s.Wallet.CreditRefund(ctx, tx, r.UserID, r.ApprovedCents, r.BookingID, fmt.Sprintf("refund:%d", r.ID))
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.Logger.Error("REFUND", fmt.Sprintf("Approve refund %d by admin %d failed: %v", id, admin.ID, err))
		return nil, err
	}

	s.Logger.LogWallet("REFUND_APPROVED", r.UserID, fmt.Sprintf("refund %d, %s by admin %d", r.ID, pricing.Format(approvedCents), admin.ID))
	if s.Topic != "" {
		evt := RefundApproved{RefundID: r.ID, UserID: r.UserID, BookingID: r.BookingID, ApprovedCents: approvedCents, ApprovedBy: admin.ID, At: now}
		if err := s.Events.Publish(ctx, s.Topic, fmt.Sprint(r.UserID), evt); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("Refund %d event not published: %v", r.ID, err))
		}
	}
	return r, nil
}

func (s *Service) RejectRefund(ctx context.Context, admin auth.Admin, id int64, note string) (*models.RefundRequest, error) {
	ok, err := s.DB.Reject(ctx, id, admin.ID, strings.TrimSpace(note), s.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("reject refund: %w", err)
	}
	if !ok {
		if _, err := s.DB.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, apperr.ErrNotPending
	}
	s.Logger.Info("REFUND", fmt.Sprintf("Refund %d rejected by admin %d", id, admin.ID))
	return s.DB.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status string) ([]models.RefundRequest, error) {
	switch status {
	case "", models.RefundPending, models.RefundApproved, models.RefundRejected:
	default:
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "unknown refund status")
	}
	return s.DB.List(ctx, status)
}

func (s *Service) ListForUser(ctx context.Context, userID int64) ([]models.RefundRequest, error) {
	return s.DB.ListForUser(ctx, userID)
}
