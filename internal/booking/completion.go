package booking

import (
	"context"
	"fmt"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/models"
	"ms-coaching/internal/sse"
)

// AcceptBooking moves a pending booking to accepted. Accepting twice is a no-op.
func (s *Service) AcceptBooking(ctx context.Context, coach auth.Coach, id int64) (*models.Booking, error) {
	if err := s.requireCoachOwns(ctx, coach, id); err != nil {
		return nil, err
	}
	ok, err := s.DB.Accept(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("accept booking: %w", err)
	}
	b, err := s.DB.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok && b.Status == models.BookingPending {
		return nil, apperr.ErrInvalidState
	}
	if ok {
		s.Logger.LogBooking("ACCEPT", id, fmt.Sprintf("accepted by coach %d", coach.ID))
	}
	return b, nil
}

// MarkCompletedByCoach records the coach side of completion. The timestamp is
// set once and never overwritten.
func (s *Service) MarkCompletedByCoach(ctx context.Context, coach auth.Coach, id int64) (*models.Booking, error) {
	if err := s.requireCoachOwns(ctx, coach, id); err != nil {
		return nil, err
	}
	set, err := s.DB.MarkCoachCompleted(ctx, id, s.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark coach completed: %w", err)
	}
	if set {
		s.Logger.LogBooking("COACH_COMPLETE", id, fmt.Sprintf("coach %d confirmed the session", coach.ID))
	}
	return s.settleIfReady(ctx, id)
}

// ConfirmDelivery records the student side of completion on an accepted booking.
func (s *Service) ConfirmDelivery(ctx context.Context, student auth.Student, id int64) (*models.Booking, error) {
	b, err := s.DB.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != student.ID {
		s.Logger.LogSecurity("ACCESS_DENIED", fmt.Sprintf("student %d confirmed booking %d of user %d", student.ID, id, b.UserID))
		return nil, apperr.ErrForbidden
	}
	if b.Status != models.BookingAccepted && b.Status != models.BookingCompleted {
		return nil, apperr.WithMessage(apperr.ErrInvalidState, "the coach has not accepted this booking yet")
	}
	set, err := s.DB.MarkUserCompleted(ctx, id, student.ID, s.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark user completed: %w", err)
	}
	if set {
		s.Logger.LogBooking("USER_COMPLETE", id, fmt.Sprintf("student %d confirmed the session", student.ID))
	}
	return s.settleIfReady(ctx, id)
}

// settleIfReady completes the booking when both sides have confirmed. Only the
// caller whose update lands publishes booking.settled.
func (s *Service) settleIfReady(ctx context.Context, id int64) (*models.Booking, error) {
	settled, err := s.DB.Settle(ctx, id, s.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("settle booking: %w", err)
	}
	b, err := s.DB.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if settled {
		s.Logger.LogBooking("SETTLE", id, "both sides confirmed")
		s.publish(ctx, s.Topics.BookingSettled, sse.EventBookingSettled, b)
	}
	return b, nil
}

func (s *Service) requireCoachOwns(ctx context.Context, coach auth.Coach, id int64) error {
	if _, err := s.DB.GetBooking(ctx, id); err != nil {
		return err
	}
	owns, err := s.DB.CoachOwns(ctx, id, coach.ID)
	if err != nil {
		return fmt.Errorf("check booking owner: %w", err)
	}
	if !owns {
		s.Logger.LogSecurity("ACCESS_DENIED", fmt.Sprintf("coach %d has no items on booking %d", coach.ID, id))
		return apperr.ErrForbidden
	}
	return nil
}
