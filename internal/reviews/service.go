package reviews

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
)

type Store interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	Create(ctx context.Context, r *models.Review) error
	ExistsForBooking(ctx context.Context, bookingID int64) (bool, error)
	Get(ctx context.Context, id int64) (*models.Review, error)
	SetStatus(ctx context.Context, id int64, status string) (bool, error)
	ListByCoach(ctx context.Context, coachID int64, status string) ([]models.Review, error)
	ListByStatus(ctx context.Context, status string) ([]models.Review, error)
}

type Service struct {
	DB     Store
	Logger *logger.Logger
	Now    func() time.Time
}

func NewService(db Store, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log, Now: time.Now}
}

type SubmitInput struct {
	BookingID int64  `json:"booking_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

// Submit records the student's review of a settled booking. New reviews wait
// for moderation before they are shown.
func (s *Service) Submit(ctx context.Context, student auth.Student, in SubmitInput) (*models.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "rating must be between 1 and 5")
	}
	b, err := s.DB.GetBooking(ctx, in.BookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != student.ID {
		s.Logger.LogSecurity("ACCESS_DENIED", fmt.Sprintf("student %d reviewed booking %d of user %d", student.ID, b.ID, b.UserID))
		return nil, apperr.ErrForbidden
	}
	if b.ConfirmationState() != models.StateSettled {
		return nil, apperr.ErrNotSettled
	}
	exists, err := s.DB.ExistsForBooking(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("check review: %w", err)
	}
	if exists {
		return nil, apperr.ErrReviewExists
	}
	if len(b.Items) == 0 {
		return nil, apperr.WithMessage(apperr.ErrInvalidState, "booking has no items")
	}

	r := &models.Review{
		BookingID: b.ID,
		UserID:    student.ID,
		CoachID:   b.Items[0].CoachID,
		Rating:    in.Rating,
		Comment:   strings.TrimSpace(in.Comment),
		Status:    models.ReviewPending,
		CreatedAt: s.Now().UTC(),
	}
	if err := s.DB.Create(ctx, r); err != nil {
		return nil, err
	}
	s.Logger.Info("REVIEW", fmt.Sprintf("Booking %d reviewed %d/5 by student %d", b.ID, r.Rating, student.ID))
	return r, nil
}

// Moderate sets a review to approved (publicly visible) or reviewed (hidden).
func (s *Service) Moderate(ctx context.Context, admin auth.Admin, id int64, status string) (*models.Review, error) {
	switch status {
	case models.ReviewApproved, models.ReviewReviewed, models.ReviewPending:
	default:
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "unknown review status")
	}
	ok, err := s.DB.SetStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("moderate review: %w", err)
	}
	if !ok {
		return nil, apperr.WithMessage(apperr.ErrNotFound, "review not found")
	}
	s.Logger.Info("REVIEW", fmt.Sprintf("Review %d set to %s by admin %d", id, status, admin.ID))
	return s.DB.Get(ctx, id)
}

// CoachReviews is the public view of a coach's approved reviews.
type CoachReviews struct {
	CoachID int64           `json:"coach_id"`
	Count   int             `json:"count"`
	Average float64         `json:"average"`
	Reviews []models.Review `json:"reviews"`
}

func (s *Service) ListPublic(ctx context.Context, coachID int64) (*CoachReviews, error) {
	list, err := s.DB.ListByCoach(ctx, coachID, models.ReviewApproved)
	if err != nil {
		return nil, err
	}
	out := &CoachReviews{CoachID: coachID, Count: len(list), Reviews: list}
	if out.Reviews == nil {
		out.Reviews = []models.Review{}
	}
	if len(list) > 0 {
		var sum int
		for _, r := range list {
			sum += r.Rating
		}
		out.Average = float64(sum*100/len(list)) / 100
	}
	return out, nil
}

func (s *Service) ListPending(ctx context.Context) ([]models.Review, error) {
	return s.DB.ListByStatus(ctx, models.ReviewPending)
}
