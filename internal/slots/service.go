package slots

import (
	"context"
	"fmt"
	"time"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/utils"
)

type Store interface {
	CreateSlot(ctx context.Context, s *models.Slot) error
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
	ListAvailableByListing(ctx context.Context, listingID int64, today string) ([]models.Slot, error)
	ListAvailableByCoach(ctx context.Context, coachID int64, today string) ([]models.Slot, error)
	ListByCoach(ctx context.Context, coachID int64) ([]models.Slot, error)
	ReserveSlot(ctx context.Context, slotID, listingID, holder int64) (bool, error)
	DeleteSlot(ctx context.Context, id, coachID int64) (bool, error)
}

type ListingLookup interface {
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
}

type Service struct {
	DB       Store
	Listings ListingLookup
	Logger   *logger.Logger
	Location *time.Location
	Now      func() time.Time
}

func NewService(db Store, listings ListingLookup, log *logger.Logger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{DB: db, Listings: listings, Logger: log, Location: loc, Now: time.Now}
}

type SlotInput struct {
	ListingID       int64  `json:"listing_id"`
	SessionDate     string `json:"session_date"`
	SessionTime     string `json:"session_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Location        string `json:"location"`
}

func (s *Service) CreateSlot(ctx context.Context, coach auth.Coach, in SlotInput) (*models.Slot, error) {
	if in.DurationMinutes <= 0 || in.DurationMinutes%30 != 0 {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "duration must be a multiple of 30 minutes")
	}
	day, err := time.ParseInLocation(models.SlotDateLayout, in.SessionDate, s.Location)
	if err != nil {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "session_date must be YYYY-MM-DD")
	}
	start, err := time.Parse(models.SlotTimeLayout, in.SessionTime)
	if err != nil {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "session_time must be HH:MM")
	}
	if start.Minute()%30 != 0 {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "session_time must start on the hour or half hour")
	}
	if day.Format(models.SlotDateLayout) < utils.Today(s.Now(), s.Location) {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "session_date is in the past")
	}

	location := in.Location
	if in.ListingID != 0 {
		l, err := s.Listings.GetListing(ctx, in.ListingID)
		if err != nil {
			return nil, err
		}
		if l.CoachID != coach.ID {
			return nil, apperr.WithMessage(apperr.ErrForbidden, "listing belongs to another coach")
		}
		if location == "" {
			location = l.Location
		}
	}

	slot := &models.Slot{
		CoachID:         coach.ID,
		ListingID:       in.ListingID,
		SessionDate:     day.Format(models.SlotDateLayout),
		SessionTime:     start.Format(models.SlotTimeLayout),
		DurationMinutes: in.DurationMinutes,
		Location:        location,
		IsAvailable:     true,
		CreatedAt:       s.Now().UTC(),
	}
	if err := s.DB.CreateSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}
	s.Logger.LogDatabase("INSERT", "slots", fmt.Sprintf("slot %d %s %s coach %d", slot.ID, slot.SessionDate, slot.SessionTime, coach.ID))
	return slot, nil
}

func (s *Service) ListAvailableByListing(ctx context.Context, listingID int64) ([]models.Slot, error) {
	return s.DB.ListAvailableByListing(ctx, listingID, utils.Today(s.Now(), s.Location))
}

func (s *Service) ListAvailableByCoach(ctx context.Context, coachID int64) ([]models.Slot, error) {
	return s.DB.ListAvailableByCoach(ctx, coachID, utils.Today(s.Now(), s.Location))
}

func (s *Service) ListByCoach(ctx context.Context, coachID int64) ([]models.Slot, error) {
	return s.DB.ListByCoach(ctx, coachID)
}

// ReserveSlot marks the slot taken by holder if it is still open and tied to listingID.
func (s *Service) ReserveSlot(ctx context.Context, slotID, listingID, holder int64) (bool, error) {
	ok, err := s.DB.ReserveSlot(ctx, slotID, listingID, holder)
	if err != nil {
		return false, fmt.Errorf("reserve slot %d: %w", slotID, err)
	}
	if !ok {
		s.Logger.Debug("SLOT", fmt.Sprintf("Slot %d not reservable for listing %d", slotID, listingID))
	}
	return ok, nil
}

func (s *Service) DeleteSlot(ctx context.Context, coach auth.Coach, id int64) error {
	ok, err := s.DB.DeleteSlot(ctx, id, coach.ID)
	if err != nil {
		return fmt.Errorf("delete slot %d: %w", id, err)
	}
	if !ok {
		return apperr.WithMessage(apperr.ErrInvalidState, "slot not found, not yours, or already reserved")
	}
	return nil
}
