package listings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/pricing"
)

type Store interface {
	CreateListing(ctx context.Context, l *models.Listing) error
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	UpdateListing(ctx context.Context, l *models.Listing) error
	SetActive(ctx context.Context, id int64, active bool) (bool, error)
	DeleteListing(ctx context.Context, id int64) error
	ListActive(ctx context.Context, sport string, limit, offset int) ([]models.Listing, error)
	ListByCoach(ctx context.Context, coachID int64) ([]models.Listing, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	SetCoachStatus(ctx context.Context, coachID int64, status string) (bool, error)
}

type Service struct {
	DB     Store
	Logger *logger.Logger
	Now    func() time.Time
}

func NewService(db Store, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log, Now: time.Now}
}

type ListingInput struct {
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	Sport              string  `json:"sport"`
	SkillLevel         string  `json:"skill_level"`
	DurationMinutes    int     `json:"duration_minutes"`
	Location           string  `json:"location"`
	PriceCents         int64   `json:"price_cents"`
	DiscountPercentage float64 `json:"discount_percentage"`
}

// ListingView is a listing with its current final price.
type ListingView struct {
	models.Listing
	FinalPriceCents int64  `json:"final_price_cents"`
	FinalPrice      string `json:"final_price"`
}

func view(l models.Listing) ListingView {
	final := pricing.FinalPriceCents(l.PriceCents, l.DiscountPercentage)
	return ListingView{Listing: l, FinalPriceCents: final, FinalPrice: pricing.Format(final)}
}

func (in ListingInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return apperr.WithMessage(apperr.ErrInvalidRequest, "title is required")
	case in.PriceCents <= 0:
		return apperr.WithMessage(apperr.ErrInvalidRequest, "price must be positive")
	case !pricing.ValidDiscount(in.DiscountPercentage):
		return apperr.WithMessage(apperr.ErrInvalidRequest, "discount must be between 0 and 100")
	case in.DurationMinutes <= 0 || in.DurationMinutes%30 != 0:
		return apperr.WithMessage(apperr.ErrInvalidRequest, "duration must be a multiple of 30 minutes")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor auth.Principal, in ListingInput) (*ListingView, error) {
	coach, ok := actor.(auth.Coach)
	if !ok {
		return nil, apperr.WithMessage(apperr.ErrForbidden, "only coaches create listings")
	}
	if !coach.Approved {
		return nil, apperr.ErrCoachNotApproved
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	l := &models.Listing{
		CoachID:            coach.ID,
		Title:              strings.TrimSpace(in.Title),
		Description:        in.Description,
		Sport:              in.Sport,
		SkillLevel:         in.SkillLevel,
		DurationMinutes:    in.DurationMinutes,
		Location:           in.Location,
		PriceCents:         in.PriceCents,
		DiscountPercentage: in.DiscountPercentage,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.DB.CreateListing(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	s.Logger.LogDatabase("INSERT", "listings", fmt.Sprintf("listing %d by coach %d", l.ID, coach.ID))
	v := view(*l)
	return &v, nil
}

// owned loads a listing the actor may manage: its coach or any admin.
func (s *Service) owned(ctx context.Context, actor auth.Principal, id int64) (*models.Listing, error) {
	l, err := s.DB.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a := actor.(type) {
	case auth.Admin:
		return l, nil
	case auth.Coach:
		if l.CoachID == a.ID {
			return l, nil
		}
	}
	return nil, apperr.ErrForbidden
}

func (s *Service) Update(ctx context.Context, actor auth.Principal, id int64, in ListingInput) (*ListingView, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	l, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	l.Title = strings.TrimSpace(in.Title)
	l.Description = in.Description
	l.Sport = in.Sport
	l.SkillLevel = in.SkillLevel
	l.DurationMinutes = in.DurationMinutes
	l.Location = in.Location
	l.PriceCents = in.PriceCents
	l.DiscountPercentage = in.DiscountPercentage
	l.UpdatedAt = s.Now().UTC()

	if err := s.DB.UpdateListing(ctx, l); err != nil {
		return nil, fmt.Errorf("update listing %d: %w", id, err)
	}
	v := view(*l)
	return &v, nil
}

func (s *Service) SetActive(ctx context.Context, actor auth.Principal, id int64, active bool) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if _, err := s.DB.SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("set listing %d active=%v: %w", id, active, err)
	}
	s.Logger.Info("LISTING", fmt.Sprintf("Listing %d active=%v by user %d", id, active, actor.UserID()))
	return nil
}

// Delete is a hard delete; existing bookings lose the line items for this listing.
func (s *Service) Delete(ctx context.Context, actor auth.Principal, id int64) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.DB.DeleteListing(ctx, id); err != nil {
		return fmt.Errorf("delete listing %d: %w", id, err)
	}
	s.Logger.Warn("LISTING", fmt.Sprintf("Listing %d hard-deleted by user %d", id, actor.UserID()))
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*ListingView, error) {
	l, err := s.DB.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	v := view(*l)
	return &v, nil
}

func (s *Service) ListActive(ctx context.Context, sport string, limit, offset int) ([]ListingView, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	ls, err := s.DB.ListActive(ctx, sport, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]ListingView, 0, len(ls))
	for _, l := range ls {
		out = append(out, view(l))
	}
	return out, nil
}

func (s *Service) ListByCoach(ctx context.Context, coachID int64) ([]ListingView, error) {
	ls, err := s.DB.ListByCoach(ctx, coachID)
	if err != nil {
		return nil, err
	}
	out := make([]ListingView, 0, len(ls))
	for _, l := range ls {
		out = append(out, view(l))
	}
	return out, nil
}

// SetCoachStatus is the admin approval of a coach account.
func (s *Service) SetCoachStatus(ctx context.Context, admin auth.Admin, coachID int64, status string) error {
	if status != models.CoachApproved && status != models.CoachRejected && status != models.CoachPending {
		return apperr.WithMessage(apperr.ErrInvalidRequest, "unknown coach status")
	}
	ok, err := s.DB.SetCoachStatus(ctx, coachID, status)
	if err != nil {
		return fmt.Errorf("set coach %d status: %w", coachID, err)
	}
	if !ok {
		return apperr.WithMessage(apperr.ErrNotFound, "coach not found")
	}
	s.Logger.Info("ADMIN", fmt.Sprintf("Coach %d set to %s by admin %d", coachID, status, admin.ID))
	return nil
}
