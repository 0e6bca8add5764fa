package cart

import (
	"context"
	"fmt"

	"ms-coaching/internal/apperr"
	cartdb "ms-coaching/internal/cart/db"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/pricing"
)

type Store interface {
	GetItem(ctx context.Context, userID, itemID int64) (*models.CartItem, error)
	FindItem(ctx context.Context, userID, listingID, slotID int64) (*models.CartItem, error)
	AddHeld(ctx context.Context, item *models.CartItem) (bool, error)
	Lines(ctx context.Context, userID int64) ([]models.CartLine, error)
	RemoveItem(ctx context.Context, userID, itemID int64) (bool, error)
	Clear(ctx context.Context, userID int64) error
}

// Catalog answers the add-time checks.
type Catalog interface {
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
}

type Session interface {
	Save(ctx context.Context, userID int64, v *View) error
	Load(ctx context.Context, userID int64) (*View, error)
	Clear(ctx context.Context, userID int64) error
}

type Service struct {
	DB      Store
	Catalog Catalog
	Session Session
	Logger  *logger.Logger
}

func NewService(db Store, catalog Catalog, session Session, log *logger.Logger) *Service {
	return &Service{DB: db, Catalog: catalog, Session: session, Logger: log}
}

// View is a priced snapshot of the cart.
type View struct {
	Items      []models.CartLine `json:"items"`
	TotalCents int64             `json:"total_cents"`
	Total      string            `json:"total"`
}

// PriceLines fills PriceCents on every line and returns the cart total.
func PriceLines(lines []models.CartLine) int64 {
	var total int64
	for i := range lines {
		lines[i].PriceCents = pricing.FinalPriceCents(lines[i].BasePriceCents, lines[i].DiscountPercentage)
		total += lines[i].PriceCents * int64(lines[i].Quantity)
	}
	return total
}

func (s *Service) Get(ctx context.Context, userID int64) (*View, error) {
	lines, err := s.DB.Lines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	if lines == nil {
		lines = []models.CartLine{}
	}
	total := PriceLines(lines)
	return &View{Items: lines, TotalCents: total, Total: pricing.Format(total)}, nil
}

// Cached renders the cart from the session mirror, falling back to storage on
// a miss. Anything that prices or books a cart uses Get instead.
func (s *Service) Cached(ctx context.Context, userID int64) (*View, error) {
	if s.Session != nil {
		v, err := s.Session.Load(ctx, userID)
		if err != nil {
			s.Logger.Warn("CART", fmt.Sprintf("Session read for user %d failed: %v", userID, err))
		}
		if v != nil {
			return v, nil
		}
	}
	return s.refresh(ctx, userID)
}

// refresh re-reads storage and mirrors the result into the session cache.
func (s *Service) refresh(ctx context.Context, userID int64) (*View, error) {
	v, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.Session != nil {
		if err := s.Session.Save(ctx, userID, v); err != nil {
			s.Logger.Warn("CART", fmt.Sprintf("Session mirror for user %d failed: %v", userID, err))
		}
	}
	return v, nil
}

// AddOrIncrement puts a slot of a listing in the cart and holds the slot for the
// user. Adding the same listing and slot again leaves the cart unchanged.
func (s *Service) AddOrIncrement(ctx context.Context, userID, listingID, slotID int64) (*View, error) {
	existing, err := s.DB.FindItem(ctx, userID, listingID, slotID)
	if err != nil {
		return nil, fmt.Errorf("find cart item: %w", err)
	}
	if existing != nil {
		return s.refresh(ctx, userID)
	}

	listing, err := s.Catalog.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !listing.IsActive {
		return nil, apperr.ErrListingInactive
	}
	coach, err := s.Catalog.GetUser(ctx, listing.CoachID)
	if err != nil {
		return nil, err
	}
	if coach.CoachStatus != models.CoachApproved {
		return nil, apperr.ErrCoachNotApproved
	}
	slot, err := s.Catalog.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.ListingID != listingID || !slot.IsAvailable {
		return nil, apperr.ErrSlotUnavailable
	}

	ok, err := s.DB.AddHeld(ctx, cartdb.NewItem(userID, listingID, slotID))
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}
	if !ok {
		return nil, apperr.ErrSlotUnavailable
	}
	s.Logger.Info("CART", fmt.Sprintf("User %d holds slot %d of listing %d", userID, slotID, listingID))
	return s.refresh(ctx, userID)
}

// UpdateQuantity accepts 1 (no change) or <= 0 (remove). Larger quantities make
// no sense for a single time slot and are rejected.
func (s *Service) UpdateQuantity(ctx context.Context, userID, itemID int64, qty int) (*View, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, userID, itemID)
	}
	if qty != 1 {
		return nil, apperr.ErrInvalidQuantity
	}
	if _, err := s.DB.GetItem(ctx, userID, itemID); err != nil {
		return nil, err
	}
	return s.refresh(ctx, userID)
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID int64) (*View, error) {
	if _, err := s.DB.RemoveItem(ctx, userID, itemID); err != nil {
		return nil, err
	}
	return s.refresh(ctx, userID)
}

func (s *Service) Clear(ctx context.Context, userID int64) error {
	if err := s.DB.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	if s.Session != nil {
		if err := s.Session.Clear(ctx, userID); err != nil {
			s.Logger.Warn("CART", fmt.Sprintf("Session clear for user %d failed: %v", userID, err))
		}
	}
	return nil
}
