package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	BookingPending   = "pending"
	BookingAccepted  = "accepted"
	BookingCompleted = "completed"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID               int64          `bun:"id,pk,autoincrement" json:"id"`
	UserID           int64          `bun:"user_id,notnull" json:"user_id"`
	Location         string         `bun:"location" json:"location"`
	TotalCents       int64          `bun:"total_cents,notnull" json:"total_cents"`
	Status           string         `bun:"status,notnull" json:"status"`
	PaymentMethod    string         `bun:"payment_method" json:"payment_method"`
	PaymentRef       string         `bun:"payment_ref" json:"payment_ref,omitempty"`
	CreatedAt        time.Time      `bun:"created_at,notnull" json:"created_at"`
	CoachCompletedAt time.Time      `bun:"coach_completed_at,nullzero" json:"coach_completed_at,omitempty"`
	UserCompletedAt  time.Time      `bun:"user_completed_at,nullzero" json:"user_completed_at,omitempty"`
	CompletedAt      time.Time      `bun:"completed_at,nullzero" json:"completed_at,omitempty"`
	Items            []*BookingItem `bun:"rel:has-many,join:id=booking_id" json:"items,omitempty"`
}

// Confirmation states derived from the two completion timestamps.
const (
	StatePending        = "pending"
	StateUserConfirmed  = "user_confirmed"
	StateCoachConfirmed = "coach_confirmed"
	StateSettled        = "settled"
)

func (b *Booking) ConfirmationState() string {
	switch {
	case !b.CompletedAt.IsZero(), !b.CoachCompletedAt.IsZero() && !b.UserCompletedAt.IsZero():
		return StateSettled
	case !b.CoachCompletedAt.IsZero():
		return StateCoachConfirmed
	case !b.UserCompletedAt.IsZero():
		return StateUserConfirmed
	default:
		return StatePending
	}
}

type BookingItem struct {
	bun.BaseModel `bun:"table:booking_items"`

	ID                 int64   `bun:"id,pk,autoincrement" json:"id"`
	BookingID          int64   `bun:"booking_id,notnull" json:"booking_id"`
	ListingID          int64   `bun:"listing_id,notnull" json:"listing_id"`
	SlotID             int64   `bun:"slot_id,notnull,unique" json:"slot_id"`
	CoachID            int64   `bun:"coach_id,notnull" json:"coach_id"`
	ListingTitle       string  `bun:"listing_title,notnull" json:"listing_title"`
	Sport              string  `bun:"sport" json:"sport"`
	BasePriceCents     int64   `bun:"base_price_cents,notnull" json:"base_price_cents"`
	DiscountPercentage float64 `bun:"discount_percentage,notnull" json:"discount_percentage"`
	PriceCents         int64   `bun:"price_cents,notnull" json:"price_cents"`
	Quantity           int     `bun:"quantity,notnull" json:"quantity"`
	Location           string  `bun:"location" json:"location"`
	SessionDate        string  `bun:"session_date,notnull" json:"session_date"`
	SessionTime        string  `bun:"session_time,notnull" json:"session_time"`
	DurationMinutes    int     `bun:"duration_minutes,notnull" json:"duration_minutes"`
}

const (
	ConfirmBooking = "booking"
	ConfirmTopUp   = "topup"
)

// PaymentConfirmation records that a gateway reference has been applied.
type PaymentConfirmation struct {
	bun.BaseModel `bun:"table:payment_confirmations"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Reference string    `bun:"reference,notnull,unique"`
	Kind      string    `bun:"kind,notnull"`
	Provider  string    `bun:"provider,notnull"`
	UserID    int64     `bun:"user_id,notnull"`
	BookingID int64     `bun:"booking_id,nullzero"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}
