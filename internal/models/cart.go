package models

import (
	"time"

	"github.com/uptrace/bun"
)

type CartItem struct {
	bun.BaseModel `bun:"table:cart_items"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID    int64     `bun:"user_id,notnull,unique:cart_user_slot" json:"user_id"`
	ListingID int64     `bun:"listing_id,notnull" json:"listing_id"`
	SlotID    int64     `bun:"slot_id,notnull,unique:cart_user_slot" json:"slot_id"`
	Quantity  int       `bun:"quantity,notnull" json:"quantity"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// CartLine is a cart row joined with its listing and slot, priced at read time.
type CartLine struct {
	CartItemID         int64   `bun:"cart_item_id" json:"cart_item_id"`
	ListingID          int64   `bun:"listing_id" json:"listing_id"`
	SlotID             int64   `bun:"slot_id" json:"slot_id"`
	Quantity           int     `bun:"quantity" json:"quantity"`
	CoachID            int64   `bun:"coach_id" json:"coach_id"`
	Title              string  `bun:"title" json:"title"`
	Sport              string  `bun:"sport" json:"sport"`
	Location           string  `bun:"location" json:"location"`
	BasePriceCents     int64   `bun:"price_cents" json:"base_price_cents"`
	DiscountPercentage float64 `bun:"discount_percentage" json:"discount_percentage"`
	SessionDate        string  `bun:"session_date" json:"session_date"`
	SessionTime        string  `bun:"session_time" json:"session_time"`
	DurationMinutes    int     `bun:"duration_minutes" json:"duration_minutes"`
	SlotAvailable      bool    `bun:"is_available" json:"-"`
	SlotHeldBy         int64   `bun:"held_by" json:"-"`
	PriceCents         int64   `bun:"-" json:"price_cents"`
}
