package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Listing struct {
	bun.BaseModel `bun:"table:listings"`

	ID                 int64     `bun:"id,pk,autoincrement" json:"id"`
	CoachID            int64     `bun:"coach_id,notnull" json:"coach_id"`
	Title              string    `bun:"title,notnull" json:"title"`
	Description        string    `bun:"description" json:"description"`
	Sport              string    `bun:"sport" json:"sport"`
	SkillLevel         string    `bun:"skill_level" json:"skill_level"`
	DurationMinutes    int       `bun:"duration_minutes,notnull" json:"duration_minutes"`
	Location           string    `bun:"location" json:"location"`
	PriceCents         int64     `bun:"price_cents,notnull" json:"price_cents"`
	DiscountPercentage float64   `bun:"discount_percentage,notnull" json:"discount_percentage"`
	IsActive           bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedAt          time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// SlotDateLayout and SlotTimeLayout are the stored formats of Slot.SessionDate and Slot.SessionTime.
const (
	SlotDateLayout = "2006-01-02"
	SlotTimeLayout = "15:04"
)

type Slot struct {
	bun.BaseModel `bun:"table:slots"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	CoachID         int64     `bun:"coach_id,notnull" json:"coach_id"`
	ListingID       int64     `bun:"listing_id,nullzero" json:"listing_id,omitempty"`
	SessionDate     string    `bun:"session_date,notnull" json:"session_date"`
	SessionTime     string    `bun:"session_time,notnull" json:"session_time"`
	DurationMinutes int       `bun:"duration_minutes,notnull" json:"duration_minutes"`
	Location        string    `bun:"location" json:"location"`
	IsAvailable     bool      `bun:"is_available,notnull" json:"is_available"`
	HeldBy          int64     `bun:"held_by,nullzero" json:"-"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"created_at"`
}

// StartsAt interprets the slot's date and time in loc.
func (s *Slot) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(SlotDateLayout+" "+SlotTimeLayout, s.SessionDate+" "+s.SessionTime, loc)
}
