package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewReviewed = "reviewed"
)

type Review struct {
	bun.BaseModel `bun:"table:coach_reviews"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	BookingID int64     `bun:"booking_id,notnull,unique" json:"booking_id"`
	UserID    int64     `bun:"user_id,notnull" json:"user_id"`
	CoachID   int64     `bun:"coach_id,notnull" json:"coach_id"`
	Rating    int       `bun:"rating,notnull" json:"rating"`
	Comment   string    `bun:"comment" json:"comment"`
	Status    string    `bun:"status,notnull" json:"status"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
