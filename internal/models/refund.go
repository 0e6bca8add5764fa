package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	RefundPending  = "pending"
	RefundApproved = "approved"
	RefundRejected = "rejected"
)

type RefundRequest struct {
	bun.BaseModel `bun:"table:refund_requests"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	BookingID      int64     `bun:"booking_id,notnull" json:"booking_id"`
	BookingItemID  int64     `bun:"booking_item_id,notnull,unique" json:"booking_item_id"`
	UserID         int64     `bun:"user_id,notnull" json:"user_id"`
	RequestedCents int64     `bun:"requested_cents,notnull" json:"requested_cents"`
	ApprovedCents  int64     `bun:"approved_cents,notnull" json:"approved_cents"`
	Status         string    `bun:"status,notnull" json:"status"`
	Reason         string    `bun:"reason" json:"reason"`
	ReviewNote     string    `bun:"review_note" json:"review_note,omitempty"`
	ReviewedBy     int64     `bun:"reviewed_by,nullzero" json:"reviewed_by,omitempty"`
	ReviewedAt     time.Time `bun:"reviewed_at,nullzero" json:"reviewed_at,omitempty"`
	CreatedAt      time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time `bun:"updated_at,notnull" json:"updated_at"`
}
