package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	PayoutRequested  = "requested"
	PayoutApproved   = "approved"
	PayoutProcessing = "processing"
	PayoutSuccess    = "success"
	PayoutFailed     = "failed"
)

type PayoutRequest struct {
	bun.BaseModel `bun:"table:payout_requests,alias:pr"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	CoachID     int64     `bun:"coach_id,notnull" json:"coach_id"`
	AmountCents int64     `bun:"amount_cents,notnull" json:"amount_cents"`
	Currency    string    `bun:"currency,notnull" json:"currency"`
	PaypalEmail string    `bun:"paypal_email,notnull" json:"paypal_email"`
	Status      string    `bun:"status,notnull" json:"status"`
	ReviewedBy  int64     `bun:"reviewed_by,nullzero" json:"reviewed_by,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updated_at"`
	Payout      *Payout   `bun:"rel:has-one,join:id=payout_request_id" json:"payout,omitempty"`
}

// Payout is one gateway payout attempt for an approved request.
type Payout struct {
	bun.BaseModel `bun:"table:payouts"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	PayoutRequestID int64     `bun:"payout_request_id,notnull,unique" json:"payout_request_id"`
	CoachID         int64     `bun:"coach_id,notnull" json:"coach_id"`
	AmountCents     int64     `bun:"amount_cents,notnull" json:"amount_cents"`
	BatchID         string    `bun:"batch_id" json:"batch_id"`
	Status          string    `bun:"status,notnull" json:"status"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time `bun:"updated_at,notnull" json:"updated_at"`
}
