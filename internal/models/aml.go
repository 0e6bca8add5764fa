package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	AlertOpen     = "open"
	AlertReviewed = "reviewed"
)

type AmlAlert struct {
	bun.BaseModel `bun:"table:aml_alerts"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID      int64     `bun:"user_id,notnull" json:"user_id"`
	AlertType   string    `bun:"alert_type,notnull" json:"alert_type"`
	Reference   string    `bun:"reference" json:"reference,omitempty"`
	AmountCents int64     `bun:"amount_cents,notnull" json:"amount_cents"`
	Reason      string    `bun:"reason" json:"reason"`
	Status      string    `bun:"status,notnull" json:"status"`
	ReviewedBy  int64     `bun:"reviewed_by,nullzero" json:"reviewed_by,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}
