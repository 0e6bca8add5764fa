package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	TxTopUp  = "TOPUP"
	TxDebit  = "DEBIT"
	TxRefund = "REFUND"

	TxCompleted = "completed"
)

type Wallet struct {
	bun.BaseModel `bun:"table:wallets"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID       int64     `bun:"user_id,notnull,unique" json:"user_id"`
	BalanceCents int64     `bun:"balance_cents,notnull" json:"balance_cents"`
	Points       int64     `bun:"points,notnull" json:"points"`
	UpdatedAt    time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// WalletTransaction rows are append-only. AmountCents is signed.
type WalletTransaction struct {
	bun.BaseModel `bun:"table:wallet_transactions"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID      int64     `bun:"user_id,notnull" json:"user_id"`
	AmountCents int64     `bun:"amount_cents,notnull" json:"amount_cents"`
	Method      string    `bun:"method,notnull" json:"method"`
	Type        string    `bun:"type,notnull" json:"type"`
	Status      string    `bun:"status,notnull" json:"status"`
	Reference   string    `bun:"reference" json:"reference,omitempty"`
	BookingID   int64     `bun:"booking_id,nullzero" json:"booking_id,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}
