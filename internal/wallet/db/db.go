package db

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// Ensure creates an empty wallet for the user if none exists.
func Ensure(ctx context.Context, idb bun.IDB, userID int64, at time.Time) error {
	w := &models.Wallet{UserID: userID, UpdatedAt: at}
	_, err := idb.NewInsert().Model(w).On("CONFLICT (user_id) DO NOTHING").Returning("NULL").Exec(ctx)
	return err
}

// Entry is one balance change and its ledger row.
type Entry struct {
	UserID      int64
	AmountCents int64
	Points      int64
	Type        string
	Method      string
	Reference   string
	BookingID   int64
	At          time.Time
}

// Credit adds a positive amount and appends the matching ledger row. It must
// run inside the caller's transaction.
func Credit(ctx context.Context, idb bun.IDB, e Entry) error {
	if e.AmountCents <= 0 {
		return apperr.WithMessage(apperr.ErrInvalidRequest, "credit amount must be positive")
	}
	if err := Ensure(ctx, idb, e.UserID, e.At); err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	_, err := idb.NewUpdate().
		Model((*models.Wallet)(nil)).
		Set("balance_cents = balance_cents + ?", e.AmountCents).
		Set("points = points + ?", e.Points).
		Set("updated_at = ?", e.At).
		Where("user_id = ?", e.UserID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return appendTx(ctx, idb, e, e.AmountCents)
}

// Debit removes amount only if the balance covers it. The conditional update
// is what prevents overdraft under concurrent debits.
func Debit(ctx context.Context, idb bun.IDB, e Entry) error {
	if e.AmountCents <= 0 {
		return apperr.WithMessage(apperr.ErrInvalidRequest, "debit amount must be positive")
	}
	res, err := idb.NewUpdate().
		Model((*models.Wallet)(nil)).
		Set("balance_cents = balance_cents - ?", e.AmountCents).
		Set("updated_at = ?", e.At).
		Where("user_id = ?", e.UserID).
		Where("balance_cents >= ?", e.AmountCents).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		if err != nil {
			return err
		}
		return apperr.ErrInsufficientFund
	}
	return appendTx(ctx, idb, e, -e.AmountCents)
}

func appendTx(ctx context.Context, idb bun.IDB, e Entry, signed int64) error {
	_, err := idb.NewInsert().Model(&models.WalletTransaction{
		UserID:      e.UserID,
		AmountCents: signed,
		Method:      e.Method,
		Type:        e.Type,
		Status:      models.TxCompleted,
		Reference:   e.Reference,
		BookingID:   e.BookingID,
		CreatedAt:   e.At,
	}).Exec(ctx)
	if err != nil {
		return fmt.Errorf("append wallet transaction: %w", err)
	}
	return nil
}

// GetWallet returns a zero wallet for users who never transacted.
func (d *DB) GetWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	var ws []models.Wallet
	if err := d.Bun.NewSelect().Model(&ws).Where("user_id = ?", userID).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	if len(ws) == 0 {
		return &models.Wallet{UserID: userID}, nil
	}
	return &ws[0], nil
}

func (d *DB) ListTransactions(ctx context.Context, userID int64, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.WalletTransaction
	err := d.Bun.NewSelect().
		Model(&out).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, id DESC").
		Limit(limit).
		Scan(ctx)
	return out, err
}

// LedgerSum is the sum of all ledger rows; it always equals the balance.
func (d *DB) LedgerSum(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := d.Bun.NewSelect().
		Model((*models.WalletTransaction)(nil)).
		ColumnExpr("COALESCE(SUM(amount_cents), 0)").
		Where("user_id = ?", userID).
		Scan(ctx, &sum)
	return sum, err
}

// TopUpTotalSince sums completed top-ups at or after since.
func (d *DB) TopUpTotalSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var sum int64
	err := d.Bun.NewSelect().
		Model((*models.WalletTransaction)(nil)).
		ColumnExpr("COALESCE(SUM(amount_cents), 0)").
		Where("user_id = ?", userID).
		Where("type = ?", models.TxTopUp).
		Where("status = ?", models.TxCompleted).
		Where("created_at >= ?", since).
		Scan(ctx, &sum)
	return sum, err
}

// TopUp credits the wallet. A non-nil claim runs first in the same
// transaction, so a rejected claim leaves the balance alone.
func (d *DB) TopUp(ctx context.Context, e Entry, claim func(ctx context.Context, tx bun.Tx) error) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if claim != nil {
			if err := claim(ctx, tx); err != nil {
				return err
			}
		}
		return Credit(ctx, tx, e)
	})
}
