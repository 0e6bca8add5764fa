package db

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-coaching/internal/apperr"
	cartdb "ms-coaching/internal/cart/db"
	"ms-coaching/internal/database"
	"ms-coaching/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// TxHook runs inside the booking transaction after the header and items exist.
// Returning an error rolls the whole booking back.
type TxHook func(ctx context.Context, tx bun.Tx, b *models.Booking) error

// Create inserts the header, its items and clears the owner's cart in one
// transaction. b.Items must be populated; their BookingID is filled in here.
func (d *DB) Create(ctx context.Context, b *models.Booking, within TxHook) error {
	if len(b.Items) == 0 {
		return apperr.ErrEmptyCart
	}
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(b).Exec(ctx); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		for _, it := range b.Items {
			it.BookingID = b.ID
		}
		if _, err := tx.NewInsert().Model(&b.Items).Exec(ctx); err != nil {
			return fmt.Errorf("insert booking items: %w", err)
		}
		if err := cartdb.DeleteAll(ctx, tx, b.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if within != nil {
			return within(ctx, tx, b)
		}
		return nil
	})
}

func (d *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return GetBooking(ctx, d.Bun, id)
}

// GetBooking loads a booking with its items.
func GetBooking(ctx context.Context, idb bun.IDB, id int64) (*models.Booking, error) {
	var b models.Booking
	err := idb.NewSelect().
		Model(&b).
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery { return q.OrderExpr("id ASC") }).
		Where("b.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err, "booking")
	}
	return &b, nil
}

// GetItem returns a booking item joined to nothing; callers load the header separately.
func GetItem(ctx context.Context, idb bun.IDB, itemID int64) (*models.BookingItem, error) {
	var it models.BookingItem
	if err := idb.NewSelect().Model(&it).Where("id = ?", itemID).Limit(1).Scan(ctx); err != nil {
		return nil, database.NotFound(err, "booking item")
	}
	return &it, nil
}

func (d *DB) ListForUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	var out []models.Booking
	err := d.Bun.NewSelect().
		Model(&out).
		Relation("Items").
		Where("b.user_id = ?", userID).
		OrderExpr("b.created_at DESC, b.id DESC").
		Scan(ctx)
	return out, err
}

// ListForCoach returns bookings holding at least one of the coach's items.
func (d *DB) ListForCoach(ctx context.Context, coachID int64) ([]models.Booking, error) {
	owned := d.Bun.NewSelect().
		Model((*models.BookingItem)(nil)).
		Column("booking_id").
		Where("coach_id = ?", coachID)

	var out []models.Booking
	err := d.Bun.NewSelect().
		Model(&out).
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery { return q.Where("coach_id = ?", coachID) }).
		Where("b.id IN (?)", owned).
		OrderExpr("b.created_at DESC, b.id DESC").
		Scan(ctx)
	return out, err
}

func (d *DB) CoachOwns(ctx context.Context, bookingID, coachID int64) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.BookingItem)(nil)).
		Where("booking_id = ?", bookingID).
		Where("coach_id = ?", coachID).
		Exists(ctx)
}

func (d *DB) Accept(ctx context.Context, id int64) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingAccepted).
		Where("id = ?", id).
		Where("status = ?", models.BookingPending).
		Exec(ctx)
	return database.Affected(res, err)
}

// MarkCoachCompleted sets the coach timestamp once; later calls change nothing.
func (d *DB) MarkCoachCompleted(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("coach_completed_at = ?", at).
		Where("id = ?", id).
		Where("coach_completed_at IS NULL").
		Exec(ctx)
	return database.Affected(res, err)
}

// MarkUserCompleted sets the student timestamp once, and only on an accepted booking.
func (d *DB) MarkUserCompleted(ctx context.Context, id, userID int64, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("user_completed_at = ?", at).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Where("user_completed_at IS NULL").
		Where("status IN (?)", bun.In([]string{models.BookingAccepted, models.BookingCompleted})).
		Exec(ctx)
	return database.Affected(res, err)
}

// Settle completes a booking once both sides have confirmed. Exactly one caller
// observes true.
func (d *DB) Settle(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("completed_at = ?", at).
		Set("status = ?", models.BookingCompleted).
		Where("id = ?", id).
		Where("coach_completed_at IS NOT NULL").
		Where("user_completed_at IS NOT NULL").
		Where("completed_at IS NULL").
		Exec(ctx)
	return database.Affected(res, err)
}

// FindConfirmation returns nil when the reference was never claimed.
func (d *DB) FindConfirmation(ctx context.Context, reference string) (*models.PaymentConfirmation, error) {
	var out []models.PaymentConfirmation
	err := d.Bun.NewSelect().Model(&out).Where("reference = ?", reference).Limit(1).Scan(ctx)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return &out[0], nil
}
