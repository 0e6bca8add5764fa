package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-coaching/internal/database"
	"ms-coaching/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateSlot(ctx context.Context, s *models.Slot) error {
	_, err := d.Bun.NewInsert().Model(s).Exec(ctx)
	return err
}

func (d *DB) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	return GetSlot(ctx, d.Bun, id)
}

func GetSlot(ctx context.Context, idb bun.IDB, id int64) (*models.Slot, error) {
	var s models.Slot
	if err := idb.NewSelect().Model(&s).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, database.NotFound(err, "slot")
	}
	return &s, nil
}

// ListAvailableByListing returns open slots on or after today (YYYY-MM-DD).
func (d *DB) ListAvailableByListing(ctx context.Context, listingID int64, today string) ([]models.Slot, error) {
	var out []models.Slot
	err := d.Bun.NewSelect().
		Model(&out).
		Where("listing_id = ?", listingID).
		Where("is_available = ?", true).
		Where("session_date >= ?", today).
		OrderExpr("session_date ASC, session_time ASC").
		Scan(ctx)
	return out, err
}

func (d *DB) ListAvailableByCoach(ctx context.Context, coachID int64, today string) ([]models.Slot, error) {
	var out []models.Slot
	err := d.Bun.NewSelect().
		Model(&out).
		Where("coach_id = ?", coachID).
		Where("is_available = ?", true).
		Where("session_date >= ?", today).
		OrderExpr("session_date ASC, session_time ASC").
		Scan(ctx)
	return out, err
}

func (d *DB) ListByCoach(ctx context.Context, coachID int64) ([]models.Slot, error) {
	var out []models.Slot
	err := d.Bun.NewSelect().
		Model(&out).
		Where("coach_id = ?", coachID).
		OrderExpr("session_date ASC, session_time ASC").
		Scan(ctx)
	return out, err
}

// Reserve flips an available slot to held in a single conditional update. It
// reports false when the slot was already taken or belongs to another listing.
// This statement is the only guard against double booking.
func Reserve(ctx context.Context, idb bun.IDB, slotID, listingID, holder int64) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.Slot)(nil)).
		Set("is_available = ?", false).
		Set("held_by = ?", holder).
		Where("id = ?", slotID).
		Where("listing_id = ?", listingID).
		Where("is_available = ?", true).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (d *DB) ReserveSlot(ctx context.Context, slotID, listingID, holder int64) (bool, error) {
	return Reserve(ctx, d.Bun, slotID, listingID, holder)
}

// ReleaseHold reopens a slot held by holder that no booking has claimed.
func ReleaseHold(ctx context.Context, idb bun.IDB, slotID, holder int64) (bool, error) {
	booked := idb.NewSelect().Model((*models.BookingItem)(nil)).Column("id").Where("slot_id = ?", slotID)
	res, err := idb.NewUpdate().
		Model((*models.Slot)(nil)).
		Set("is_available = ?", true).
		Set("held_by = NULL").
		Where("id = ?", slotID).
		Where("held_by = ?", holder).
		Where("is_available = ?", false).
		Where("NOT EXISTS (?)", booked).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeleteSlot removes an unreserved slot owned by coachID.
func (d *DB) DeleteSlot(ctx context.Context, id, coachID int64) (bool, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.Slot)(nil)).
		Where("id = ?", id).
		Where("coach_id = ?", coachID).
		Where("is_available = ?", true).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
