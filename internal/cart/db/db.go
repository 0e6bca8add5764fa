package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-coaching/internal/database"
	"ms-coaching/internal/models"
	slotdb "ms-coaching/internal/slots/db"
)

type DB struct {
	Bun *bun.DB
}

// errSlotTaken aborts AddHeld's transaction without an insert.
var errSlotTaken = errors.New("slot taken")

func (d *DB) GetItem(ctx context.Context, userID, itemID int64) (*models.CartItem, error) {
	var it models.CartItem
	err := d.Bun.NewSelect().Model(&it).Where("id = ?", itemID).Where("user_id = ?", userID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err, "cart item")
	}
	return &it, nil
}

// FindItem returns the row for (user, listing, slot) or nil.
func (d *DB) FindItem(ctx context.Context, userID, listingID, slotID int64) (*models.CartItem, error) {
	var items []models.CartItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("user_id = ?", userID).
		Where("listing_id = ?", listingID).
		Where("slot_id = ?", slotID).
		Limit(1).
		Scan(ctx)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

// AddHeld reserves the slot for the user and inserts the cart row in one
// transaction. It reports false, with nothing written, when the slot is gone.
func (d *DB) AddHeld(ctx context.Context, item *models.CartItem) (bool, error) {
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ok, err := slotdb.Reserve(ctx, tx, item.SlotID, item.ListingID, item.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return errSlotTaken
		}
		_, err = tx.NewInsert().Model(item).Exec(ctx)
		return err
	})
	if errors.Is(err, errSlotTaken) {
		return false, nil
	}
	return err == nil, err
}

// Lines reads the cart joined with listing and slot data.
func Lines(ctx context.Context, idb bun.IDB, userID int64) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := idb.NewSelect().
		TableExpr("cart_items AS ci").
		ColumnExpr("ci.id AS cart_item_id, ci.listing_id, ci.slot_id, ci.quantity").
		ColumnExpr("l.coach_id, l.title, l.sport, l.price_cents, l.discount_percentage").
		ColumnExpr("s.location, s.session_date, s.session_time, s.duration_minutes, s.is_available, s.held_by").
		Join("JOIN listings AS l ON l.id = ci.listing_id").
		Join("JOIN slots AS s ON s.id = ci.slot_id").
		Where("ci.user_id = ?", userID).
		OrderExpr("ci.id ASC").
		Scan(ctx, &lines)
	return lines, err
}

func (d *DB) Lines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	return Lines(ctx, d.Bun, userID)
}

// RemoveItem deletes one of the user's rows and gives the slot back.
func (d *DB) RemoveItem(ctx context.Context, userID, itemID int64) (bool, error) {
	var removed bool
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var it models.CartItem
		err := tx.NewSelect().Model(&it).Where("id = ?", itemID).Where("user_id = ?", userID).Limit(1).Scan(ctx)
		if err != nil {
			return database.NotFound(err, "cart item")
		}
		res, err := tx.NewDelete().Model((*models.CartItem)(nil)).Where("id = ?", itemID).Where("user_id = ?", userID).Exec(ctx)
		if removed, err = database.Affected(res, err); err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		_, err = slotdb.ReleaseHold(ctx, tx, it.SlotID, userID)
		return err
	})
	return removed, err
}

// Clear empties the user's cart and releases every held slot.
func (d *DB) Clear(ctx context.Context, userID int64) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var slotIDs []int64
		if err := tx.NewSelect().Model((*models.CartItem)(nil)).Column("slot_id").Where("user_id = ?", userID).Scan(ctx, &slotIDs); err != nil {
			return err
		}
		for _, id := range slotIDs {
			if _, err := slotdb.ReleaseHold(ctx, tx, id, userID); err != nil {
				return err
			}
		}
		return DeleteAll(ctx, tx, userID)
	})
}

// DeleteAll drops the user's rows without touching slot holds. Checkout uses it
// once the held slots have become booking items.
func DeleteAll(ctx context.Context, idb bun.IDB, userID int64) error {
	_, err := idb.NewDelete().Model((*models.CartItem)(nil)).Where("user_id = ?", userID).Exec(ctx)
	return err
}

// NewItem builds a quantity-one row; each row represents exactly one slot.
func NewItem(userID, listingID, slotID int64) *models.CartItem {
	return &models.CartItem{UserID: userID, ListingID: listingID, SlotID: slotID, Quantity: 1, CreatedAt: time.Now().UTC()}
}
