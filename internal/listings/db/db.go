package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-coaching/internal/database"
	"ms-coaching/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateListing(ctx context.Context, l *models.Listing) error {
	_, err := d.Bun.NewInsert().Model(l).Exec(ctx)
	return err
}

func (d *DB) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	var l models.Listing
	err := d.Bun.NewSelect().Model(&l).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err, "listing")
	}
	return &l, nil
}

func (d *DB) UpdateListing(ctx context.Context, l *models.Listing) error {
	_, err := d.Bun.NewUpdate().
		Model(l).
		Column("title", "description", "sport", "skill_level", "duration_minutes", "location",
			"price_cents", "discount_percentage", "updated_at").
		WherePK().
		Exec(ctx)
	return err
}

func (d *DB) SetActive(ctx context.Context, id int64, active bool) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeleteListing removes the listing and every row that references it. Booking line
// items go first, then refund requests pointing at them, slots and cart rows.
func (d *DB) DeleteListing(ctx context.Context, id int64) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		itemIDs := tx.NewSelect().Model((*models.BookingItem)(nil)).Column("id").Where("listing_id = ?", id)
		if _, err := tx.NewDelete().Model((*models.RefundRequest)(nil)).Where("booking_item_id IN (?)", itemIDs).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*models.BookingItem)(nil)).Where("listing_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*models.CartItem)(nil)).Where("listing_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*models.Slot)(nil)).Where("listing_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*models.Listing)(nil)).Where("id = ?", id).Exec(ctx)
		return err
	})
}

// ListActive returns active listings of approved coaches, newest first.
func (d *DB) ListActive(ctx context.Context, sport string, limit, offset int) ([]models.Listing, error) {
	var out []models.Listing
	q := d.Bun.NewSelect().
		Model(&out).
		Join("JOIN users AS u ON u.id = listing.coach_id").
		Where("listing.is_active = ?", true).
		Where("u.coach_status = ?", models.CoachApproved).
		OrderExpr("listing.created_at DESC, listing.id DESC").
		Limit(limit).
		Offset(offset)
	if sport != "" {
		q = q.Where("listing.sport = ?", sport)
	}
	err := q.Scan(ctx)
	return out, err
}

func (d *DB) ListByCoach(ctx context.Context, coachID int64) ([]models.Listing, error) {
	var out []models.Listing
	err := d.Bun.NewSelect().Model(&out).Where("coach_id = ?", coachID).OrderExpr("id DESC").Scan(ctx)
	return out, err
}

func (d *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := d.Bun.NewSelect().Model(&u).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err, "user")
	}
	return &u, nil
}

// SetCoachStatus updates a coach account's approval state.
func (d *DB) SetCoachStatus(ctx context.Context, coachID int64, status string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.User)(nil)).
		Set("coach_status = ?", status).
		Where("id = ?", coachID).
		Where("role = ?", models.RoleCoach).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
