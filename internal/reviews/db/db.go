package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-coaching/internal/apperr"
	bookingdb "ms-coaching/internal/booking/db"
	"ms-coaching/internal/database"
	"ms-coaching/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return bookingdb.GetBooking(ctx, d.Bun, id)
}

// Create inserts a review; a booking can only be reviewed once.
func (d *DB) Create(ctx context.Context, r *models.Review) error {
	if _, err := d.Bun.NewInsert().Model(r).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Wrap(apperr.ErrReviewExists, err)
		}
		return err
	}
	return nil
}

func (d *DB) ExistsForBooking(ctx context.Context, bookingID int64) (bool, error) {
	return d.Bun.NewSelect().Model((*models.Review)(nil)).Where("booking_id = ?", bookingID).Exists(ctx)
}

func (d *DB) Get(ctx context.Context, id int64) (*models.Review, error) {
	var r models.Review
	if err := d.Bun.NewSelect().Model(&r).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, database.NotFound(err, "review")
	}
	return &r, nil
}

func (d *DB) SetStatus(ctx context.Context, id int64, status string) (bool, error) {
	res, err := d.Bun.NewUpdate().Model((*models.Review)(nil)).Set("status = ?", status).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListByCoach returns the coach's reviews, optionally filtered by status.
func (d *DB) ListByCoach(ctx context.Context, coachID int64, status string) ([]models.Review, error) {
	var out []models.Review
	q := d.Bun.NewSelect().Model(&out).Where("coach_id = ?", coachID).OrderExpr("created_at DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Scan(ctx)
	return out, err
}

func (d *DB) ListByStatus(ctx context.Context, status string) ([]models.Review, error) {
	var out []models.Review
	err := d.Bun.NewSelect().Model(&out).Where("status = ?", status).OrderExpr("created_at ASC, id ASC").Scan(ctx)
	return out, err
}
