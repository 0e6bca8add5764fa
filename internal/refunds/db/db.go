package db

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-coaching/internal/apperr"
	bookingdb "ms-coaching/internal/booking/db"
	"ms-coaching/internal/database"
	"ms-coaching/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CreditFunc pays an approved refund out inside the approval transaction.
type CreditFunc func(ctx context.Context, tx bun.Tx, r *models.RefundRequest) error

// GetItemWithBooking loads a booking item and its header.
func (d *DB) GetItemWithBooking(ctx context.Context, itemID int64) (*models.BookingItem, *models.Booking, error) {
	it, err := bookingdb.GetItem(ctx, d.Bun, itemID)
	if err != nil {
		return nil, nil, err
	}
	b, err := bookingdb.GetBooking(ctx, d.Bun, it.BookingID)
	if err != nil {
		return nil, nil, err
	}
	return it, b, nil
}

func (d *DB) Get(ctx context.Context, id int64) (*models.RefundRequest, error) {
	var r models.RefundRequest
	if err := d.Bun.NewSelect().Model(&r).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, database.NotFound(err, "refund request")
	}
	return &r, nil
}

// FindByItem returns nil when the item has no request.
func (d *DB) FindByItem(ctx context.Context, itemID int64) (*models.RefundRequest, error) {
	var out []models.RefundRequest
	err := d.Bun.NewSelect().Model(&out).Where("booking_item_id = ?", itemID).Limit(1).Scan(ctx)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return &out[0], nil
}

// Create inserts a new pending request. A concurrent request for the same item
// loses on the unique key and gets apperr.ErrRefundExists.
func (d *DB) Create(ctx context.Context, r *models.RefundRequest) error {
	if _, err := d.Bun.NewInsert().Model(r).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Wrap(apperr.ErrRefundExists, err)
		}
		return err
	}
	return nil
}

// Resubmit reopens a rejected request in place.
func (d *DB) Resubmit(ctx context.Context, r *models.RefundRequest) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.RefundRequest)(nil)).
		Set("status = ?", models.RefundPending).
		Set("requested_cents = ?", r.RequestedCents).
		Set("approved_cents = 0").
		Set("reason = ?", r.Reason).
		Set("review_note = ''").
		Set("reviewed_by = NULL").
		Set("reviewed_at = NULL").
		Set("updated_at = ?", r.UpdatedAt).
		Where("id = ?", r.ID).
		Where("status = ?", models.RefundRejected).
		Exec(ctx)
	return database.Affected(res, err)
}

// Approve locks the request, validates it and runs credit, then flips the
// status. Everything commits together or not at all.
func (d *DB) Approve(ctx context.Context, id, adminID, approvedCents int64, at time.Time, credit CreditFunc) (*models.RefundRequest, error) {
	var out models.RefundRequest
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model(&out).Where("id = ?", id).Limit(1)
		if database.IsPostgres(tx) {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			return database.NotFound(err, "refund request")
		}
		if out.Status != models.RefundPending {
			return apperr.ErrNotPending
		}
		if approvedCents > out.RequestedCents {
			return apperr.ErrAmountTooHigh
		}
		out.ApprovedCents = approvedCents
		if err := credit(ctx, tx, &out); err != nil {
			return err
		}
		res, err := tx.NewUpdate().
			Model((*models.RefundRequest)(nil)).
			Set("status = ?", models.RefundApproved).
			Set("approved_cents = ?", approvedCents).
			Set("reviewed_by = ?", adminID).
			Set("reviewed_at = ?", at).
			Set("updated_at = ?", at).
			Where("id = ?", id).
			Where("status = ?", models.RefundPending).
			Exec(ctx)
		ok, err := database.Affected(res, err)
		if err != nil {
			return fmt.Errorf("mark refund approved: %w", err)
		}
		if !ok {
			return apperr.ErrNotPending
		}
		out.Status = models.RefundApproved
		out.ReviewedBy = adminID
		out.ReviewedAt = at
		out.UpdatedAt = at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *DB) Reject(ctx context.Context, id, adminID int64, note string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.RefundRequest)(nil)).
		Set("status = ?", models.RefundRejected).
		Set("review_note = ?", note).
		Set("reviewed_by = ?", adminID).
		Set("reviewed_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", models.RefundPending).
		Exec(ctx)
	return database.Affected(res, err)
}

// List returns requests with status, or all when status is empty.
func (d *DB) List(ctx context.Context, status string) ([]models.RefundRequest, error) {
	var out []models.RefundRequest
	q := d.Bun.NewSelect().Model(&out).OrderExpr("created_at DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Scan(ctx)
	return out, err
}

func (d *DB) ListForUser(ctx context.Context, userID int64) ([]models.RefundRequest, error) {
	var out []models.RefundRequest
	err := d.Bun.NewSelect().Model(&out).Where("user_id = ?", userID).OrderExpr("created_at DESC, id DESC").Scan(ctx)
	return out, err
}
