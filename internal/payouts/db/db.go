package db

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-coaching/internal/database"
	"ms-coaching/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateRequest(ctx context.Context, r *models.PayoutRequest) error {
	_, err := d.Bun.NewInsert().Model(r).Exec(ctx)
	return err
}

func (d *DB) GetRequest(ctx context.Context, id int64) (*models.PayoutRequest, error) {
	var r models.PayoutRequest
	err := d.Bun.NewSelect().Model(&r).Relation("Payout").Where("pr.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err, "payout request")
	}
	return &r, nil
}

// ListRequests filters by coach and status when they are non-zero.
func (d *DB) ListRequests(ctx context.Context, coachID int64, status string) ([]models.PayoutRequest, error) {
	var out []models.PayoutRequest
	q := d.Bun.NewSelect().Model(&out).Relation("Payout").OrderExpr("pr.created_at DESC, pr.id DESC")
	if coachID != 0 {
		q = q.Where("pr.coach_id = ?", coachID)
	}
	if status != "" {
		q = q.Where("pr.status = ?", status)
	}
	err := q.Scan(ctx)
	return out, err
}

// Transition moves a request to `to` only while it is in one of `from`.
func (d *DB) Transition(ctx context.Context, id int64, from []string, to string, reviewedBy int64, at time.Time) (bool, error) {
	return transition(ctx, d.Bun, id, from, to, reviewedBy, at)
}

func transition(ctx context.Context, idb bun.IDB, id int64, from []string, to string, reviewedBy int64, at time.Time) (bool, error) {
	q := idb.NewUpdate().
		Model((*models.PayoutRequest)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from))
	if reviewedBy != 0 {
		q = q.Set("reviewed_by = ?", reviewedBy)
	}
	res, err := q.Exec(ctx)
	return database.Affected(res, err)
}

// InFlightCents sums requests already approved but not yet paid.
func (d *DB) InFlightCents(ctx context.Context, coachID int64) (int64, error) {
	var sum int64
	err := d.Bun.NewSelect().
		Model((*models.PayoutRequest)(nil)).
		ColumnExpr("COALESCE(SUM(amount_cents), 0)").
		Where("coach_id = ?", coachID).
		Where("status IN (?)", bun.In([]string{models.PayoutApproved, models.PayoutProcessing})).
		Scan(ctx, &sum)
	return sum, err
}

// RecordAttempt stores the gateway outcome for an approved request and moves
// the request to the same status.
func (d *DB) RecordAttempt(ctx context.Context, p *models.Payout) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(p).Exec(ctx); err != nil {
			return fmt.Errorf("insert payout: %w", err)
		}
		ok, err := transition(ctx, tx, p.PayoutRequestID, []string{models.PayoutApproved}, p.Status, 0, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update payout request: %w", err)
		}
		if !ok {
			return fmt.Errorf("payout request %d is no longer approved", p.PayoutRequestID)
		}
		return nil
	})
}

// ApplyStatus updates a processing payout and its request together.
func (d *DB) ApplyStatus(ctx context.Context, p *models.Payout, status string, at time.Time) (bool, error) {
	var changed bool
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Payout)(nil)).
			Set("status = ?", status).
			Set("updated_at = ?", at).
			Where("id = ?", p.ID).
			Where("status = ?", models.PayoutProcessing).
			Exec(ctx)
		if changed, err = database.Affected(res, err); err != nil || !changed {
			return err
		}
		_, err = transition(ctx, tx, p.PayoutRequestID, []string{models.PayoutProcessing}, status, 0, at)
		return err
	})
	return changed, err
}
