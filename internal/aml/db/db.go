package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-coaching/internal/database"
	"ms-coaching/internal/models"
	walletdb "ms-coaching/internal/wallet/db"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := d.Bun.NewSelect().Model(&u).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, database.NotFound(err, "user")
	}
	return &u, nil
}

func (d *DB) TopUpTotalSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	return (&walletdb.DB{Bun: d.Bun}).TopUpTotalSince(ctx, userID, since)
}

func (d *DB) CreateAlert(ctx context.Context, a *models.AmlAlert) error {
	_, err := d.Bun.NewInsert().Model(a).Exec(ctx)
	return err
}

func (d *DB) ListAlerts(ctx context.Context, status string) ([]models.AmlAlert, error) {
	var out []models.AmlAlert
	q := d.Bun.NewSelect().Model(&out).OrderExpr("created_at DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Scan(ctx)
	return out, err
}

func (d *DB) ReviewAlert(ctx context.Context, id, adminID int64) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.AmlAlert)(nil)).
		Set("status = ?", models.AlertReviewed).
		Set("reviewed_by = ?", adminID).
		Where("id = ?", id).
		Where("status = ?", models.AlertOpen).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
