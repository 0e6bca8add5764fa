package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/config"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
)

// Models lists every table in creation order.
var Models = []interface{}{
	(*models.User)(nil),
	(*models.Listing)(nil),
	(*models.Slot)(nil),
	(*models.CartItem)(nil),
	(*models.Booking)(nil),
	(*models.BookingItem)(nil),
	(*models.PaymentConfirmation)(nil),
	(*models.Review)(nil),
	(*models.RefundRequest)(nil),
	(*models.Wallet)(nil),
	(*models.WalletTransaction)(nil),
	(*models.PayoutRequest)(nil),
	(*models.Payout)(nil),
	(*models.AmlAlert)(nil),
}

const connectAttempts = 5

// Connect opens Postgres with a few retries so the service survives a slow database container.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		err   error
	)
	for i := 0; i < connectAttempts; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, connectAttempts))
		sqldb, err = sql.Open("postgres", cfg.DSN())
		if err == nil {
			if err = sqldb.PingContext(ctx); err == nil {
				break
			}
			sqldb.Close()
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL not reachable: %v", err))
		if i < connectAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect postgres after %d attempts: %w", connectAttempts, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// CreateSchema creates all tables from the bun models. Used by tests and the seed command;
// production schemas come from migrations/.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, m := range Models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	return nil
}

// DropSchema drops all tables in reverse order.
func DropSchema(ctx context.Context, db bun.IDB) error {
	for i := len(Models) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(Models[i]).IfExists().Cascade().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", Models[i], err)
		}
	}
	return nil
}

// NotFound converts sql.ErrNoRows into apperr.ErrNotFound with a specific message.
func NotFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.WithMessage(apperr.ErrNotFound, what+" not found"), err)
	}
	return err
}

// Affected reports whether a guarded single-row write hit its row.
func Affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IsPostgres reports whether row locks (SELECT ... FOR UPDATE) are available.
func IsPostgres(db bun.IDB) bool {
	return db.Dialect().Name() == dialect.PG
}

// IsUniqueViolation recognises duplicate-key errors from Postgres and SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ClaimReference records that a gateway reference has been applied. A second
// claim on the same reference yields apperr.ErrAlreadyProcessed.
func ClaimReference(ctx context.Context, idb bun.IDB, c *models.PaymentConfirmation) error {
	if _, err := idb.NewInsert().Model(c).Exec(ctx); err != nil {
		if IsUniqueViolation(err) {
			return apperr.Wrap(apperr.ErrAlreadyProcessed, err)
		}
		return fmt.Errorf("insert payment confirmation: %w", err)
	}
	return nil
}
