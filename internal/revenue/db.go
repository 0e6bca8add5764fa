package revenue

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-coaching/internal/models"
)

// DB runs the settled-revenue aggregates.
type DB struct {
	bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// Filter narrows the settled item set. Zero values mean no restriction.
type Filter struct {
	CoachID int64
	From    time.Time
	To      time.Time
	// BothSided additionally requires both completion timestamps.
	BothSided bool
}

// CoachGross is raw settled revenue for one coach.
type CoachGross struct {
	CoachID    int64 `bun:"coach_id"`
	GrossCents int64 `bun:"gross_cents"`
	Bookings   int   `bun:"bookings"`
	Items      int   `bun:"items"`
}

func (db *DB) settled(q *bun.SelectQuery, f Filter) *bun.SelectQuery {
	q = q.TableExpr("booking_items AS bi").
		Join("JOIN bookings AS b ON b.id = bi.booking_id").
		Where("b.completed_at IS NOT NULL").
		Where("b.payment_method <> ''")
	if f.BothSided {
		q = q.Where("b.coach_completed_at IS NOT NULL").Where("b.user_completed_at IS NOT NULL")
	}
	if f.CoachID != 0 {
		q = q.Where("bi.coach_id = ?", f.CoachID)
	}
	if !f.From.IsZero() {
		q = q.Where("b.completed_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("b.completed_at < ?", f.To)
	}
	return q
}

// GrossByCoach sums settled line items per coach.
func (db *DB) GrossByCoach(ctx context.Context, f Filter) ([]CoachGross, error) {
	var out []CoachGross
	err := db.settled(db.bun.NewSelect(), f).
		ColumnExpr("bi.coach_id AS coach_id").
		ColumnExpr("COALESCE(SUM(bi.price_cents * bi.quantity), 0) AS gross_cents").
		ColumnExpr("COUNT(DISTINCT b.id) AS bookings").
		ColumnExpr("COUNT(bi.id) AS items").
		GroupExpr("bi.coach_id").
		OrderExpr("bi.coach_id ASC").
		Scan(ctx, &out)
	return out, err
}

// SettledLine is one settled item with its settlement time.
type SettledLine struct {
	BookingID   int64     `bun:"booking_id"`
	CoachID     int64     `bun:"coach_id"`
	AmountCents int64     `bun:"amount_cents"`
	CompletedAt time.Time `bun:"completed_at"`
}

func (db *DB) SettledLines(ctx context.Context, f Filter) ([]SettledLine, error) {
	var out []SettledLine
	err := db.settled(db.bun.NewSelect(), f).
		ColumnExpr("b.id AS booking_id, bi.coach_id AS coach_id").
		ColumnExpr("bi.price_cents * bi.quantity AS amount_cents").
		ColumnExpr("b.completed_at AS completed_at").
		OrderExpr("b.completed_at ASC, bi.id ASC").
		Scan(ctx, &out)
	return out, err
}

// PaidOut sums payouts the gateway reported as successful.
func (db *DB) PaidOut(ctx context.Context, coachID int64) (int64, error) {
	var sum int64
	err := db.bun.NewSelect().
		Model((*models.Payout)(nil)).
		ColumnExpr("COALESCE(SUM(amount_cents), 0)").
		Where("coach_id = ?", coachID).
		Where("status = ?", models.PayoutSuccess).
		Scan(ctx, &sum)
	return sum, err
}
