// Package dbtest opens an in-memory SQLite database with the full schema for tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-coaching/internal/database"
	"ms-coaching/internal/models"
)

var seq int64

// New returns a fresh database closed at test cleanup.
func New(t testing.TB) *bun.DB {
	t.Helper()

	// Named shared-cache database so a reopened pool connection sees the same data.
	dsn := fmt.Sprintf("file:dbtest%d?mode=memory&cache=shared", atomic.AddInt64(&seq, 1))
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, database.CreateSchema(context.Background(), db))

	t.Cleanup(func() { db.Close() })
	return db
}

func CreateUser(t testing.TB, db bun.IDB, role, coachStatus string, createdAt time.Time) *models.User {
	t.Helper()
	n := atomic.AddInt64(&seq, 1)
	u := &models.User{
		Email:       fmt.Sprintf("%s%d@example.com", role, n),
		FullName:    fmt.Sprintf("%s %d", role, n),
		Role:        role,
		CoachStatus: coachStatus,
		PaypalEmail: fmt.Sprintf("%s%d@paypal.example.com", role, n),
		CreatedAt:   createdAt,
	}
	_, err := db.NewInsert().Model(u).Exec(context.Background())
	require.NoError(t, err)
	return u
}

func CreateListing(t testing.TB, db bun.IDB, coachID, priceCents int64, discount float64) *models.Listing {
	t.Helper()
	now := time.Now().UTC()
	l := &models.Listing{
		CoachID:            coachID,
		Title:              "Badminton fundamentals",
		Sport:              "badminton",
		SkillLevel:         "beginner",
		DurationMinutes:    60,
		Location:           "Court 3",
		PriceCents:         priceCents,
		DiscountPercentage: discount,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	_, err := db.NewInsert().Model(l).Exec(context.Background())
	require.NoError(t, err)
	return l
}

// CreateSlot inserts an available slot starting at `at` (UTC).
func CreateSlot(t testing.TB, db bun.IDB, coachID, listingID int64, at time.Time) *models.Slot {
	t.Helper()
	s := &models.Slot{
		CoachID:         coachID,
		ListingID:       listingID,
		SessionDate:     at.UTC().Format(models.SlotDateLayout),
		SessionTime:     at.UTC().Format(models.SlotTimeLayout),
		DurationMinutes: 60,
		Location:        "Court 3",
		IsAvailable:     true,
		CreatedAt:       time.Now().UTC(),
	}
	_, err := db.NewInsert().Model(s).Exec(context.Background())
	require.NoError(t, err)
	return s
}
