package db_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-coaching/internal/database/dbtest"
	"ms-coaching/internal/models"
	slotdb "ms-coaching/internal/slots/db"
)

type fixture struct {
	db      *slotdb.DB
	coach   *models.User
	student *models.User
	listing *models.Listing
}

func setup(t *testing.T) fixture {
	bunDB := dbtest.New(t)
	coach := dbtest.CreateUser(t, bunDB, models.RoleCoach, models.CoachApproved, time.Now())
	student := dbtest.CreateUser(t, bunDB, models.RoleStudent, "", time.Now())
	return fixture{
		db:      &slotdb.DB{Bun: bunDB},
		coach:   coach,
		student: student,
		listing: dbtest.CreateListing(t, bunDB, coach.ID, 10000, 0),
	}
}

func TestReserveSlotOnlyOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	slot := dbtest.CreateSlot(t, f.db.Bun, f.coach.ID, f.listing.ID, time.Now().Add(24*time.Hour))

	ok, err := f.db.ReserveSlot(ctx, slot.ID, f.listing.ID, f.student.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.db.ReserveSlot(ctx, slot.ID, f.listing.ID, f.student.ID+1)
	require.NoError(t, err)
	assert.False(t, ok, "a reserved slot must not be reserved again")

	got, err := f.db.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAvailable)
	assert.Equal(t, f.student.ID, got.HeldBy)
}

func TestReserveSlotRequiresMatchingListing(t *testing.T) {
	f := setup(t)
	slot := dbtest.CreateSlot(t, f.db.Bun, f.coach.ID, f.listing.ID, time.Now().Add(24*time.Hour))

	ok, err := f.db.ReserveSlot(context.Background(), slot.ID, f.listing.ID+100, f.student.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentReserveHasSingleWinner(t *testing.T) {
	f := setup(t)
	slot := dbtest.CreateSlot(t, f.db.Bun, f.coach.ID, f.listing.ID, time.Now().Add(24*time.Hour))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(holder int64) {
			defer wg.Done()
			ok, err := f.db.ReserveSlot(context.Background(), slot.ID, f.listing.ID, holder)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}(int64(1000 + i))
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestListAvailableSkipsPastAndReserved(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	dbtest.CreateSlot(t, f.db.Bun, f.coach.ID, f.listing.ID, now.AddDate(0, 0, -2))
	future := dbtest.CreateSlot(t, f.db.Bun, f.coach.ID, f.listing.ID, now.AddDate(0, 0, 3))
	taken := dbtest.CreateSlot(t, f.db.Bun, f.coach.ID, f.listing.ID, now.AddDate(0, 0, 4))
	_, err := f.db.ReserveSlot(ctx, taken.ID, f.listing.ID, f.student.ID)
	require.NoError(t, err)

	today := now.Format(models.SlotDateLayout)
	got, err := f.db.ListAvailableByListing(ctx, f.listing.ID, today)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, future.ID, got[0].ID)

	got, err = f.db.ListAvailableByCoach(ctx, f.coach.ID, today)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	all, err := f.db.ListByCoach(ctx, f.coach.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReleaseHoldOnlyByHolderAndUnbooked(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	slot := dbtest.CreateSlot(t, f.db.Bun, f.coach.ID, f.listing.ID, time.Now().Add(24*time.Hour))
	_, err := f.db.ReserveSlot(ctx, slot.ID, f.listing.ID, f.student.ID)
	require.NoError(t, err)

	ok, err := slotdb.ReleaseHold(ctx, f.db.Bun, slot.ID, f.student.ID+1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = slotdb.ReleaseHold(ctx, f.db.Bun, slot.ID, f.student.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := f.db.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAvailable)
	assert.Zero(t, got.HeldBy)
}

func TestReleaseHoldKeepsBookedSlot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	slot := dbtest.CreateSlot(t, f.db.Bun, f.coach.ID, f.listing.ID, time.Now().Add(24*time.Hour))
	_, err := f.db.ReserveSlot(ctx, slot.ID, f.listing.ID, f.student.ID)
	require.NoError(t, err)

	_, err = f.db.Bun.NewInsert().Model(&models.BookingItem{
		BookingID: 1, ListingID: f.listing.ID, SlotID: slot.ID, CoachID: f.coach.ID, ListingTitle: "x",
		BasePriceCents: 1, PriceCents: 1, Quantity: 1, SessionDate: slot.SessionDate, SessionTime: slot.SessionTime,
		DurationMinutes: 60,
	}).Exec(ctx)
	require.NoError(t, err)

	ok, err := slotdb.ReleaseHold(ctx, f.db.Bun, slot.ID, f.student.ID)
	require.NoError(t, err)
	assert.False(t, ok, "a booked slot never returns to available")
}

func TestDeleteSlotOnlyWhenUnreserved(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	open := dbtest.CreateSlot(t, f.db.Bun, f.coach.ID, f.listing.ID, time.Now().Add(24*time.Hour))
	held := dbtest.CreateSlot(t, f.db.Bun, f.coach.ID, f.listing.ID, time.Now().Add(48*time.Hour))
	_, err := f.db.ReserveSlot(ctx, held.ID, f.listing.ID, f.student.ID)
	require.NoError(t, err)

	ok, err := f.db.DeleteSlot(ctx, held.ID, f.coach.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.db.DeleteSlot(ctx, open.ID, f.coach.ID+1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.db.DeleteSlot(ctx, open.ID, f.coach.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
