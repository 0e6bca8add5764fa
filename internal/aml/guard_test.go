package aml_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-coaching/internal/aml"
	amldb "ms-coaching/internal/aml/db"
	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/config"
	"ms-coaching/internal/database/dbtest"
	"ms-coaching/internal/kafka"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	walletdb "ms-coaching/internal/wallet/db"
)

var policy = config.PolicyConfig{
	NewAccountDays:         30,
	NewAccountPayoutCap:    500,
	NewAccountTopUpCap:     300,
	NewAccountTopUpMonthly: 1000,
	TopUpWeeklyCap:         2000,
	HighValueThreshold:     1000,
	HighValueCooldown:      60,
}

func newGuard(t *testing.T) (*aml.Guard, *bun.DB) {
	bunDB := dbtest.New(t)
	return aml.NewGuard(&amldb.DB{Bun: bunDB}, policy, nil, nil, "", logger.NewNop()), bunDB
}

func topUp(t *testing.T, db *bun.DB, userID, cents int64, at time.Time) {
	t.Helper()
	require.NoError(t, walletdb.Credit(context.Background(), db, walletdb.Entry{
		UserID: userID, AmountCents: cents, Type: models.TxTopUp, Method: "card", At: at,
	}))
}

func TestPayoutCapOnlyForNewAccounts(t *testing.T) {
	g, db := newGuard(t)
	ctx := context.Background()
	fresh := dbtest.CreateUser(t, db, models.RoleCoach, models.CoachApproved, time.Now().Add(-5*24*time.Hour))
	veteran := dbtest.CreateUser(t, db, models.RoleCoach, models.CoachApproved, time.Now().Add(-90*24*time.Hour))

	res, err := g.EnforceNewAccountCap(ctx, fresh.ID, aml.KindPayout, 50001)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, aml.ReasonPerTransaction, res.Reason)
	assert.Equal(t, int64(50000), res.Cap)

	res, err = g.EnforceNewAccountCap(ctx, fresh.ID, aml.KindPayout, 50000)
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = g.EnforceNewAccountCap(ctx, veteran.ID, aml.KindPayout, 90000)
	require.NoError(t, err)
	assert.True(t, res.OK)

	err = g.CheckPayout(ctx, fresh.ID, 60000)
	assert.ErrorIs(t, err, apperr.ErrAMLCap)
}

func TestTopUpWindows(t *testing.T) {
	g, db := newGuard(t)
	ctx := context.Background()
	now := time.Now().UTC()
	fresh := dbtest.CreateUser(t, db, models.RoleStudent, "", now.Add(-10*24*time.Hour))
	veteran := dbtest.CreateUser(t, db, models.RoleStudent, "", now.Add(-400*24*time.Hour))

	res, err := g.EnforceNewAccountCap(ctx, fresh.ID, aml.KindTopUp, 40000)
	require.NoError(t, err)
	assert.Equal(t, aml.ReasonPerTransaction, res.Reason)

	topUp(t, db, fresh.ID, 30000, now.Add(-20*24*time.Hour))
	topUp(t, db, fresh.ID, 30000, now.Add(-2*24*time.Hour))
	topUp(t, db, fresh.ID, 30000, now.Add(-time.Hour))
	res, err = g.EnforceNewAccountCap(ctx, fresh.ID, aml.KindTopUp, 20000)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, aml.ReasonMonthlyWindow, res.Reason)
	assert.Equal(t, int64(100000), res.Cap)

	res, err = g.EnforceNewAccountCap(ctx, fresh.ID, aml.KindTopUp, 10000)
	require.NoError(t, err)
	assert.True(t, res.OK, "exactly at the monthly cap is allowed")

	topUp(t, db, veteran.ID, 150000, now.Add(-10*24*time.Hour))
	topUp(t, db, veteran.ID, 150000, now.Add(-3*24*time.Hour))
	res, err = g.EnforceNewAccountCap(ctx, veteran.ID, aml.KindTopUp, 60000)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, aml.ReasonWeeklyWindow, res.Reason)

	res, err = g.EnforceNewAccountCap(ctx, veteran.ID, aml.KindTopUp, 50000)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestHighValueCooldown(t *testing.T) {
	g, db := newGuard(t)
	ctx := context.Background()
	u := dbtest.CreateUser(t, db, models.RoleStudent, "", time.Now().Add(-400*24*time.Hour))

	require.NoError(t, g.BlockPaymentIfHighValue(ctx, u.ID, 100000), "at the threshold is not high value")
	require.NoError(t, g.BlockPaymentIfHighValue(ctx, u.ID, 150000))
	assert.ErrorIs(t, g.BlockPaymentIfHighValue(ctx, u.ID, 150000), apperr.ErrAMLCooldown)
	assert.NoError(t, g.BlockPaymentIfHighValue(ctx, u.ID+1, 150000), "cooldowns are per user")
}

func TestMaybeFlagHighValueWritesAlert(t *testing.T) {
	g, db := newGuard(t)
	ctx := context.Background()

	flagged, err := g.MaybeFlagHighValue(ctx, aml.HighValueEvent{UserID: 3, Kind: aml.KindTopUp, AmountCents: 50000, At: time.Now()})
	require.NoError(t, err)
	assert.False(t, flagged)

	flagged, err = g.MaybeFlagHighValue(ctx, aml.HighValueEvent{UserID: 3, Kind: aml.KindTopUp, Reference: "pp-9", AmountCents: 150000, At: time.Now()})
	require.NoError(t, err)
	assert.True(t, flagged)

	alerts, err := g.ListAlerts(ctx, models.AlertOpen)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "high_value_topup", alerts[0].AlertType)
	assert.Equal(t, "pp-9", alerts[0].Reference)

	require.NoError(t, g.ReviewAlert(ctx, auth.Admin{ID: 1}, alerts[0].ID))
	assert.ErrorIs(t, g.ReviewAlert(ctx, auth.Admin{ID: 1}, alerts[0].ID), apperr.ErrNotPending)

	n, err := db.NewSelect().Model((*models.AmlAlert)(nil)).Where("status = ?", models.AlertReviewed).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFlagOverCapWritesOpenAlert(t *testing.T) {
	g, _ := newGuard(t)
	ctx := context.Background()

	g.FlagOverCap(ctx, 4, "cs_7", 30000, aml.CapResult{Cap: 100000, Reason: aml.ReasonMonthlyWindow})

	alerts, err := g.ListAlerts(ctx, models.AlertOpen)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, aml.AlertTopUpOverCap, alerts[0].AlertType)
	assert.Equal(t, int64(4), alerts[0].UserID)
	assert.Equal(t, "cs_7", alerts[0].Reference)
	assert.Contains(t, alerts[0].Reason, aml.ReasonMonthlyWindow)
}

func TestHandleAlertEventFromKafka(t *testing.T) {
	g, _ := newGuard(t)
	ctx := context.Background()

	msg, err := kafka.NewMessage("coaching.aml.alerts", "3", aml.HighValueEvent{UserID: 3, Kind: aml.KindPayout, AmountCents: 200000, At: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, kafka.Dispatch(ctx, msg, g.HandleAlertEvent))

	alerts, err := g.ListAlerts(ctx, "")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "high_value_payout", alerts[0].AlertType)

	assert.Error(t, g.HandleAlertEvent(ctx, kafka.Event{ID: "x", Payload: json.RawMessage(`"nope"`)}))
}

func TestRedisCooldownSharedAcrossGuards(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	first := aml.NewRedisCooldown(client)
	second := aml.NewRedisCooldown(client)

	ok, err := first.Start(ctx, "42", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = second.Start(ctx, "42", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = second.Start(ctx, "42", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCooldownExpires(t *testing.T) {
	c := aml.NewMemoryCooldown()
	ctx := context.Background()
	ok, _ := c.Start(ctx, "1", 20*time.Millisecond)
	assert.True(t, ok)
	ok, _ = c.Start(ctx, "1", 20*time.Millisecond)
	assert.False(t, ok)
	time.Sleep(30 * time.Millisecond)
	ok, _ = c.Start(ctx, "1", 20*time.Millisecond)
	assert.True(t, ok)
}
