package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/database/dbtest"
	"ms-coaching/internal/models"
	refunddb "ms-coaching/internal/refunds/db"
	walletdb "ms-coaching/internal/wallet/db"
)

func pendingRefund(t *testing.T, d *refunddb.DB, itemID, cents int64) *models.RefundRequest {
	t.Helper()
	now := time.Now().UTC()
	r := &models.RefundRequest{
		BookingID: 1, BookingItemID: itemID, UserID: 5, RequestedCents: cents,
		Status: models.RefundPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, d.Create(context.Background(), r))
	return r
}

func creditWallet(ctx context.Context, tx bun.Tx, r *models.RefundRequest) error {
	return walletdb.Credit(ctx, tx, walletdb.Entry{
		UserID: r.UserID, AmountCents: r.ApprovedCents, Type: models.TxRefund, Method: "refund", At: time.Now().UTC(),
	})
}

func TestCreateRejectsSecondRowForItem(t *testing.T) {
	d := &refunddb.DB{Bun: dbtest.New(t)}
	pendingRefund(t, d, 3, 9000)

	now := time.Now().UTC()
	err := d.Create(context.Background(), &models.RefundRequest{
		BookingID: 1, BookingItemID: 3, UserID: 5, RequestedCents: 9000, Status: models.RefundPending, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, apperr.ErrRefundExists)
}

func TestApproveRollsBackWhenCreditFails(t *testing.T) {
	bunDB := dbtest.New(t)
	d := &refunddb.DB{Bun: bunDB}
	ctx := context.Background()
	r := pendingRefund(t, d, 4, 9000)

	boom := errors.New("ledger unavailable")
	_, err := d.Approve(ctx, r.ID, 1, 5000, time.Now().UTC(), func(ctx context.Context, tx bun.Tx, r *models.RefundRequest) error {
		if err := creditWallet(ctx, tx, r); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := d.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundPending, got.Status)
	assert.Zero(t, got.ApprovedCents)

	w, err := (&walletdb.DB{Bun: bunDB}).GetWallet(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, w.BalanceCents, "credit must roll back with the approval")
}

func TestApproveGuards(t *testing.T) {
	d := &refunddb.DB{Bun: dbtest.New(t)}
	ctx := context.Background()
	r := pendingRefund(t, d, 6, 9000)

	_, err := d.Approve(ctx, r.ID, 1, 9500, time.Now(), creditWallet)
	assert.ErrorIs(t, err, apperr.ErrAmountTooHigh)

	out, err := d.Approve(ctx, r.ID, 1, 9000, time.Now(), creditWallet)
	require.NoError(t, err)
	assert.Equal(t, models.RefundApproved, out.Status)

	_, err = d.Approve(ctx, r.ID, 1, 9000, time.Now(), creditWallet)
	assert.ErrorIs(t, err, apperr.ErrNotPending)

	_, err = d.Approve(ctx, 999, 1, 10, time.Now(), creditWallet)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRejectOnlyPending(t *testing.T) {
	d := &refunddb.DB{Bun: dbtest.New(t)}
	ctx := context.Background()
	r := pendingRefund(t, d, 8, 9000)

	ok, err := d.Reject(ctx, r.ID, 1, "no", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = d.Reject(ctx, r.ID, 1, "no", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	r.RequestedCents = 8000
	r.UpdatedAt = time.Now().UTC()
	ok, err = d.Resubmit(ctx, r)
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := d.List(ctx, models.RefundPending)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(8000), list[0].RequestedCents)
}
