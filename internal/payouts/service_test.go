package payouts_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-coaching/internal/aml"
	amldb "ms-coaching/internal/aml/db"
	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/config"
	"ms-coaching/internal/database/dbtest"
	"ms-coaching/internal/locks"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/payouts"
	payoutdb "ms-coaching/internal/payouts/db"
	"ms-coaching/internal/revenue"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePayout(ctx context.Context, senderBatchID, receiver string, amountCents int64, currency string) (string, string, error) {
	args := m.Called(ctx, senderBatchID, receiver, amountCents, currency)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockGateway) PayoutStatus(ctx context.Context, batchID string) (string, error) {
	args := m.Called(ctx, batchID)
	return args.String(0), args.Error(1)
}

type stubGuard struct {
	check   func(ctx context.Context, coachID, amountCents int64) error
	mu      sync.Mutex
	flagged []string
}

func (g *stubGuard) CheckPayout(ctx context.Context, coachID, amountCents int64) error {
	if g.check == nil {
		return nil
	}
	return g.check(ctx, coachID, amountCents)
}

func (g *stubGuard) FlagHighValue(_ context.Context, userID int64, kind, reference string, amountCents int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.flagged = append(g.flagged, fmt.Sprintf("%d:%s:%s:%d", userID, kind, reference, amountCents))
}

func (g *stubGuard) Flagged() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.flagged...)
}

type fixture struct {
	bun     *bun.DB
	svc     *payouts.Service
	gateway *MockGateway
	guard   payouts.Guard
	coach   auth.Coach
	admin   auth.Admin
}

func setup(t *testing.T, guard payouts.Guard) *fixture {
	bunDB := dbtest.New(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	gw := new(MockGateway)
	svc := payouts.NewService(
		&payoutdb.DB{Bun: bunDB},
		revenue.NewService(revenue.NewDB(bunDB), time.UTC),
		guard,
		gw,
		locks.NewRedis(client, "payout_lock:"),
		nil, "", "SGD", logger.NewNop(),
	)
	return &fixture{bun: bunDB, svc: svc, gateway: gw, guard: guard, coach: auth.Coach{ID: 2, Approved: true}, admin: auth.Admin{ID: 1}}
}

// settle inserts a settled booking worth grossCents for the coach.
func (f *fixture) settle(t *testing.T, grossCents int64) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	b := &models.Booking{UserID: 50, TotalCents: grossCents, Status: models.BookingCompleted, PaymentMethod: "wallet", CreatedAt: now,
		CoachCompletedAt: now, UserCompletedAt: now, CompletedAt: now}
	_, err := f.bun.NewInsert().Model(b).Exec(ctx)
	require.NoError(t, err)
	it := &models.BookingItem{BookingID: b.ID, ListingID: 1, SlotID: now.UnixNano(), CoachID: f.coach.ID,
		ListingTitle: "Tennis", PriceCents: grossCents, BasePriceCents: grossCents, Quantity: 1,
		SessionDate: "2026-03-01", SessionTime: "10:00"}
	_, err = f.bun.NewInsert().Model(it).Exec(ctx)
	require.NoError(t, err)
}

func TestRequestPayoutValidation(t *testing.T) {
	f := setup(t, &stubGuard{})
	ctx := context.Background()
	f.settle(t, 10000) // coach share 90.00

	_, err := f.svc.RequestPayout(ctx, f.coach, 0, "coach@paypal.example.com")
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	_, err = f.svc.RequestPayout(ctx, f.coach, 1000, "not-an-email")
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	_, err = f.svc.RequestPayout(ctx, auth.Coach{ID: 2}, 1000, "coach@paypal.example.com")
	assert.ErrorIs(t, err, apperr.ErrCoachNotApproved)

	_, err = f.svc.RequestPayout(ctx, f.coach, 9001, "coach@paypal.example.com")
	assert.ErrorIs(t, err, apperr.ErrExceedsBalance)

	r, err := f.svc.RequestPayout(ctx, f.coach, 9000, " coach@paypal.example.com ")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutRequested, r.Status)
	assert.Equal(t, "coach@paypal.example.com", r.PaypalEmail)
	assert.Equal(t, "SGD", r.Currency)
}

func TestRequestPayoutRunsAMLGuard(t *testing.T) {
	guard := &stubGuard{check: func(_ context.Context, coachID, amount int64) error {
		if amount > 5000 {
			return apperr.ErrAMLCap
		}
		return nil
	}}
	f := setup(t, guard)
	f.settle(t, 100000)

	_, err := f.svc.RequestPayout(context.Background(), f.coach, 6000, "coach@paypal.example.com")
	assert.ErrorIs(t, err, apperr.ErrAMLCap)
	assert.Empty(t, guard.Flagged())
}

func TestApprovedPayoutRaisesHighValueAlert(t *testing.T) {
	bunDB := dbtest.New(t)
	ctx := context.Background()
	coach := dbtest.CreateUser(t, bunDB, models.RoleCoach, models.CoachApproved, time.Now().Add(-400*24*time.Hour))
	guard := aml.NewGuard(&amldb.DB{Bun: bunDB}, config.PolicyConfig{
		NewAccountDays: 30, NewAccountPayoutCap: 500, HighValueThreshold: 1000,
	}, nil, nil, "", logger.NewNop())

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	gw := new(MockGateway)
	svc := payouts.NewService(&payoutdb.DB{Bun: bunDB}, revenue.NewService(revenue.NewDB(bunDB), time.UTC),
		guard, gw, locks.NewRedis(client, "payout_lock:"), nil, "", "SGD", logger.NewNop())
	f := &fixture{bun: bunDB, svc: svc, gateway: gw, guard: guard, coach: auth.Coach{ID: coach.ID, Approved: true}, admin: auth.Admin{ID: 1}}
	f.settle(t, 200000) // coach share 1800.00

	r, err := svc.RequestPayout(ctx, f.coach, 150000, "coach@paypal.example.com")
	require.NoError(t, err)
	gw.On("CreatePayout", mock.Anything, fmt.Sprintf("payout_%d", r.ID), mock.Anything, int64(150000), "SGD").
		Return("BATCH-HV", "SUCCESS", nil).Once()

	_, err = svc.ApprovePayout(ctx, f.admin, r.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		alerts, err := guard.ListAlerts(ctx, models.AlertOpen)
		return err == nil && len(alerts) == 1 &&
			alerts[0].AlertType == "high_value_"+aml.KindPayout && alerts[0].UserID == coach.ID
	}, 2*time.Second, 20*time.Millisecond)
}

func TestApprovePayoutSuccessReducesAvailable(t *testing.T) {
	f := setup(t, &stubGuard{})
	ctx := context.Background()
	f.settle(t, 10000)

	r, err := f.svc.RequestPayout(ctx, f.coach, 4000, "coach@paypal.example.com")
	require.NoError(t, err)
	f.gateway.On("CreatePayout", mock.Anything, "payout_1", "coach@paypal.example.com", int64(4000), "SGD").
		Return("BATCH-1", "SUCCESS", nil).Once()

	out, err := f.svc.ApprovePayout(ctx, f.admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSuccess, out.Status)
	require.NotNil(t, out.Payout)
	assert.Equal(t, "BATCH-1", out.Payout.BatchID)
	assert.Equal(t, int64(1), out.ReviewedBy)

	avail, err := f.svc.Balances.AvailableBalance(ctx, f.coach.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000-4000), avail)

	_, err = f.svc.ApprovePayout(ctx, f.admin, r.ID)
	assert.ErrorIs(t, err, apperr.ErrNotPending)
	f.gateway.AssertExpectations(t)
	assert.Equal(t, []string{"2:payout:payout_1:4000"}, f.guard.(*stubGuard).Flagged())
}

func TestApprovePayoutGatewayFailureMarksFailed(t *testing.T) {
	f := setup(t, &stubGuard{})
	ctx := context.Background()
	f.settle(t, 10000)

	r, err := f.svc.RequestPayout(ctx, f.coach, 4000, "coach@paypal.example.com")
	require.NoError(t, err)
	f.gateway.On("CreatePayout", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", "", errors.New("receiver unregistered")).Once()

	_, err = f.svc.ApprovePayout(ctx, f.admin, r.ID)
	assert.ErrorIs(t, err, apperr.ErrGateway)

	list, err := f.svc.ListPayouts(ctx, f.coach.ID, models.PayoutFailed)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.PayoutFailed, list[0].Payout.Status)
	assert.Empty(t, f.guard.(*stubGuard).Flagged())

	avail, err := f.svc.Balances.AvailableBalance(ctx, f.coach.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), avail)
}

func TestApprovePayoutChecksInFlight(t *testing.T) {
	f := setup(t, &stubGuard{})
	ctx := context.Background()
	f.settle(t, 10000) // 90.00 available

	first, err := f.svc.RequestPayout(ctx, f.coach, 6000, "coach@paypal.example.com")
	require.NoError(t, err)
	second, err := f.svc.RequestPayout(ctx, f.coach, 6000, "coach@paypal.example.com")
	require.NoError(t, err)

	f.gateway.On("CreatePayout", mock.Anything, "payout_1", mock.Anything, int64(6000), "SGD").
		Return("BATCH-1", "PENDING", nil).Once()

	out, err := f.svc.ApprovePayout(ctx, f.admin, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, out.Status)

	// 90.00 minus 60.00 in flight leaves too little for the second request.
	_, err = f.svc.ApprovePayout(ctx, f.admin, second.ID)
	assert.ErrorIs(t, err, apperr.ErrExceedsBalance)
	f.gateway.AssertNumberOfCalls(t, "CreatePayout", 1)
}

func TestConcurrentApprovalsSpendBalanceOnce(t *testing.T) {
	f := setup(t, &stubGuard{})
	ctx := context.Background()
	f.settle(t, 10000)

	var ids []int64
	for i := 0; i < 3; i++ {
		r, err := f.svc.RequestPayout(ctx, f.coach, 6000, "coach@paypal.example.com")
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	f.gateway.On("CreatePayout", mock.Anything, mock.Anything, mock.Anything, int64(6000), "SGD").
		Return("BATCH", "SUCCESS", nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.svc.ApprovePayout(ctx, f.admin, id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else {
				assert.ErrorIs(t, err, apperr.ErrExceedsBalance)
				fail++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 2, fail)
	f.gateway.AssertNumberOfCalls(t, "CreatePayout", 1)
}

func TestRefreshPayout(t *testing.T) {
	f := setup(t, &stubGuard{})
	ctx := context.Background()
	f.settle(t, 10000)

	r, err := f.svc.RequestPayout(ctx, f.coach, 3000, "coach@paypal.example.com")
	require.NoError(t, err)
	f.gateway.On("CreatePayout", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("BATCH-9", "PROCESSING", nil).Once()
	f.gateway.On("PayoutStatus", mock.Anything, "BATCH-9").Return("PENDING", nil).Once()
	f.gateway.On("PayoutStatus", mock.Anything, "BATCH-9").Return("SUCCESS", nil).Once()

	_, err = f.svc.ApprovePayout(ctx, f.admin, r.ID)
	require.NoError(t, err)

	out, err := f.svc.RefreshPayout(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, out.Status)

	out, err = f.svc.RefreshPayout(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSuccess, out.Status)
	assert.Equal(t, models.PayoutSuccess, out.Payout.Status)

	// Terminal payouts are not polled again.
	_, err = f.svc.RefreshPayout(ctx, r.ID)
	require.NoError(t, err)
	f.gateway.AssertExpectations(t)
	f.gateway.AssertNumberOfCalls(t, "PayoutStatus", 2)
}

func TestRejectPayout(t *testing.T) {
	f := setup(t, &stubGuard{})
	ctx := context.Background()
	f.settle(t, 10000)

	r, err := f.svc.RequestPayout(ctx, f.coach, 3000, "coach@paypal.example.com")
	require.NoError(t, err)

	out, err := f.svc.RejectPayout(ctx, f.admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, out.Status)

	_, err = f.svc.RejectPayout(ctx, f.admin, r.ID)
	assert.ErrorIs(t, err, apperr.ErrNotPending)

	_, err = f.svc.RejectPayout(ctx, f.admin, 404)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.ListPayouts(ctx, 0, "bogus")
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestGatewayStatus(t *testing.T) {
	assert.Equal(t, models.PayoutSuccess, payouts.GatewayStatus("SUCCESS"))
	assert.Equal(t, models.PayoutFailed, payouts.GatewayStatus("denied"))
	assert.Equal(t, models.PayoutProcessing, payouts.GatewayStatus("PENDING"))
	assert.Equal(t, models.PayoutProcessing, payouts.GatewayStatus(""))
}
