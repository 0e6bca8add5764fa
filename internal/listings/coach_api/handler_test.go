package coach_api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-coaching/internal/aml"
	amldb "ms-coaching/internal/aml/db"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/config"
	"ms-coaching/internal/database/dbtest"
	"ms-coaching/internal/listings"
	"ms-coaching/internal/listings/coach_api"
	listingdb "ms-coaching/internal/listings/db"
	"ms-coaching/internal/locks"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/payouts"
	payoutdb "ms-coaching/internal/payouts/db"
	"ms-coaching/internal/revenue"
	"ms-coaching/internal/slots"
	slotdb "ms-coaching/internal/slots/db"
)

var secret = []byte("coach-secret")

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
}

type fixture struct {
	bun    *bun.DB
	router http.Handler
	coach  *models.User
}

func setup(t *testing.T) *fixture {
	bunDB := dbtest.New(t)
	log := logger.NewNop()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	listingDB := &listingdb.DB{Bun: bunDB}
	rev := revenue.NewService(revenue.NewDB(bunDB), time.UTC)
	guard := aml.NewGuard(&amldb.DB{Bun: bunDB}, config.PolicyConfig{
		NewAccountDays: 30, NewAccountPayoutCap: 500, HighValueThreshold: 1000, HighValueCooldown: 60,
	}, nil, nil, "", log)

	h := coach_api.NewHandler(
		listings.NewService(listingDB, log),
		slots.NewService(&slotdb.DB{Bun: bunDB}, listingDB, log, time.UTC),
		rev,
		payouts.NewService(&payoutdb.DB{Bun: bunDB}, rev, guard, nil, locks.NewRedis(client, "payout_lock:"), nil, "", "SGD", log),
		log,
	)

	r := chi.NewRouter()
	h.RegisterPublicRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(auth.HMACVerifier{Secret: secret}, log))
		h.RegisterRoutes(r)
	})
	return &fixture{
		bun:    bunDB,
		router: r,
		coach:  dbtest.CreateUser(t, bunDB, models.RoleCoach, models.CoachApproved, time.Now().AddDate(-1, 0, 0)),
	}
}

func (f *fixture) do(t *testing.T, u *models.User, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if u != nil {
		tok, err := auth.SignHS256(secret, u.ID, u.Email, u.Role, u.CoachStatus, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec.Code, env
}

func TestListingAndSlotRoutes(t *testing.T) {
	f := setup(t)

	code, env := f.do(t, f.coach, http.MethodPost, "/coach/listings", listings.ListingInput{
		Title: "Serve clinic", Sport: "tennis", DurationMinutes: 60, PriceCents: 8000, DiscountPercentage: 25,
	})
	require.Equal(t, http.StatusCreated, code)
	var l listings.ListingView
	require.NoError(t, json.Unmarshal(env.Data, &l))
	assert.Equal(t, "60.00", l.FinalPrice)

	day := time.Now().UTC().AddDate(0, 0, 3).Format(models.SlotDateLayout)
	code, _ = f.do(t, f.coach, http.MethodPost, "/coach/slots", slots.SlotInput{
		ListingID: l.ID, SessionDate: day, SessionTime: "09:30", DurationMinutes: 60,
	})
	require.Equal(t, http.StatusCreated, code)

	code, env = f.do(t, nil, http.MethodGet, fmt.Sprintf("/listings/%d/slots", l.ID), nil)
	require.Equal(t, http.StatusOK, code)
	var open []models.Slot
	require.NoError(t, json.Unmarshal(env.Data, &open))
	require.Len(t, open, 1)
	assert.Equal(t, "09:30", open[0].SessionTime)

	code, _ = f.do(t, f.coach, http.MethodPut, fmt.Sprintf("/coach/listings/%d/active", l.ID), map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, code)
	code, env = f.do(t, nil, http.MethodGet, "/listings?sport=tennis", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[]", string(env.Data))
}

func TestPendingCoachCannotCreate(t *testing.T) {
	f := setup(t)
	pending := dbtest.CreateUser(t, f.bun, models.RoleCoach, models.CoachPending, time.Now())

	code, _ := f.do(t, pending, http.MethodPost, "/coach/listings", listings.ListingInput{Title: "x", DurationMinutes: 60, PriceCents: 100})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(t, pending, http.MethodGet, "/coach/listings", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestEarningsAndPayoutRequest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	b := &models.Booking{UserID: 99, TotalCents: 20000, Status: models.BookingCompleted, PaymentMethod: "wallet", CreatedAt: now,
		CoachCompletedAt: now, UserCompletedAt: now, CompletedAt: now}
	_, err := f.bun.NewInsert().Model(b).Exec(ctx)
	require.NoError(t, err)
	_, err = f.bun.NewInsert().Model(&models.BookingItem{BookingID: b.ID, ListingID: 1, SlotID: 1, CoachID: f.coach.ID,
		ListingTitle: "Serve clinic", PriceCents: 20000, BasePriceCents: 20000, Quantity: 1,
		SessionDate: "2026-01-10", SessionTime: "10:00"}).Exec(ctx)
	require.NoError(t, err)

	code, env := f.do(t, f.coach, http.MethodGet, "/coach/earnings", nil)
	require.Equal(t, http.StatusOK, code)
	var e revenue.CoachEarnings
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.Equal(t, int64(18000), e.AvailableCents)

	code, env = f.do(t, f.coach, http.MethodPost, "/coach/payouts", map[string]string{"amount": "180.01", "paypal_email": "c@example.com"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "EXCEEDS_BALANCE", env.Code)

	code, env = f.do(t, f.coach, http.MethodPost, "/coach/payouts", map[string]string{"amount": "10.005", "paypal_email": "c@example.com"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_REQUEST", env.Code)

	code, _ = f.do(t, f.coach, http.MethodPost, "/coach/payouts", map[string]string{"amount": "150", "paypal_email": "c@example.com"})
	require.Equal(t, http.StatusCreated, code)

	code, env = f.do(t, f.coach, http.MethodGet, "/coach/payouts?status=requested", nil)
	require.Equal(t, http.StatusOK, code)
	var list []models.PayoutRequest
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, int64(15000), list[0].AmountCents)
}
