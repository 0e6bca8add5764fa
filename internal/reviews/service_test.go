package reviews_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/reviews"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockStore) Create(ctx context.Context, r *models.Review) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockStore) ExistsForBooking(ctx context.Context, bookingID int64) (bool, error) {
	args := m.Called(ctx, bookingID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, id int64) (*models.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Review), args.Error(1)
}

func (m *MockStore) SetStatus(ctx context.Context, id int64, status string) (bool, error) {
	args := m.Called(ctx, id, status)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) ListByCoach(ctx context.Context, coachID int64, status string) ([]models.Review, error) {
	args := m.Called(ctx, coachID, status)
	return args.Get(0).([]models.Review), args.Error(1)
}

func (m *MockStore) ListByStatus(ctx context.Context, status string) ([]models.Review, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]models.Review), args.Error(1)
}

func settledBooking() *models.Booking {
	now := time.Now()
	return &models.Booking{
		ID: 7, UserID: 3, Status: models.BookingCompleted,
		CoachCompletedAt: now, UserCompletedAt: now, CompletedAt: now,
		Items: []*models.BookingItem{{ID: 1, BookingID: 7, CoachID: 9}},
	}
}

func TestSubmitReviewOnSettledBooking(t *testing.T) {
	store := new(MockStore)
	svc := reviews.NewService(store, logger.NewNop())
	ctx := context.Background()

	store.On("GetBooking", ctx, int64(7)).Return(settledBooking(), nil)
	store.On("ExistsForBooking", ctx, int64(7)).Return(false, nil).Once()
	store.On("Create", ctx, mock.MatchedBy(func(r *models.Review) bool {
		return r.CoachID == 9 && r.Rating == 5 && r.Status == models.ReviewPending
	})).Return(nil)

	r, err := svc.Submit(ctx, auth.Student{ID: 3}, reviews.SubmitInput{BookingID: 7, Rating: 5, Comment: " great "})
	require.NoError(t, err)
	assert.Equal(t, "great", r.Comment)

	store.On("ExistsForBooking", ctx, int64(7)).Return(true, nil).Once()
	_, err = svc.Submit(ctx, auth.Student{ID: 3}, reviews.SubmitInput{BookingID: 7, Rating: 4})
	assert.ErrorIs(t, err, apperr.ErrReviewExists)
	store.AssertNumberOfCalls(t, "Create", 1)
}

func TestSubmitGuards(t *testing.T) {
	store := new(MockStore)
	svc := reviews.NewService(store, logger.NewNop())
	ctx := context.Background()

	_, err := svc.Submit(ctx, auth.Student{ID: 3}, reviews.SubmitInput{BookingID: 7, Rating: 6})
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	store.On("GetBooking", ctx, int64(7)).Return(settledBooking(), nil)
	_, err = svc.Submit(ctx, auth.Student{ID: 4}, reviews.SubmitInput{BookingID: 7, Rating: 3})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	half := &models.Booking{ID: 8, UserID: 3, Status: models.BookingAccepted, CoachCompletedAt: time.Now()}
	store.On("GetBooking", ctx, int64(8)).Return(half, nil)
	_, err = svc.Submit(ctx, auth.Student{ID: 3}, reviews.SubmitInput{BookingID: 8, Rating: 3})
	assert.ErrorIs(t, err, apperr.ErrNotSettled)

	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestModerateAndListPublic(t *testing.T) {
	store := new(MockStore)
	svc := reviews.NewService(store, logger.NewNop())
	ctx := context.Background()

	_, err := svc.Moderate(ctx, auth.Admin{ID: 1}, 5, "published")
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	store.On("SetStatus", ctx, int64(5), models.ReviewApproved).Return(true, nil)
	store.On("Get", ctx, int64(5)).Return(&models.Review{ID: 5, Status: models.ReviewApproved}, nil)
	r, err := svc.Moderate(ctx, auth.Admin{ID: 1}, 5, models.ReviewApproved)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewApproved, r.Status)

	store.On("ListByCoach", ctx, int64(9), models.ReviewApproved).Return([]models.Review{{Rating: 5}, {Rating: 4}, {Rating: 4}}, nil)
	pub, err := svc.ListPublic(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 3, pub.Count)
	assert.Equal(t, 4.33, pub.Average)
}
