package wallet_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-coaching/internal/aml"
	"ms-coaching/internal/apperr"
	"ms-coaching/internal/database/dbtest"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/wallet"
	walletdb "ms-coaching/internal/wallet/db"
)

type MockGuard struct {
	mock.Mock
}

func (m *MockGuard) CheckTopUp(ctx context.Context, userID, amountCents int64) error {
	args := m.Called(ctx, userID, amountCents)
	return args.Error(0)
}

func (m *MockGuard) EnforceNewAccountCap(ctx context.Context, userID int64, kind string, amountCents int64) (aml.CapResult, error) {
	args := m.Called(ctx, userID, kind, amountCents)
	return args.Get(0).(aml.CapResult), args.Error(1)
}

func (m *MockGuard) FlagOverCap(ctx context.Context, userID int64, reference string, amountCents int64, res aml.CapResult) {
	m.Called(ctx, userID, reference, amountCents, res)
}

func (m *MockGuard) FlagHighValue(ctx context.Context, userID int64, kind, reference string, amountCents int64) {
	m.Called(ctx, userID, kind, reference, amountCents)
}

func newService(t *testing.T, guard wallet.Guard) (*wallet.Service, *walletdb.DB) {
	d := &walletdb.DB{Bun: dbtest.New(t)}
	return wallet.NewService(d, guard, logger.NewNop()), d
}

func TestTopUpCreditsBalanceAndPoints(t *testing.T) {
	guard := new(MockGuard)
	guard.On("CheckTopUp", mock.Anything, int64(1), int64(3000)).Return(nil)
	guard.On("FlagHighValue", mock.Anything, int64(1), "topup", "pp-1", int64(3000)).Return()
	svc, d := newService(t, guard)
	ctx := context.Background()

	bal, err := svc.TopUp(ctx, wallet.TopUpInput{UserID: 1, AmountCents: 3000, Method: "paypal", Provider: "paypal", Reference: "pp-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), bal.BalanceCents)
	assert.Equal(t, "30.00", bal.Balance)
	assert.Equal(t, int64(30), bal.Points)

	sum, err := d.LedgerSum(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, bal.BalanceCents, sum)
	guard.AssertExpectations(t)
}

func TestTopUpRejectsInvalidAmountBeforeGuard(t *testing.T) {
	guard := new(MockGuard)
	svc, _ := newService(t, guard)

	_, err := svc.TopUp(context.Background(), wallet.TopUpInput{UserID: 1, AmountCents: 2500, Method: "card"})
	assert.ErrorIs(t, err, apperr.ErrInvalidTopUp)
	guard.AssertNotCalled(t, "CheckTopUp", mock.Anything, mock.Anything, mock.Anything)
}

func TestTopUpBlockedByGuardWritesNothing(t *testing.T) {
	guard := new(MockGuard)
	guard.On("CheckTopUp", mock.Anything, int64(2), int64(50000)).Return(apperr.ErrAMLCap)
	svc, _ := newService(t, guard)
	ctx := context.Background()

	_, err := svc.TopUp(ctx, wallet.TopUpInput{UserID: 2, AmountCents: 50000, Method: "card"})
	assert.ErrorIs(t, err, apperr.ErrAMLCap)

	bal, err := svc.GetBalance(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, bal.BalanceCents)
	guard.AssertNotCalled(t, "FlagHighValue", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTopUpReferenceFundsOnce(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	in := wallet.TopUpInput{UserID: 5, AmountCents: 1000, Method: "stripe", Provider: "stripe", Reference: "cs_test_1"}

	_, err := svc.TopUp(ctx, in)
	require.NoError(t, err)
	_, err = svc.TopUp(ctx, in)
	assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)

	bal, err := svc.GetBalance(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.BalanceCents)
}

func TestCapturedTopUpSkipsBlockingCheck(t *testing.T) {
	over := aml.CapResult{Cap: 40000, Reason: aml.ReasonMonthlyWindow}
	guard := new(MockGuard)
	guard.On("EnforceNewAccountCap", mock.Anything, int64(3), aml.KindTopUp, int64(30000)).Return(over, nil)
	guard.On("FlagOverCap", mock.Anything, int64(3), "cs_9", int64(30000), over).Return().Once()
	guard.On("FlagHighValue", mock.Anything, int64(3), aml.KindTopUp, "cs_9", int64(30000)).Return()
	svc, _ := newService(t, guard)

	bal, err := svc.TopUp(context.Background(), wallet.TopUpInput{
		UserID: 3, AmountCents: 30000, Method: "stripe", Provider: "stripe", Reference: "cs_9", Captured: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(30000), bal.BalanceCents)
	guard.AssertNotCalled(t, "CheckTopUp", mock.Anything, mock.Anything, mock.Anything)
	guard.AssertExpectations(t)
}
