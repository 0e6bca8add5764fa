package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-coaching/internal/aml"
	"ms-coaching/internal/apperr"
	"ms-coaching/internal/database"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/pricing"
	walletdb "ms-coaching/internal/wallet/db"
)

type Store interface {
	GetWallet(ctx context.Context, userID int64) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]models.WalletTransaction, error)
	TopUp(ctx context.Context, e walletdb.Entry, claim func(ctx context.Context, tx bun.Tx) error) error
}

// Guard is the AML check run before any top-up is written.
type Guard interface {
	CheckTopUp(ctx context.Context, userID, amountCents int64) error
	EnforceNewAccountCap(ctx context.Context, userID int64, kind string, amountCents int64) (aml.CapResult, error)
	FlagHighValue(ctx context.Context, userID int64, kind, reference string, amountCents int64)
	FlagOverCap(ctx context.Context, userID int64, reference string, amountCents int64, res aml.CapResult)
}

type Service struct {
	DB     Store
	Guard  Guard
	Logger *logger.Logger
	Now    func() time.Time
}

func NewService(db Store, guard Guard, log *logger.Logger) *Service {
	return &Service{DB: db, Guard: guard, Logger: log, Now: time.Now}
}

type Balance struct {
	UserID       int64  `json:"user_id"`
	BalanceCents int64  `json:"balance_cents"`
	Balance      string `json:"balance"`
	Points       int64  `json:"points"`
}

func (s *Service) GetBalance(ctx context.Context, userID int64) (*Balance, error) {
	w, err := s.DB.GetWallet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	return &Balance{UserID: userID, BalanceCents: w.BalanceCents, Balance: pricing.Format(w.BalanceCents), Points: w.Points}, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID int64, limit int) ([]models.WalletTransaction, error) {
	return s.DB.ListTransactions(ctx, userID, limit)
}

type TopUpInput struct {
	UserID      int64
	AmountCents int64
	Method      string
	// Provider and Reference identify the gateway payment, if any. A reference
	// can fund at most one top-up.
	Provider  string
	Reference string
	// Captured marks money a gateway already holds. The binding AML check ran
	// when the payment started, so the wallet is always credited; caps that
	// have closed since then only raise an alert.
	Captured bool
}

// TopUp credits the wallet and awards one loyalty point per whole currency unit.
func (s *Service) TopUp(ctx context.Context, in TopUpInput) (*Balance, error) {
	if !pricing.IsValidTopUpCents(in.AmountCents) {
		return nil, apperr.ErrInvalidTopUp
	}
	var over *aml.CapResult
	switch {
	case s.Guard == nil:
	case in.Captured:
		res, err := s.Guard.EnforceNewAccountCap(ctx, in.UserID, aml.KindTopUp, in.AmountCents)
		if err != nil {
			s.Logger.Warn("WALLET", fmt.Sprintf("Cap review for captured %s of user %d: %v", in.Reference, in.UserID, err))
		} else if !res.OK {
			over = &res
		}
	default:
		if err := s.Guard.CheckTopUp(ctx, in.UserID, in.AmountCents); err != nil {
			s.Logger.LogWallet("TOPUP_BLOCKED", in.UserID, fmt.Sprintf("%s rejected: %v", pricing.Format(in.AmountCents), err))
			return nil, err
		}
	}

	now := s.Now().UTC()
	var claim func(ctx context.Context, tx bun.Tx) error
	if in.Reference != "" {
		claim = func(ctx context.Context, tx bun.Tx) error {
			return database.ClaimReference(ctx, tx, &models.PaymentConfirmation{
				Reference: in.Reference,
				Kind:      models.ConfirmTopUp,
				Provider:  in.Provider,
				UserID:    in.UserID,
				CreatedAt: now,
			})
		}
	}
	err := s.DB.TopUp(ctx, walletdb.Entry{
		UserID:      in.UserID,
		AmountCents: in.AmountCents,
		Points:      pricing.FloorUnits(in.AmountCents),
		Type:        models.TxTopUp,
		Method:      in.Method,
		Reference:   in.Reference,
		At:          now,
	}, claim)
	if err != nil {
		s.Logger.LogWallet("TOPUP_FAILED", in.UserID, err.Error())
		return nil, err
	}

	s.Logger.LogWallet("TOPUP", in.UserID, fmt.Sprintf("+%s via %s", pricing.Format(in.AmountCents), in.Method))
	if s.Guard != nil {
		if over != nil {
			s.Logger.LogWallet("TOPUP_OVER_CAP", in.UserID, fmt.Sprintf("%s via %s credited past the %s limit", pricing.Format(in.AmountCents), in.Reference, over.Reason))
			s.Guard.FlagOverCap(ctx, in.UserID, in.Reference, in.AmountCents, *over)
		}
		s.Guard.FlagHighValue(ctx, in.UserID, aml.KindTopUp, in.Reference, in.AmountCents)
	}
	return s.GetBalance(ctx, in.UserID)
}

// DeductForBooking pays a booking from the wallet inside the booking transaction.
func (s *Service) DeductForBooking(ctx context.Context, idb bun.IDB, userID, amountCents, bookingID int64) error {
	err := walletdb.Debit(ctx, idb, walletdb.Entry{
		UserID:      userID,
		AmountCents: amountCents,
		Type:        models.TxDebit,
		Method:      "wallet",
		Reference:   fmt.Sprintf("booking:%d", bookingID),
		BookingID:   bookingID,
		At:          s.Now().UTC(),
	})
	if err != nil {
		s.Logger.LogWallet("DEBIT_FAILED", userID, fmt.Sprintf("booking %d, %s: %v", bookingID, pricing.Format(amountCents), err))
		return err
	}
	s.Logger.LogWallet("DEBIT", userID, fmt.Sprintf("-%s for booking %d", pricing.Format(amountCents), bookingID))
	return nil
}

// CreditRefund credits an approved refund inside the approval transaction.
func (s *Service) CreditRefund(ctx context.Context, idb bun.IDB, userID, amountCents, bookingID int64, reference string) error {
	err := walletdb.Credit(ctx, idb, walletdb.Entry{
		UserID:      userID,
		AmountCents: amountCents,
		Type:        models.TxRefund,
		Method:      "refund",
		Reference:   reference,
		BookingID:   bookingID,
		At:          s.Now().UTC(),
	})
	if err != nil {
		s.Logger.LogWallet("REFUND_FAILED", userID, err.Error())
		return err
	}
	s.Logger.LogWallet("REFUND", userID, fmt.Sprintf("+%s (%s)", pricing.Format(amountCents), reference))
	return nil
}
