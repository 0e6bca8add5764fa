// Package payouts moves settled coach earnings out through the payout gateway.
package payouts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ms-coaching/internal/aml"
	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/kafka"
	"ms-coaching/internal/locks"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/obs"
	"ms-coaching/internal/pricing"
)

type Store interface {
	CreateRequest(ctx context.Context, r *models.PayoutRequest) error
	GetRequest(ctx context.Context, id int64) (*models.PayoutRequest, error)
	ListRequests(ctx context.Context, coachID int64, status string) ([]models.PayoutRequest, error)
	Transition(ctx context.Context, id int64, from []string, to string, reviewedBy int64, at time.Time) (bool, error)
	InFlightCents(ctx context.Context, coachID int64) (int64, error)
	RecordAttempt(ctx context.Context, p *models.Payout) error
	ApplyStatus(ctx context.Context, p *models.Payout, status string, at time.Time) (bool, error)
}

type Balances interface {
	AvailableBalance(ctx context.Context, coachID int64) (int64, error)
}

type Guard interface {
	CheckPayout(ctx context.Context, coachID, amountCents int64) error
	FlagHighValue(ctx context.Context, userID int64, kind, reference string, amountCents int64)
}

// Gateway sends money to a coach. Statuses are the provider's batch statuses.
type Gateway interface {
	CreatePayout(ctx context.Context, senderBatchID, receiver string, amountCents int64, currency string) (batchID, status string, err error)
	PayoutStatus(ctx context.Context, batchID string) (string, error)
}

type Locker interface {
	Acquire(ctx context.Context, name, owner string, ttl, wait time.Duration) error
	Unlock(ctx context.Context, name, owner string) error
}

type Service struct {
	DB       Store
	Balances Balances
	Guard    Guard
	Gateway  Gateway
	Locks    Locker
	Events   kafka.Publisher
	Topic    string
	Currency string
	Logger   *logger.Logger
	Now      func() time.Time
	LockTTL  time.Duration
	LockWait time.Duration
}

func NewService(db Store, balances Balances, guard Guard, gateway Gateway, lk Locker, events kafka.Publisher, topic, currency string, log *logger.Logger) *Service {
	if events == nil {
		events = kafka.Nop{}
	}
	return &Service{
		DB: db, Balances: balances, Guard: guard, Gateway: gateway, Locks: lk,
		Events: events, Topic: topic, Currency: currency, Logger: log,
		Now: time.Now, LockTTL: 30 * time.Second, LockWait: 5 * time.Second,
	}
}

// RequestPayout files a payout request against the coach's available earnings.
func (s *Service) RequestPayout(ctx context.Context, coach auth.Coach, amountCents int64, paypalEmail string) (*models.PayoutRequest, error) {
	if !coach.Approved {
		return nil, apperr.ErrCoachNotApproved
	}
	if amountCents <= 0 {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "payout amount must be positive")
	}
	email := strings.TrimSpace(paypalEmail)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "a valid PayPal email is required")
	}
	if err := s.Guard.CheckPayout(ctx, coach.ID, amountCents); err != nil {
		return nil, err
	}
	available, err := s.Balances.AvailableBalance(ctx, coach.ID)
	if err != nil {
		return nil, fmt.Errorf("available balance: %w", err)
	}
	if amountCents > available {
		return nil, apperr.ErrExceedsBalance
	}

	now := s.Now().UTC()
	r := &models.PayoutRequest{
		CoachID:     coach.ID,
		AmountCents: amountCents,
		Currency:    s.Currency,
		PaypalEmail: email,
		Status:      models.PayoutRequested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.DB.CreateRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("create payout request: %w", err)
	}
	s.Logger.Info("PAYOUT", fmt.Sprintf("Coach %d requested %s (request %d)", coach.ID, pricing.Format(amountCents), r.ID))
	return r, nil
}

func lockName(coachID int64) string {
	return fmt.Sprintf("coach:%d", coachID)
}

// ApprovePayout sends an approved request to the gateway. Approvals for the
// same coach are serialised so two of them cannot both spend the same balance.
func (s *Service) ApprovePayout(ctx context.Context, admin auth.Admin, id int64) (*models.PayoutRequest, error) {
	ctx, span := obs.Tracer("payouts").Start(ctx, "payouts.ApprovePayout")
	defer span.End()
	span.SetAttributes(attribute.Int64("payout.request_id", id))

	r, err := s.approve(ctx, admin, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return r, nil
}

func (s *Service) approve(ctx context.Context, admin auth.Admin, id int64) (*models.PayoutRequest, error) {
	r, err := s.DB.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	coachID, owner := r.CoachID, uuid.NewString()
	if err := s.Locks.Acquire(ctx, lockName(coachID), owner, s.LockTTL, s.LockWait); err != nil {
		if errors.Is(err, locks.ErrNotAcquired) {
			return nil, apperr.WithMessage(apperr.ErrInvalidState, "another payout for this coach is being approved")
		}
		return nil, fmt.Errorf("payout lock: %w", err)
	}
	defer func() {
		if err := s.Locks.Unlock(context.WithoutCancel(ctx), lockName(coachID), owner); err != nil {
			s.Logger.Warn("PAYOUT", fmt.Sprintf("Release lock for coach %d: %v", coachID, err))
		}
	}()

	// Re-read under the lock.
	if r, err = s.DB.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	if r.Status != models.PayoutRequested {
		return nil, apperr.ErrNotPending
	}
	available, err := s.Balances.AvailableBalance(ctx, r.CoachID)
	if err != nil {
		return nil, fmt.Errorf("available balance: %w", err)
	}
	inFlight, err := s.DB.InFlightCents(ctx, r.CoachID)
	if err != nil {
		return nil, fmt.Errorf("in-flight payouts: %w", err)
	}
	if r.AmountCents > available-inFlight {
		return nil, apperr.ErrExceedsBalance
	}

	now := s.Now().UTC()
	ok, err := s.DB.Transition(ctx, id, []string{models.PayoutRequested}, models.PayoutApproved, admin.ID, now)
	if err != nil {
		return nil, fmt.Errorf("approve payout: %w", err)
	}
	if !ok {
		return nil, apperr.ErrNotPending
	}

	p := &models.Payout{PayoutRequestID: r.ID, CoachID: r.CoachID, AmountCents: r.AmountCents, CreatedAt: now, UpdatedAt: now}
	ref := fmt.Sprintf("payout_%d", r.ID)
	batchID, raw, gwErr := s.Gateway.CreatePayout(ctx, ref, r.PaypalEmail, r.AmountCents, r.Currency)
	if gwErr != nil {
		p.Status = models.PayoutFailed
	} else {
		p.BatchID = batchID
		p.Status = GatewayStatus(raw)
	}
	if err := s.DB.RecordAttempt(ctx, p); err != nil {
		s.Logger.Error("PAYOUT", fmt.Sprintf("Record payout for request %d (batch %q): %v", r.ID, batchID, err))
		return nil, err
	}
	s.publish(ctx, r, p)

	if gwErr != nil {
		s.Logger.Error("PAYOUT", fmt.Sprintf("Gateway rejected payout request %d: %v", r.ID, gwErr))
		return nil, apperr.Wrap(apperr.ErrGateway, gwErr)
	}
	s.Logger.Info("PAYOUT", fmt.Sprintf("Request %d approved by admin %d, batch %s is %s", r.ID, admin.ID, batchID, p.Status))
	if p.Status != models.PayoutFailed {
		s.Guard.FlagHighValue(ctx, r.CoachID, aml.KindPayout, ref, r.AmountCents)
	}
	return s.DB.GetRequest(ctx, id)
}

// RejectPayout closes a request that has not been approved.
func (s *Service) RejectPayout(ctx context.Context, admin auth.Admin, id int64) (*models.PayoutRequest, error) {
	ok, err := s.DB.Transition(ctx, id, []string{models.PayoutRequested}, models.PayoutFailed, admin.ID, s.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("reject payout: %w", err)
	}
	r, err := s.DB.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrNotPending
	}
	s.Logger.Info("PAYOUT", fmt.Sprintf("Request %d rejected by admin %d", id, admin.ID))
	return r, nil
}

// RefreshPayout polls the gateway for a processing payout.
func (s *Service) RefreshPayout(ctx context.Context, id int64) (*models.PayoutRequest, error) {
	r, err := s.DB.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Payout == nil || r.Payout.Status != models.PayoutProcessing {
		return r, nil
	}
	raw, err := s.Gateway.PayoutStatus(ctx, r.Payout.BatchID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrGateway, err)
	}
	status := GatewayStatus(raw)
	if status == models.PayoutProcessing {
		return r, nil
	}
	changed, err := s.DB.ApplyStatus(ctx, r.Payout, status, s.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update payout %d: %w", r.Payout.ID, err)
	}
	if r, err = s.DB.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	if changed {
		s.Logger.Info("PAYOUT", fmt.Sprintf("Batch %s for request %d is now %s", r.Payout.BatchID, id, status))
		s.publish(ctx, r, r.Payout)
	}
	return r, nil
}

// ListPayouts returns one coach's requests, or every request when coachID is 0.
func (s *Service) ListPayouts(ctx context.Context, coachID int64, status string) ([]models.PayoutRequest, error) {
	switch status {
	case "", models.PayoutRequested, models.PayoutApproved, models.PayoutProcessing, models.PayoutSuccess, models.PayoutFailed:
	default:
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "unknown payout status")
	}
	return s.DB.ListRequests(ctx, coachID, status)
}

// GatewayStatus maps a provider batch status onto ours.
func GatewayStatus(raw string) string {
	switch strings.ToUpper(raw) {
	case "SUCCESS":
		return models.PayoutSuccess
	case "DENIED", "CANCELED", "FAILED":
		return models.PayoutFailed
	default:
		return models.PayoutProcessing
	}
}

// PayoutUpdated is published whenever a payout changes status.
type PayoutUpdated struct {
	RequestID   int64     `json:"request_id"`
	CoachID     int64     `json:"coach_id"`
	AmountCents int64     `json:"amount_cents"`
	BatchID     string    `json:"batch_id,omitempty"`
	Status      string    `json:"status"`
	At          time.Time `json:"at"`
}

func (s *Service) publish(ctx context.Context, r *models.PayoutRequest, p *models.Payout) {
	if s.Topic == "" {
		return
	}
	evt := PayoutUpdated{RequestID: r.ID, CoachID: r.CoachID, AmountCents: r.AmountCents, BatchID: p.BatchID, Status: p.Status, At: p.UpdatedAt}
	if err := s.Events.Publish(ctx, s.Topic, fmt.Sprint(r.CoachID), evt); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Payout %d event not published: %v", r.ID, err))
	}
}
