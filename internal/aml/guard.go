// Package aml holds the anti-money-laundering threshold checks run before
// payouts and top-ups, and the high-value alert trail admins review.
package aml

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/config"
	"ms-coaching/internal/kafka"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/pricing"
)

const (
	KindPayout = "payout"
	KindTopUp  = "topup"

	ReasonPerTransaction = "per_transaction"
	ReasonMonthlyWindow  = "monthly_window"
	ReasonWeeklyWindow   = "weekly_window"

	// AlertTopUpOverCap marks a gateway top-up credited after the caps closed.
	AlertTopUpOverCap = "topup_over_cap"

	monthlyWindow = 30 * 24 * time.Hour
	weeklyWindow  = 7 * 24 * time.Hour
)

type Store interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	TopUpTotalSince(ctx context.Context, userID int64, since time.Time) (int64, error)
	CreateAlert(ctx context.Context, a *models.AmlAlert) error
	ListAlerts(ctx context.Context, status string) ([]models.AmlAlert, error)
	ReviewAlert(ctx context.Context, id, adminID int64) (bool, error)
}

// CapResult explains a cap decision. Cap is in cents and set only when OK is false.
type CapResult struct {
	OK     bool   `json:"ok"`
	Cap    int64  `json:"cap,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type Guard struct {
	DB       Store
	Policy   config.PolicyConfig
	Cooldown Cooldown
	// Events is used for alerts when Topic is set; otherwise alerts are
	// written straight to the database.
	Events kafka.Publisher
	Topic  string
	Logger *logger.Logger
	Now    func() time.Time
}

func NewGuard(db Store, policy config.PolicyConfig, cooldown Cooldown, events kafka.Publisher, topic string, log *logger.Logger) *Guard {
	if cooldown == nil {
		cooldown = NewMemoryCooldown()
	}
	if events == nil {
		events = kafka.Nop{}
	}
	return &Guard{DB: db, Policy: policy, Cooldown: cooldown, Events: events, Topic: topic, Logger: log, Now: time.Now}
}

func (g *Guard) IsNewAccount(u *models.User) bool {
	age := g.Now().Sub(u.CreatedAt)
	return age < time.Duration(g.Policy.NewAccountDays)*24*time.Hour
}

// EnforceNewAccountCap checks amountCents against the caps for kind. It never
// writes anything; callers reject the action when OK is false.
func (g *Guard) EnforceNewAccountCap(ctx context.Context, userID int64, kind string, amountCents int64) (CapResult, error) {
	u, err := g.DB.GetUser(ctx, userID)
	if err != nil {
		return CapResult{}, err
	}
	isNew := g.IsNewAccount(u)

	switch kind {
	case KindPayout:
		limit := pricing.ToCents(g.Policy.NewAccountPayoutCap)
		if isNew && amountCents > limit {
			return CapResult{Cap: limit, Reason: ReasonPerTransaction}, nil
		}
		return CapResult{OK: true}, nil

	case KindTopUp:
		if isNew {
			perTx := pricing.ToCents(g.Policy.NewAccountTopUpCap)
			if amountCents > perTx {
				return CapResult{Cap: perTx, Reason: ReasonPerTransaction}, nil
			}
			return g.window(ctx, userID, amountCents, monthlyWindow, pricing.ToCents(g.Policy.NewAccountTopUpMonthly), ReasonMonthlyWindow)
		}
		return g.window(ctx, userID, amountCents, weeklyWindow, pricing.ToCents(g.Policy.TopUpWeeklyCap), ReasonWeeklyWindow)
	}
	return CapResult{}, fmt.Errorf("aml: unknown kind %q", kind)
}

func (g *Guard) window(ctx context.Context, userID, amountCents int64, span time.Duration, limit int64, reason string) (CapResult, error) {
	sum, err := g.DB.TopUpTotalSince(ctx, userID, g.Now().UTC().Add(-span))
	if err != nil {
		return CapResult{}, fmt.Errorf("aml window sum: %w", err)
	}
	if sum+amountCents > limit {
		return CapResult{Cap: limit, Reason: reason}, nil
	}
	return CapResult{OK: true}, nil
}

func (g *Guard) check(ctx context.Context, userID int64, kind string, amountCents int64) error {
	res, err := g.EnforceNewAccountCap(ctx, userID, kind, amountCents)
	if err != nil {
		return err
	}
	if !res.OK {
		g.Logger.LogSecurity("AML_CAP", fmt.Sprintf("%s of %s by user %d over %s cap %s", kind, pricing.Format(amountCents), userID, res.Reason, pricing.Format(res.Cap)))
		return apperr.WithMessage(apperr.ErrAMLCap, fmt.Sprintf("amount exceeds the %s limit of %s", res.Reason, pricing.Format(res.Cap)))
	}
	return g.BlockPaymentIfHighValue(ctx, userID, amountCents)
}

// CheckTopUp runs the caps and the high-value cooldown for a wallet top-up.
func (g *Guard) CheckTopUp(ctx context.Context, userID, amountCents int64) error {
	return g.check(ctx, userID, KindTopUp, amountCents)
}

// CheckPayout runs the caps and the high-value cooldown for a payout request.
func (g *Guard) CheckPayout(ctx context.Context, coachID, amountCents int64) error {
	return g.check(ctx, coachID, KindPayout, amountCents)
}

// BlockPaymentIfHighValue delays a second high-value payment from the same user
// until the cooldown runs out. It is a soft throttle, not a limit.
func (g *Guard) BlockPaymentIfHighValue(ctx context.Context, userID, amountCents int64) error {
	if amountCents <= pricing.ToCents(g.Policy.HighValueThreshold) {
		return nil
	}
	ttl := time.Duration(g.Policy.HighValueCooldown) * time.Second
	if ttl <= 0 {
		return nil
	}
	started, err := g.Cooldown.Start(ctx, fmt.Sprint(userID), ttl)
	if err != nil {
		// Cooldown store errors never block a payment.
		g.Logger.Warn("AML", err.Error())
		return nil
	}
	if !started {
		g.Logger.LogSecurity("AML_COOLDOWN", fmt.Sprintf("user %d retried a high-value payment of %s", userID, pricing.Format(amountCents)))
		return apperr.ErrAMLCooldown
	}
	return nil
}

// FlagOverCap records a top-up the gateway captured even though the caps
// would now refuse it. The wallet is credited regardless; the open alert is
// the admin's cue to review or refund it.
func (g *Guard) FlagOverCap(ctx context.Context, userID int64, reference string, amountCents int64, res CapResult) {
	a := &models.AmlAlert{
		UserID:      userID,
		AlertType:   AlertTopUpOverCap,
		Reference:   reference,
		AmountCents: amountCents,
		Reason:      fmt.Sprintf("captured past the %s limit of %s", res.Reason, pricing.Format(res.Cap)),
		Status:      models.AlertOpen,
		CreatedAt:   g.Now().UTC(),
	}
	if err := g.DB.CreateAlert(context.WithoutCancel(ctx), a); err != nil {
		g.Logger.Error("AML", fmt.Sprintf("Over-cap alert for user %d (%s) lost: %v", userID, reference, err))
		return
	}
	g.Logger.LogSecurity("AML_OVER_CAP", fmt.Sprintf("user %d %s %s past %s", userID, reference, pricing.Format(amountCents), res.Reason))
}

// HighValueEvent is the payload of the AML alert topic.
type HighValueEvent struct {
	UserID      int64     `json:"user_id"`
	Kind        string    `json:"kind"`
	Reference   string    `json:"reference"`
	AmountCents int64     `json:"amount_cents"`
	At          time.Time `json:"at"`
}

// FlagHighValue records an alert in the background. The caller's action has
// already succeeded and is never affected.
func (g *Guard) FlagHighValue(ctx context.Context, userID int64, kind, reference string, amountCents int64) {
	evt := HighValueEvent{UserID: userID, Kind: kind, Reference: reference, AmountCents: amountCents, At: g.Now().UTC()}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if _, err := g.MaybeFlagHighValue(ctx, evt); err != nil {
			g.Logger.Error("AML", fmt.Sprintf("High-value alert for user %d lost: %v", userID, err))
		}
	}()
}

// MaybeFlagHighValue reports whether evt crossed the threshold and was recorded.
func (g *Guard) MaybeFlagHighValue(ctx context.Context, evt HighValueEvent) (bool, error) {
	if evt.AmountCents <= pricing.ToCents(g.Policy.HighValueThreshold) {
		return false, nil
	}
	if g.Topic != "" {
		return true, g.Events.Publish(ctx, g.Topic, fmt.Sprint(evt.UserID), evt)
	}
	return true, g.record(ctx, evt)
}

func (g *Guard) record(ctx context.Context, evt HighValueEvent) error {
	a := &models.AmlAlert{
		UserID:      evt.UserID,
		AlertType:   "high_value_" + evt.Kind,
		Reference:   evt.Reference,
		AmountCents: evt.AmountCents,
		Reason:      fmt.Sprintf("amount %s above threshold %s", pricing.Format(evt.AmountCents), pricing.Format(pricing.ToCents(g.Policy.HighValueThreshold))),
		Status:      models.AlertOpen,
		CreatedAt:   evt.At,
	}
	if err := g.DB.CreateAlert(ctx, a); err != nil {
		return fmt.Errorf("create aml alert: %w", err)
	}
	g.Logger.LogSecurity("AML_ALERT", fmt.Sprintf("user %d %s %s", evt.UserID, a.AlertType, pricing.Format(evt.AmountCents)))
	return nil
}

// HandleAlertEvent is the Kafka consumer handler for the alert topic.
func (g *Guard) HandleAlertEvent(ctx context.Context, e kafka.Event) error {
	var evt HighValueEvent
	if err := json.Unmarshal(e.Payload, &evt); err != nil {
		return fmt.Errorf("decode aml event %s: %w", e.ID, err)
	}
	return g.record(ctx, evt)
}

func (g *Guard) ListAlerts(ctx context.Context, status string) ([]models.AmlAlert, error) {
	return g.DB.ListAlerts(ctx, status)
}

func (g *Guard) ReviewAlert(ctx context.Context, admin auth.Admin, id int64) error {
	ok, err := g.DB.ReviewAlert(ctx, id, admin.ID)
	if err != nil {
		return fmt.Errorf("review aml alert: %w", err)
	}
	if !ok {
		return apperr.ErrNotPending
	}
	g.Logger.LogSecurity("AML_REVIEWED", fmt.Sprintf("alert %d by admin %d", id, admin.ID))
	return nil
}
