// Package revenue derives coach earnings and platform revenue from settled
// bookings at read time. Nothing here is stored.
package revenue

import (
	"context"
	"sort"
	"time"

	"ms-coaching/internal/pricing"
)

type Store interface {
	GrossByCoach(ctx context.Context, f Filter) ([]CoachGross, error)
	SettledLines(ctx context.Context, f Filter) ([]SettledLine, error)
	PaidOut(ctx context.Context, coachID int64) (int64, error)
}

type Service struct {
	db       Store
	location *time.Location
}

func NewService(db Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, location: loc}
}

// Split is gross revenue divided 90/10.
type Split struct {
	GrossCents int64  `json:"gross_cents"`
	CoachCents int64  `json:"coach_cents"`
	AdminCents int64  `json:"admin_cents"`
	Gross      string `json:"gross"`
	Coach      string `json:"coach"`
	Admin      string `json:"admin"`
}

func newSplit(gross int64) Split {
	coach, admin := pricing.SplitRevenue(gross)
	return Split{
		GrossCents: gross, CoachCents: coach, AdminCents: admin,
		Gross: pricing.Format(gross), Coach: pricing.Format(coach), Admin: pricing.Format(admin),
	}
}

// CoachEarnings summarises one coach's settled revenue and payout position.
type CoachEarnings struct {
	CoachID        int64  `json:"coach_id"`
	Split          Split  `json:"split"`
	Bookings       int    `json:"bookings"`
	PaidCents      int64  `json:"paid_cents"`
	AvailableCents int64  `json:"available_cents"`
	Available      string `json:"available"`
}

func (s *Service) CoachEarnings(ctx context.Context, coachID int64) (*CoachEarnings, error) {
	rows, err := s.db.GrossByCoach(ctx, Filter{CoachID: coachID})
	if err != nil {
		return nil, err
	}
	out := &CoachEarnings{CoachID: coachID}
	var gross int64
	for _, r := range rows {
		gross += r.GrossCents
		out.Bookings += r.Bookings
	}
	out.Split = newSplit(gross)

	paid, err := s.db.PaidOut(ctx, coachID)
	if err != nil {
		return nil, err
	}
	out.PaidCents = paid
	out.AvailableCents = available(out.Split.CoachCents, paid)
	out.Available = pricing.Format(out.AvailableCents)
	return out, nil
}

func available(earned, paid int64) int64 {
	if earned <= paid {
		return 0
	}
	return earned - paid
}

// AvailableBalance is max(0, earned - paid) for the coach.
func (s *Service) AvailableBalance(ctx context.Context, coachID int64) (int64, error) {
	e, err := s.CoachEarnings(ctx, coachID)
	if err != nil {
		return 0, err
	}
	return e.AvailableCents, nil
}

type CoachBreakdown struct {
	CoachID  int64 `json:"coach_id"`
	Bookings int   `json:"bookings"`
	Items    int   `json:"items"`
	Split    Split `json:"split"`
}

type DailyRevenue struct {
	Date  string `json:"date"`
	Split Split  `json:"split"`
}

// AdminRevenue is platform revenue over [From, To) from bookings both sides confirmed.
type AdminRevenue struct {
	From    *time.Time       `json:"from,omitempty"`
	To      *time.Time       `json:"to,omitempty"`
	Total   Split            `json:"total"`
	ByCoach []CoachBreakdown `json:"by_coach"`
	Daily   []DailyRevenue   `json:"daily"`
}

// AdminRevenue splits each coach's gross separately, so the admin total is the
// sum of the per-coach admin shares.
func (s *Service) AdminRevenue(ctx context.Context, from, to time.Time) (*AdminRevenue, error) {
	f := Filter{From: from, To: to, BothSided: true}
	rows, err := s.db.GrossByCoach(ctx, f)
	if err != nil {
		return nil, err
	}
	out := &AdminRevenue{ByCoach: make([]CoachBreakdown, 0, len(rows))}
	if !from.IsZero() {
		out.From = &from
	}
	if !to.IsZero() {
		out.To = &to
	}

	var total Split
	for _, r := range rows {
		sp := newSplit(r.GrossCents)
		out.ByCoach = append(out.ByCoach, CoachBreakdown{CoachID: r.CoachID, Bookings: r.Bookings, Items: r.Items, Split: sp})
		total.GrossCents += sp.GrossCents
		total.CoachCents += sp.CoachCents
		total.AdminCents += sp.AdminCents
	}
	total.Gross = pricing.Format(total.GrossCents)
	total.Coach = pricing.Format(total.CoachCents)
	total.Admin = pricing.Format(total.AdminCents)
	out.Total = total

	lines, err := s.db.SettledLines(ctx, f)
	if err != nil {
		return nil, err
	}
	out.Daily = s.daily(lines)
	return out, nil
}

func (s *Service) daily(lines []SettledLine) []DailyRevenue {
	byDay := make(map[string]int64)
	for _, l := range lines {
		byDay[l.CompletedAt.In(s.location).Format("2006-01-02")] += l.AmountCents
	}
	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	out := make([]DailyRevenue, 0, len(days))
	for _, d := range days {
		out = append(out, DailyRevenue{Date: d, Split: newSplit(byDay[d])})
	}
	return out
}
