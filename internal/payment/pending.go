package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	KindBooking = "booking"
	KindTopUp   = "topup"
)

const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
	ProviderNETS   = "nets"
)

// Pending is what we remember about a payment between starting it at the
// gateway and the gateway confirming it.
type Pending struct {
	Reference   string    `json:"reference"`
	Kind        string    `json:"kind"`
	Provider    string    `json:"provider"`
	UserID      int64     `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

// PendingStore keeps Pending records in Redis under pending_payment:<ref>.
type PendingStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewPendingStore(client *redis.Client, ttl time.Duration) *PendingStore {
	return &PendingStore{Client: client, TTL: ttl}
}

func pendingKey(ref string) string {
	return "pending_payment:" + ref
}

func (s *PendingStore) Save(ctx context.Context, p *Pending) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.Client.Set(ctx, pendingKey(p.Reference), raw, s.TTL).Err(); err != nil {
		return fmt.Errorf("save pending payment %s: %w", p.Reference, err)
	}
	return nil
}

// Load returns nil, nil when the reference is unknown or has expired.
func (s *PendingStore) Load(ctx context.Context, ref string) (*Pending, error) {
	raw, err := s.Client.Get(ctx, pendingKey(ref)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pending payment %s: %w", ref, err)
	}
	var p Pending
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode pending payment %s: %w", ref, err)
	}
	return &p, nil
}

func (s *PendingStore) Delete(ctx context.Context, ref string) error {
	return s.Client.Del(ctx, pendingKey(ref)).Err()
}
