package payment

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"ms-coaching/internal/config"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/pricing"
)

// PayPal talks to the PayPal REST API: checkout orders and payouts.
type PayPal struct {
	rest         restClient
	clientID     string
	clientSecret string
	currency     string
	tokens       *TokenCache
}

func NewPayPal(cfg config.PayPalConfig, tokens *TokenCache, log *logger.Logger) *PayPal {
	return &PayPal{
		rest:         newRESTClient("paypal", cfg.BaseURL, log),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		currency:     cfg.Currency,
		tokens:       tokens,
	}
}

type paypalToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (p *PayPal) token(ctx context.Context) (string, error) {
	if p.tokens != nil {
		if tok, err := p.tokens.Get(ctx); err != nil {
			p.rest.logger.Warn("PAYMENT", fmt.Sprintf("PayPal token cache unavailable: %v", err))
		} else if tok != "" {
			return tok, nil
		}
	}

	basic := base64.StdEncoding.EncodeToString([]byte(p.clientID + ":" + p.clientSecret))
	var out paypalToken
	form := formBody(url.Values{"grant_type": {"client_credentials"}}.Encode())
	if err := p.rest.do(ctx, "POST", "/v1/oauth2/token", map[string]string{"Authorization": "Basic " + basic}, form, &out); err != nil {
		return "", fmt.Errorf("paypal token: %w", err)
	}
	if p.tokens != nil {
		if err := p.tokens.Set(ctx, out.AccessToken, time.Duration(out.ExpiresIn)*time.Second); err != nil {
			p.rest.logger.Warn("PAYMENT", fmt.Sprintf("PayPal token not cached: %v", err))
		}
	}
	return out.AccessToken, nil
}

func (p *PayPal) call(ctx context.Context, method, endpoint string, headers map[string]string, body, out interface{}) error {
	tok, err := p.token(ctx)
	if err != nil {
		return err
	}
	h := map[string]string{"Authorization": "Bearer " + tok}
	for k, v := range headers {
		h[k] = v
	}
	return p.rest.do(ctx, method, endpoint, h, body, out)
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string       `json:"id"`
				Status string       `json:"status"`
				Amount paypalAmount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// Checkout is a started gateway payment the user still has to approve.
type Checkout struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// CreateOrder starts a PayPal checkout for amountCents. The PayPal order id
// becomes the payment reference.
func (p *PayPal) CreateOrder(ctx context.Context, requestID string, amountCents int64, returnURL, cancelURL string) (*Checkout, error) {
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": requestID,
			"amount":       paypalAmount{CurrencyCode: p.currency, Value: pricing.Format(amountCents)},
		}},
		"application_context": map[string]string{
			"return_url":  returnURL,
			"cancel_url":  cancelURL,
			"user_action": "PAY_NOW",
		},
	}
	var out paypalOrder
	if err := p.call(ctx, "POST", "/v2/checkout/orders", map[string]string{"PayPal-Request-Id": requestID}, body, &out); err != nil {
		return nil, fmt.Errorf("paypal create order: %w", err)
	}
	c := &Checkout{Reference: out.ID}
	for _, l := range out.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			c.RedirectURL = l.Href
		}
	}
	return c, nil
}

// Capture is the settled result of a PayPal order capture.
type Capture struct {
	Completed   bool
	AmountCents int64
}

func (p *PayPal) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	var out paypalOrder
	endpoint := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := p.call(ctx, "POST", endpoint, map[string]string{"PayPal-Request-Id": "capture-" + orderID}, map[string]string{}, &out); err != nil {
		return nil, fmt.Errorf("paypal capture %s: %w", orderID, err)
	}
	c := &Capture{Completed: out.Status == "COMPLETED"}
	for _, pu := range out.PurchaseUnits {
		for _, cp := range pu.Payments.Captures {
			if cp.Status != "COMPLETED" {
				continue
			}
			cents, err := pricing.ParseAmount(cp.Amount.Value)
			if err != nil {
				return nil, fmt.Errorf("paypal capture %s amount: %w", orderID, err)
			}
			c.AmountCents += cents
		}
	}
	return c, nil
}

type payoutBatch struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
}

// CreatePayout sends one email payout. senderBatchID makes retries safe: PayPal
// rejects a second batch with the same id.
func (p *PayPal) CreatePayout(ctx context.Context, senderBatchID, receiver string, amountCents int64, currency string) (string, string, error) {
	if currency == "" {
		currency = p.currency
	}
	body := map[string]interface{}{
		"sender_batch_header": map[string]string{
			"sender_batch_id": senderBatchID,
			"email_subject":   "You have a payout",
		},
		"items": []map[string]interface{}{{
			"recipient_type": "EMAIL",
			"amount":         map[string]string{"value": pricing.Format(amountCents), "currency": currency},
			"receiver":       receiver,
			"sender_item_id": senderBatchID,
			"note":           "Coaching earnings",
		}},
	}
	var out payoutBatch
	if err := p.call(ctx, "POST", "/v1/payments/payouts", nil, body, &out); err != nil {
		return "", "", fmt.Errorf("paypal payout %s: %w", senderBatchID, err)
	}
	return out.BatchHeader.PayoutBatchID, out.BatchHeader.BatchStatus, nil
}

func (p *PayPal) PayoutStatus(ctx context.Context, batchID string) (string, error) {
	var out payoutBatch
	if err := p.call(ctx, "GET", "/v1/payments/payouts/"+url.PathEscape(batchID), nil, nil, &out); err != nil {
		return "", fmt.Errorf("paypal payout status %s: %w", batchID, err)
	}
	return out.BatchHeader.BatchStatus, nil
}
