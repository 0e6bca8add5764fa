package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"

	"ms-coaching/internal/config"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/pricing"
)

// QRLifetime is how long a NETS QR code may be paid. Expiry is checked when
// the status is polled; nothing is scheduled.
const QRLifetime = 5 * time.Minute

type NETS struct {
	rest      restClient
	apiKey    string
	projectID string
}

func NewNETS(cfg config.NETSConfig, log *logger.Logger) *NETS {
	return &NETS{rest: newRESTClient("nets", cfg.BaseURL, log), apiKey: cfg.APIKey, projectID: cfg.ProjectID}
}

func (n *NETS) headers() map[string]string {
	return map[string]string{"api-key": n.apiKey, "project-id": n.projectID}
}

type netsResponse struct {
	Result struct {
		Data struct {
			ResponseCode    string `json:"response_code"`
			TxnStatus       int    `json:"txn_status"`
			QRCode          string `json:"qr_code"`
			TxnRetrievalRef string `json:"txn_retrieval_ref"`
			NetworkStatus   int    `json:"network_status"`
		} `json:"data"`
	} `json:"result"`
}

// QR is a NETS QR payment waiting to be scanned.
type QR struct {
	Reference string    `json:"reference"`
	PNG       []byte    `json:"png"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RequestQR asks NETS for a QR code. txn_retrieval_ref becomes the reference.
func (n *NETS) RequestQR(ctx context.Context, txnID string, amountCents int64, now time.Time) (*QR, error) {
	body := map[string]interface{}{
		"txn_id":         txnID,
		"amt_in_dollars": pricing.Format(amountCents),
		"notify_mobile":  0,
	}
	var out netsResponse
	if err := n.rest.do(ctx, "POST", "/api/v1/common/payments/nets-qr/request", n.headers(), body, &out); err != nil {
		return nil, fmt.Errorf("nets request qr: %w", err)
	}
	d := out.Result.Data
	if d.ResponseCode != "00" || d.TxnRetrievalRef == "" || d.QRCode == "" {
		return nil, fmt.Errorf("nets request qr: response code %q, network status %d", d.ResponseCode, d.NetworkStatus)
	}
	png, err := RenderQR(d.QRCode)
	if err != nil {
		return nil, fmt.Errorf("render nets qr: %w", err)
	}
	return &QR{Reference: d.TxnRetrievalRef, PNG: png, ExpiresAt: now.Add(QRLifetime)}, nil
}

// Paid reports whether NETS has settled the QR payment.
func (n *NETS) Paid(ctx context.Context, txnRetrievalRef string) (bool, error) {
	body := map[string]interface{}{
		"txn_retrieval_ref":       txnRetrievalRef,
		"frontend_timeout_status": 0,
	}
	var out netsResponse
	if err := n.rest.do(ctx, "POST", "/api/v1/common/payments/nets-qr/query", n.headers(), body, &out); err != nil {
		return false, fmt.Errorf("nets query %s: %w", txnRetrievalRef, err)
	}
	d := out.Result.Data
	return d.ResponseCode == "00" && d.TxnStatus == 1, nil
}

// RenderQR encodes payload as a 256px PNG.
func RenderQR(payload string) ([]byte, error) {
	return qrcode.Encode(payload, qrcode.Medium, 256)
}

// QRExpired reports whether a QR created at createdAt can no longer be paid.
func QRExpired(createdAt, now time.Time) bool {
	return now.Sub(createdAt) > QRLifetime
}
