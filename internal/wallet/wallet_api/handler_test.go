package wallet_api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-coaching/internal/auth"
	"ms-coaching/internal/database/dbtest"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/wallet"
	"ms-coaching/internal/wallet/wallet_api"
	walletdb "ms-coaching/internal/wallet/db"
)

func serve(h http.Handler, p auth.Principal, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWalletRoutes(t *testing.T) {
	log := logger.NewNop()
	svc := wallet.NewService(&walletdb.DB{Bun: dbtest.New(t)}, nil, log)
	_, err := svc.TopUp(context.Background(), wallet.TopUpInput{UserID: 4, AmountCents: 5000, Method: "card"})
	require.NoError(t, err)

	r := chi.NewRouter()
	(&wallet_api.Handler{Wallet: svc, Logger: log}).RegisterRoutes(r)

	rec := serve(r, auth.Student{ID: 4}, "/wallet")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data wallet.Balance `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "50.00", body.Data.Balance)
	assert.Equal(t, int64(50), body.Data.Points)

	rec = serve(r, auth.Student{ID: 4}, "/wallet/transactions?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var txs struct {
		Data []models.WalletTransaction `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	require.Len(t, txs.Data, 1)
	assert.Equal(t, models.TxTopUp, txs.Data[0].Type)

	rec = serve(r, auth.Coach{ID: 4}, "/wallet")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
