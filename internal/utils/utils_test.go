package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/logger"
)

func TestWriteErrorHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, logger.NewNop(), "TEST", apperr.Wrap(apperr.ErrSlotUnavailable, errors.New("pq: secret detail")))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "SLOT_UNAVAILABLE", resp.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestWriteErrorUnclassified(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, logger.NewNop(), "TEST", errors.New("connection reset"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestIDParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/bookings/17", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "17")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	id, err := IDParam(req, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)

	rctx.URLParams = chi.RouteParams{}
	rctx.URLParams.Add("id", "-3")
	_, err = IDParam(req, "id")
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Amount int64 `json:"amount"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":5,"extra":1}`))
	assert.ErrorIs(t, DecodeJSON(req, &dst), apperr.ErrInvalidRequest)
}

func TestNewReferenceAndToday(t *testing.T) {
	a, b := NewReference("bk"), NewReference("bk")
	assert.True(t, strings.HasPrefix(a, "bk_"))
	assert.NotEqual(t, a, b)

	sgt := time.FixedZone("SGT", 8*3600)
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-02", Today(now, sgt))
}
