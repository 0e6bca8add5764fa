package wallet_api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-coaching/internal/auth"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/utils"
	"ms-coaching/internal/wallet"
)

type Handler struct {
	Wallet *wallet.Service
	Logger *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/wallet", func(r chi.Router) {
		r.Use(auth.RequireRole(h.Logger, "student"))
		r.Get("/", h.GetBalance)
		r.Get("/transactions", h.ListTransactions)
	})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Wallet.GetBalance(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, "WALLET", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "wallet retrieved", b)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	txs, err := h.Wallet.ListTransactions(r.Context(), auth.UserID(r.Context()), limit)
	if err != nil {
		utils.WriteError(w, h.Logger, "WALLET", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "transactions retrieved", txs)
}
