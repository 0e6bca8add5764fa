package payment_api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/payment"
	"ms-coaching/internal/pricing"
	"ms-coaching/internal/utils"
)

// maxWebhookBody matches the limit Stripe documents for event payloads.
const maxWebhookBody = 65536

type Handler struct {
	Payments *payment.Service
	Logger   *logger.Logger
}

// RegisterWebhookRoutes mounts the gateway callbacks, which carry no bearer token.
func (h *Handler) RegisterWebhookRoutes(r chi.Router) {
	r.Post("/payments/stripe/webhook", h.StripeWebhook)
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.Use(auth.RequireRole(h.Logger, "student"))
		r.Post("/bookings", h.StartBookingPayment)
		r.Post("/topups", h.StartTopUp)
		r.Post("/paypal/capture", h.CapturePayPal)
		r.Get("/nets/{reference}", h.NETSStatus)
	})
}

type startRequest struct {
	Provider string `json:"provider"`
	// Amount is only read for top-ups, in major units.
	Amount string `json:"amount,omitempty"`
}

func (h *Handler) StartBookingPayment(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, "PAYMENT", err)
		return
	}
	h.start(w, r, payment.StartInput{UserID: auth.UserID(r.Context()), Kind: payment.KindBooking, Provider: req.Provider})
}

func (h *Handler) StartTopUp(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, "PAYMENT", err)
		return
	}
	cents, err := pricing.ParseAmount(req.Amount)
	if err != nil {
		utils.WriteError(w, h.Logger, "PAYMENT", apperr.Wrap(apperr.ErrInvalidTopUp, err))
		return
	}
	h.start(w, r, payment.StartInput{UserID: auth.UserID(r.Context()), Kind: payment.KindTopUp, Provider: req.Provider, AmountCents: cents})
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request, in payment.StartInput) {
	h.Logger.Info("API", fmt.Sprintf("StartPayment: user=%d kind=%s provider=%s", in.UserID, in.Kind, in.Provider))
	started, err := h.Payments.Start(r.Context(), in)
	if err != nil {
		utils.WriteError(w, h.Logger, "PAYMENT", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "payment started", started)
}

// StripeWebhook answers 2xx for anything Stripe should not retry: events we do
// not handle, replays and payments whose pending state is gone.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		utils.WriteError(w, h.Logger, "PAYMENT", apperr.Wrap(apperr.WithMessage(apperr.ErrInvalidRequest, "unreadable webhook body"), err))
		return
	}

	out, err := h.Payments.HandleStripeWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, apperr.ErrAlreadyProcessed):
		h.Logger.Info("PAYMENT", "Stripe webhook replay ignored")
		utils.WriteSuccess(w, http.StatusOK, "payment already processed", out)
	case errors.Is(err, apperr.ErrPaymentExpired):
		h.Logger.Warn("PAYMENT", "Stripe webhook for an unknown or expired payment")
		utils.WriteSuccess(w, http.StatusOK, "payment not pending", nil)
	case err != nil:
		utils.WriteError(w, h.Logger, "PAYMENT", err)
	case out == nil:
		utils.WriteSuccess(w, http.StatusOK, "event ignored", nil)
	default:
		utils.WriteSuccess(w, http.StatusOK, "payment applied", out)
	}
}

type captureRequest struct {
	OrderID string `json:"order_id"`
}

func (h *Handler) CapturePayPal(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, "PAYMENT", err)
		return
	}
	out, err := h.Payments.CapturePayPal(r.Context(), auth.UserID(r.Context()), req.OrderID)
	h.outcome(w, out, err)
}

func (h *Handler) NETSStatus(w http.ResponseWriter, r *http.Request) {
	out, err := h.Payments.CheckNETS(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "reference"))
	h.outcome(w, out, err)
}

// outcome treats a replayed confirmation as success so clients can retry safely.
func (h *Handler) outcome(w http.ResponseWriter, out *payment.Outcome, err error) {
	switch {
	case errors.Is(err, apperr.ErrAlreadyProcessed) && out != nil:
		utils.WriteSuccess(w, http.StatusOK, "payment already processed", out)
	case err != nil:
		utils.WriteError(w, h.Logger, "PAYMENT", err)
	case out.Status == payment.StatusPending:
		utils.WriteSuccess(w, http.StatusAccepted, "payment pending", out)
	default:
		utils.WriteSuccess(w, http.StatusOK, "payment completed", out)
	}
}
