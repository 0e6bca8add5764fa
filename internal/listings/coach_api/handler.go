// Package coach_api serves the coach side of the marketplace: listings, slots,
// earnings and payout requests, plus the public catalogue.
package coach_api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/listings"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/payouts"
	"ms-coaching/internal/pricing"
	"ms-coaching/internal/revenue"
	"ms-coaching/internal/slots"
	"ms-coaching/internal/utils"
)

type Handler struct {
	Listings *listings.Service
	Slots    *slots.Service
	Revenue  *revenue.Service
	Payouts  *payouts.Service
	Logger   *logger.Logger
}

func NewHandler(l *listings.Service, s *slots.Service, rev *revenue.Service, p *payouts.Service, log *logger.Logger) *Handler {
	return &Handler{Listings: l, Slots: s, Revenue: rev, Payouts: p, Logger: log}
}

func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Route("/listings", func(r chi.Router) {
		r.Get("/", h.ListActive)
		r.Get("/{listingId}", h.GetListing)
		r.Get("/{listingId}/slots", h.ListListingSlots)
	})
}

// RegisterRoutes mounts /coach behind the coach role. Creating anything new
// additionally needs an approved account.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/coach", func(r chi.Router) {
		r.Use(auth.RequireRole(h.Logger, "coach"))

		r.Get("/listings", h.ListMyListings)
		r.With(auth.RequireApprovedCoach(h.Logger)).Post("/listings", h.CreateListing)
		r.Put("/listings/{listingId}", h.UpdateListing)
		r.Put("/listings/{listingId}/active", h.SetListingActive)
		r.Delete("/listings/{listingId}", h.DeleteListing)

		r.Get("/slots", h.ListMySlots)
		r.With(auth.RequireApprovedCoach(h.Logger)).Post("/slots", h.CreateSlot)
		r.Delete("/slots/{slotId}", h.DeleteSlot)

		r.Get("/earnings", h.GetEarnings)
		r.Get("/payouts", h.ListMyPayouts)
		r.Post("/payouts", h.RequestPayout)
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	utils.WriteError(w, h.Logger, "API", err)
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.Listings.ListActive(r.Context(), q.Get("sport"), queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "listings retrieved", out)
}

func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "listingId")
	if err != nil {
		h.fail(w, err)
		return
	}
	l, err := h.Listings.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "listing retrieved", l)
}

func (h *Handler) ListListingSlots(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "listingId")
	if err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.Slots.ListAvailableByListing(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "slots retrieved", out)
}

func (h *Handler) ListMyListings(w http.ResponseWriter, r *http.Request) {
	out, err := h.Listings.ListByCoach(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "listings retrieved", out)
}

func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var in listings.ListingInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	l, err := h.Listings.Create(r.Context(), p, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "listing created", l)
}

func (h *Handler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "listingId")
	if err != nil {
		h.fail(w, err)
		return
	}
	var in listings.ListingInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	l, err := h.Listings.Update(r.Context(), p, id, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "listing updated", l)
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) SetListingActive(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "listingId")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req activeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	if err := h.Listings.SetActive(r.Context(), p, id, req.Active); err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "listing updated", req)
}

func (h *Handler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "listingId")
	if err != nil {
		h.fail(w, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	if err := h.Listings.Delete(r.Context(), p, id); err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "listing deleted", nil)
}

func (h *Handler) ListMySlots(w http.ResponseWriter, r *http.Request) {
	out, err := h.Slots.ListByCoach(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "slots retrieved", out)
}

func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var in slots.SlotInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	coach, err := auth.As[auth.Coach](r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	s, err := h.Slots.CreateSlot(r.Context(), coach, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "slot created", s)
}

func (h *Handler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "slotId")
	if err != nil {
		h.fail(w, err)
		return
	}
	coach, err := auth.As[auth.Coach](r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.Slots.DeleteSlot(r.Context(), coach, id); err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "slot deleted", nil)
}

func (h *Handler) GetEarnings(w http.ResponseWriter, r *http.Request) {
	e, err := h.Revenue.CoachEarnings(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "earnings retrieved", e)
}

func (h *Handler) ListMyPayouts(w http.ResponseWriter, r *http.Request) {
	out, err := h.Payouts.ListPayouts(r.Context(), auth.UserID(r.Context()), r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "payouts retrieved", out)
}

// payoutRequest carries the amount in major units, e.g. "150.00".
type payoutRequest struct {
	Amount      string `json:"amount"`
	PaypalEmail string `json:"paypal_email"`
}

func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	cents, err := pricing.ParseAmount(req.Amount)
	if err != nil {
		h.fail(w, apperr.Wrap(apperr.WithMessage(apperr.ErrInvalidRequest, "amount must be a decimal with at most two places"), err))
		return
	}
	coach, err := auth.As[auth.Coach](r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("RequestPayout: coach=%d amount=%s", coach.ID, req.Amount))

	pr, err := h.Payouts.RequestPayout(r.Context(), coach, cents, req.PaypalEmail)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "payout requested", pr)
}
