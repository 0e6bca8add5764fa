// Package admin_api exposes moderation and money operations to administrators.
package admin_api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-coaching/internal/aml"
	"ms-coaching/internal/apperr"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/listings"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/payouts"
	"ms-coaching/internal/pricing"
	"ms-coaching/internal/refunds"
	"ms-coaching/internal/revenue"
	"ms-coaching/internal/reviews"
	"ms-coaching/internal/utils"
)

type Handler struct {
	Listings *listings.Service
	Refunds  *refunds.Service
	Payouts  *payouts.Service
	Revenue  *revenue.Service
	Reviews  *reviews.Service
	AML      *aml.Guard
	Location *time.Location
	Logger   *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireRole(h.Logger, "admin"))

		r.Put("/coaches/{coachId}/status", h.SetCoachStatus)
		r.Put("/listings/{listingId}/active", h.SetListingActive)
		r.Delete("/listings/{listingId}", h.DeleteListing)

		r.Get("/refunds", h.ListRefunds)
		r.Post("/refunds/{refundId}/approve", h.ApproveRefund)
		r.Post("/refunds/{refundId}/reject", h.RejectRefund)

		r.Get("/payouts", h.ListPayouts)
		r.Post("/payouts/{payoutId}/approve", h.ApprovePayout)
		r.Post("/payouts/{payoutId}/reject", h.RejectPayout)
		r.Post("/payouts/{payoutId}/refresh", h.RefreshPayout)

		r.Get("/revenue", h.GetRevenue)

		r.Get("/aml/alerts", h.ListAlerts)
		r.Post("/aml/alerts/{alertId}/review", h.ReviewAlert)

		r.Get("/reviews", h.ListPendingReviews)
		r.Put("/reviews/{reviewId}", h.ModerateReview)
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	utils.WriteError(w, h.Logger, "ADMIN", err)
}

// target parses the URL id and the calling admin.
func (h *Handler) target(w http.ResponseWriter, r *http.Request, param string) (int64, auth.Admin, bool) {
	id, err := utils.IDParam(r, param)
	if err != nil {
		h.fail(w, err)
		return 0, auth.Admin{}, false
	}
	admin, err := auth.As[auth.Admin](r.Context())
	if err != nil {
		h.fail(w, err)
		return 0, auth.Admin{}, false
	}
	return id, admin, true
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetCoachStatus(w http.ResponseWriter, r *http.Request) {
	id, admin, ok := h.target(w, r, "coachId")
	if !ok {
		return
	}
	var req statusRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.Listings.SetCoachStatus(r.Context(), admin, id, req.Status); err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "coach status updated", req)
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) SetListingActive(w http.ResponseWriter, r *http.Request) {
	id, admin, ok := h.target(w, r, "listingId")
	if !ok {
		return
	}
	var req activeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.Listings.SetActive(r.Context(), admin, id, req.Active); err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "listing updated", req)
}

func (h *Handler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	id, admin, ok := h.target(w, r, "listingId")
	if !ok {
		return
	}
	if err := h.Listings.Delete(r.Context(), admin, id); err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "listing deleted", nil)
}

func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	list, err := h.Refunds.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "refunds retrieved", list)
}

type approveRefundRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) ApproveRefund(w http.ResponseWriter, r *http.Request) {
	id, admin, ok := h.target(w, r, "refundId")
	if !ok {
		return
	}
	var req approveRefundRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	cents, err := pricing.ParseAmount(req.Amount)
	if err != nil {
		h.fail(w, apperr.Wrap(apperr.WithMessage(apperr.ErrInvalidRequest, "amount must be a decimal with at most two places"), err))
		return
	}
	rr, err := h.Refunds.ApproveRefund(r.Context(), admin, id, cents)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "refund approved", rr)
}

type rejectRequest struct {
	Note string `json:"note"`
}

func (h *Handler) RejectRefund(w http.ResponseWriter, r *http.Request) {
	id, admin, ok := h.target(w, r, "refundId")
	if !ok {
		return
	}
	var req rejectRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	rr, err := h.Refunds.RejectRefund(r.Context(), admin, id, req.Note)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "refund rejected", rr)
}

func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	var coachID int64
	if v := r.URL.Query().Get("coach_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			h.fail(w, apperr.WithMessage(apperr.ErrInvalidRequest, "invalid coach_id"))
			return
		}
		coachID = n
	}
	list, err := h.Payouts.ListPayouts(r.Context(), coachID, r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "payouts retrieved", list)
}

func (h *Handler) ApprovePayout(w http.ResponseWriter, r *http.Request) {
	id, admin, ok := h.target(w, r, "payoutId")
	if !ok {
		return
	}
	pr, err := h.Payouts.ApprovePayout(r.Context(), admin, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "payout sent", pr)
}

func (h *Handler) RejectPayout(w http.ResponseWriter, r *http.Request) {
	id, admin, ok := h.target(w, r, "payoutId")
	if !ok {
		return
	}
	pr, err := h.Payouts.RejectPayout(r.Context(), admin, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "payout rejected", pr)
}

func (h *Handler) RefreshPayout(w http.ResponseWriter, r *http.Request) {
	id, _, ok := h.target(w, r, "payoutId")
	if !ok {
		return
	}
	pr, err := h.Payouts.RefreshPayout(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "payout refreshed", pr)
}

// GetRevenue reads from and to as YYYY-MM-DD in the service time zone; both
// days are included.
func (h *Handler) GetRevenue(w http.ResponseWriter, r *http.Request) {
	from, err := h.day(r.URL.Query().Get("from"))
	if err != nil {
		h.fail(w, err)
		return
	}
	to, err := h.day(r.URL.Query().Get("to"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		h.fail(w, apperr.WithMessage(apperr.ErrInvalidRequest, "from must not be after to"))
		return
	}
	out, err := h.Revenue.AdminRevenue(r.Context(), from, to)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "revenue retrieved", out)
}

func (h *Handler) day(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(models.SlotDateLayout, v, loc)
	if err != nil {
		return time.Time{}, apperr.WithMessage(apperr.ErrInvalidRequest, "dates must be YYYY-MM-DD")
	}
	return t, nil
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	list, err := h.AML.ListAlerts(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "alerts retrieved", list)
}

func (h *Handler) ReviewAlert(w http.ResponseWriter, r *http.Request) {
	id, admin, ok := h.target(w, r, "alertId")
	if !ok {
		return
	}
	if err := h.AML.ReviewAlert(r.Context(), admin, id); err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "alert reviewed", nil)
}

func (h *Handler) ListPendingReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.Reviews.ListPending(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "reviews retrieved", list)
}

func (h *Handler) ModerateReview(w http.ResponseWriter, r *http.Request) {
	id, admin, ok := h.target(w, r, "reviewId")
	if !ok {
		return
	}
	var req statusRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	rv, err := h.Reviews.Moderate(r.Context(), admin, id, req.Status)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "review moderated", rv)
}
