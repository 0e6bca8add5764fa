package booking_api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-coaching/internal/auth"
	"ms-coaching/internal/booking"
	"ms-coaching/internal/cart"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
	"ms-coaching/internal/refunds"
	"ms-coaching/internal/reviews"
	"ms-coaching/internal/utils"
)

type Handler struct {
	Cart     *cart.Service
	Bookings *booking.Service
	Reviews  *reviews.Service
	Refunds  *refunds.Service
	SSE      *SSEHandler
	Logger   *logger.Logger
}

// RegisterRoutes expects to be mounted behind auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(auth.RequireRole(h.Logger, "student"))
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddToCart)
		r.Put("/items/{itemId}", h.UpdateCartItem)
		r.Delete("/items/{itemId}", h.RemoveCartItem)
	})

	r.Route("/bookings", func(r chi.Router) {
		r.Get("/{bookingId}", h.GetBooking)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(h.Logger, "student"))
			r.Get("/", h.ListMyBookings)
			r.Post("/checkout/wallet", h.PayWithWallet)
			r.Post("/{bookingId}/confirm", h.ConfirmDelivery)
			r.Post("/items/{itemId}/refund", h.RequestRefund)
			r.Get("/refunds", h.ListMyRefunds)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(h.Logger, "coach"))
			r.Get("/coach", h.ListCoachBookings)
			if h.SSE != nil {
				r.Get("/coach/stream", h.SSE.HandleCoachBookings)
			}
			r.Post("/{bookingId}/accept", h.AcceptBooking)
			r.Post("/{bookingId}/complete", h.MarkCompleted)
		})
	})

	r.With(auth.RequireRole(h.Logger, "student")).Post("/reviews", h.SubmitReview)
}

// RegisterPublicRoutes holds the read-only routes that need no token.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/coaches/{coachId}/reviews", h.ListCoachReviews)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	utils.WriteError(w, h.Logger, "API", err)
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.Cart.Cached(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "cart retrieved", view)
}

type addToCartRequest struct {
	ListingID int64 `json:"listing_id"`
	SlotID    int64 `json:"slot_id"`
}

func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("AddToCart: user=%d listing=%d slot=%d", userID, req.ListingID, req.SlotID))

	view, err := h.Cart.AddOrIncrement(r.Context(), userID, req.ListingID, req.SlotID)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "item added to cart", view)
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := utils.IDParam(r, "itemId")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req updateCartItemRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	view, err := h.Cart.UpdateQuantity(r.Context(), auth.UserID(r.Context()), itemID, req.Quantity)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "cart updated", view)
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := utils.IDParam(r, "itemId")
	if err != nil {
		h.fail(w, err)
		return
	}
	view, err := h.Cart.RemoveItem(r.Context(), auth.UserID(r.Context()), itemID)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "item removed", view)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.Clear(r.Context(), auth.UserID(r.Context())); err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "cart cleared", nil)
}

func (h *Handler) PayWithWallet(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("PayWithWallet: user=%d", userID))

	res, err := h.Bookings.PayWithWallet(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "booking paid with wallet", res)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "bookingId")
	if err != nil {
		h.fail(w, err)
		return
	}
	p, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	b, err := h.Bookings.GetBooking(r.Context(), p, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "booking retrieved", b)
}

func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	list, err := h.Bookings.ListForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "bookings retrieved", list)
}

func (h *Handler) ListCoachBookings(w http.ResponseWriter, r *http.Request) {
	list, err := h.Bookings.ListForCoach(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "bookings retrieved", list)
}

func (h *Handler) AcceptBooking(w http.ResponseWriter, r *http.Request) {
	h.coachAction(w, r, "booking accepted", h.Bookings.AcceptBooking)
}

func (h *Handler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	h.coachAction(w, r, "booking marked completed", h.Bookings.MarkCompletedByCoach)
}

func (h *Handler) coachAction(w http.ResponseWriter, r *http.Request, msg string, action func(context.Context, auth.Coach, int64) (*models.Booking, error)) {
	id, err := utils.IDParam(r, "bookingId")
	if err != nil {
		h.fail(w, err)
		return
	}
	coach, err := auth.As[auth.Coach](r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	b, err := action(r.Context(), coach, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, msg, b)
}

func (h *Handler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "bookingId")
	if err != nil {
		h.fail(w, err)
		return
	}
	student, err := auth.As[auth.Student](r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	b, err := h.Bookings.ConfirmDelivery(r.Context(), student, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "delivery confirmed", b)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	itemID, err := utils.IDParam(r, "itemId")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req refundRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	student, err := auth.As[auth.Student](r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	rr, err := h.Refunds.RequestRefund(r.Context(), student, itemID, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "refund requested", rr)
}

func (h *Handler) ListMyRefunds(w http.ResponseWriter, r *http.Request) {
	list, err := h.Refunds.ListForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "refunds retrieved", list)
}

func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var in reviews.SubmitInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	student, err := auth.As[auth.Student](r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	rv, err := h.Reviews.Submit(r.Context(), student, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "review submitted for moderation", rv)
}

func (h *Handler) ListCoachReviews(w http.ResponseWriter, r *http.Request) {
	coachID, err := utils.IDParam(r, "coachId")
	if err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.Reviews.ListPublic(r.Context(), coachID)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "reviews retrieved", out)
}
