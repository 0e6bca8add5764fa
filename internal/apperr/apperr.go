// Package apperr carries classified errors from the domain layer to the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

type Category string

const (
	Validation Category = "validation"
	Conflict   Category = "conflict"
	NotFound   Category = "not_found"
	Forbidden  Category = "forbidden"
	External   Category = "external"
	Internal   Category = "internal"
)

// Error is safe to surface: PublicError is what clients see, OriginalErr stays in logs.
type Error struct {
	Category    Category
	Code        string
	PublicError string
	OriginalErr error
}

func (e *Error) Error() string {
	if e.OriginalErr != nil {
		return e.Code + ": " + e.PublicError + ": " + e.OriginalErr.Error()
	}
	return e.Code + ": " + e.PublicError
}

func (e *Error) Unwrap() error { return e.OriginalErr }

// Is matches on Code so wrapped copies of a sentinel still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func New(category Category, code, public string) *Error {
	return &Error{Category: category, Code: code, PublicError: public}
}

// Wrap returns a copy of sentinel carrying cause.
func Wrap(sentinel *Error, cause error) *Error {
	cp := *sentinel
	cp.OriginalErr = cause
	return &cp
}

// WithMessage returns a copy of sentinel with a more specific public message.
func WithMessage(sentinel *Error, public string) *Error {
	cp := *sentinel
	cp.PublicError = public
	return &cp
}

var (
	ErrEmptyCart        = New(Conflict, "EMPTY_CART", "cart is empty")
	ErrSlotUnavailable  = New(Conflict, "SLOT_UNAVAILABLE", "slot is no longer available")
	ErrInsufficientFund = New(Conflict, "INSUFFICIENT_FUNDS", "wallet balance is too low")
	ErrRefundExists     = New(Conflict, "REFUND_EXISTS", "a refund request already exists for this item")
	ErrNotPending       = New(Conflict, "NOT_PENDING", "request is no longer pending")
	ErrAmountTooHigh    = New(Validation, "AMOUNT_TOO_HIGH", "approved amount exceeds the requested amount")
	ErrInvalidRequest   = New(Validation, "INVALID_REQUEST", "invalid request")
	ErrNotEligible      = New(Validation, "NOT_ELIGIBLE", "item is not eligible for a refund yet")
	ErrExceedsBalance   = New(Validation, "EXCEEDS_BALANCE", "amount exceeds available balance")
	ErrReviewExists     = New(Conflict, "REVIEW_EXISTS", "booking already reviewed")
	ErrNotSettled       = New(Conflict, "NOT_SETTLED", "booking is not settled")
	ErrAMLCap           = New(Forbidden, "AML_CAP", "amount exceeds the allowed limit for this account")
	ErrAMLCooldown      = New(Conflict, "AML_COOLDOWN", "please wait before making another large payment")
	ErrAlreadyProcessed = New(Conflict, "ALREADY_PROCESSED", "payment already processed")
	ErrPaymentExpired   = New(Conflict, "PAYMENT_EXPIRED", "payment session expired")
	ErrInvalidQuantity  = New(Validation, "INVALID_QUANTITY", "each booking slot can only be booked once")
	ErrListingInactive  = New(Conflict, "LISTING_INACTIVE", "listing is not available")
	ErrCoachNotApproved = New(Conflict, "COACH_NOT_APPROVED", "coach is not approved")
	ErrInvalidTopUp     = New(Validation, "INVALID_TOPUP", "top-up amount must be a positive multiple of 10")
	ErrForbidden        = New(Forbidden, "FORBIDDEN", "not allowed")
	ErrNotFound         = New(NotFound, "NOT_FOUND", "not found")
	ErrInvalidState     = New(Conflict, "INVALID_STATE", "operation not allowed in the current state")
	ErrGateway          = New(External, "GATEWAY_ERROR", "payment provider error")
)

var statusByCategory = map[Category]int{
	Validation: http.StatusBadRequest,
	Conflict:   http.StatusConflict,
	NotFound:   http.StatusNotFound,
	Forbidden:  http.StatusForbidden,
	External:   http.StatusBadGateway,
	Internal:   http.StatusInternalServerError,
}

// HTTPStatus maps err to a status code; unclassified errors are 500.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		if s, ok := statusByCategory[e.Category]; ok {
			return s
		}
	}
	return http.StatusInternalServerError
}

// Public returns the client-safe code and message for err.
func Public(err error) (code, message string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, e.PublicError
	}
	return "INTERNAL", "internal server error"
}
