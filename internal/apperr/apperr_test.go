package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsIdentityAndCause(t *testing.T) {
	cause := errors.New("duplicate key")
	err := fmt.Errorf("refund: %w", Wrap(ErrRefundExists, cause))

	assert.ErrorIs(t, err, ErrRefundExists)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotPending)
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))

	code, msg := Public(err)
	assert.Equal(t, "REFUND_EXISTS", code)
	assert.NotContains(t, msg, "duplicate key")
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrEmptyCart, http.StatusConflict},
		{ErrAmountTooHigh, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{ErrGateway, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HTTPStatus(c.err), c.err.Error())
	}
}

func TestWithMessage(t *testing.T) {
	err := WithMessage(ErrInvalidRequest, "rating must be between 1 and 5")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, msg := Public(err)
	assert.Equal(t, "rating must be between 1 and 5", msg)
	assert.Equal(t, "invalid request", ErrInvalidRequest.PublicError)
}
