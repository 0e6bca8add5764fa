package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/logger"
)

var secret = []byte("test-secret")

func protected(t *testing.T, mws ...func(http.Handler) http.Handler) http.Handler {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		require.True(t, ok)
		w.Write([]byte(p.Role()))
	})
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func request(t *testing.T, h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareBuildsTypedPrincipal(t *testing.T) {
	log := logger.NewNop()
	h := protected(t, Middleware(HMACVerifier{Secret: secret}, log))

	tok, err := SignHS256(secret, 7, "coach@example.com", "coach", "approved", time.Hour)
	require.NoError(t, err)

	rec := request(t, h, tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "coach", rec.Body.String())
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	log := logger.NewNop()
	h := protected(t, Middleware(HMACVerifier{Secret: secret}, log))

	assert.Equal(t, http.StatusUnauthorized, request(t, h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(t, h, "garbage").Code)

	wrongKey, _ := SignHS256([]byte("other"), 7, "", "student", "", time.Hour)
	assert.Equal(t, http.StatusUnauthorized, request(t, h, wrongKey).Code)

	expired, _ := SignHS256(secret, 7, "", "student", "", -time.Minute)
	assert.Equal(t, http.StatusUnauthorized, request(t, h, expired).Code)

	badRole, _ := SignHS256(secret, 7, "", "superuser", "", time.Hour)
	assert.Equal(t, http.StatusUnauthorized, request(t, h, badRole).Code)
}

func TestRequireRole(t *testing.T) {
	log := logger.NewNop()
	h := protected(t, Middleware(HMACVerifier{Secret: secret}, log), RequireRole(log, "admin"))

	student, _ := SignHS256(secret, 1, "", "student", "", time.Hour)
	admin, _ := SignHS256(secret, 2, "", "admin", "", time.Hour)

	assert.Equal(t, http.StatusForbidden, request(t, h, student).Code)
	assert.Equal(t, http.StatusOK, request(t, h, admin).Code)
}

func TestRequireApprovedCoach(t *testing.T) {
	log := logger.NewNop()
	h := protected(t, Middleware(HMACVerifier{Secret: secret}, log), RequireApprovedCoach(log))

	pending, _ := SignHS256(secret, 3, "", "coach", "pending", time.Hour)
	approved, _ := SignHS256(secret, 3, "", "coach", "approved", time.Hour)

	assert.Equal(t, http.StatusForbidden, request(t, h, pending).Code)
	assert.Equal(t, http.StatusOK, request(t, h, approved).Code)
}

func TestPrincipalFromClaims(t *testing.T) {
	p, err := PrincipalFromClaims(Claims{Subject: "12", Role: "student", Email: "s@example.com"})
	require.NoError(t, err)
	s, ok := p.(Student)
	require.True(t, ok)
	assert.Equal(t, int64(12), s.UserID())

	_, err = PrincipalFromClaims(Claims{Subject: "abc", Role: "student"})
	assert.Error(t, err)
}

func TestAs(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Coach{ID: 3, Approved: true})

	c, err := As[Coach](ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.ID)

	_, err = As[Student](ctx)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = As[Admin](context.Background())
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
