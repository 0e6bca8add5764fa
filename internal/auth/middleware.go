package auth

import (
	"fmt"
	"net/http"

	"ms-coaching/internal/logger"
)

// Middleware authenticates every request and stores the Principal in the context.
func Middleware(v Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ExtractTokenFromRequest(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			claims, err := v.Verify(r.Context(), raw)
			if err != nil {
				log.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			p, err := PrincipalFromClaims(claims)
			if err != nil {
				log.LogSecurity("INVALID_CLAIMS", err.Error())
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(log *logger.Logger, roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			if !allowed[p.Role()] {
				log.LogSecurity("ACCESS_DENIED", fmt.Sprintf("user %d (%s) -> %s %s", p.UserID(), p.Role(), r.Method, r.URL.Path))
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireApprovedCoach lets through only coaches whose account has been approved.
func RequireApprovedCoach(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := FromContext(r.Context())
			if c, ok := p.(Coach); !ok || !c.Approved {
				log.LogSecurity("COACH_NOT_APPROVED", fmt.Sprintf("%s %s", r.Method, r.URL.Path))
				http.Error(w, "coach account not approved", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
