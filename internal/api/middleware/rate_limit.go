package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/upi-wallet/internal/api/problem"
	"github.com/go-chi/httprate"
)

// PublicRateLimiter limits onboarding and login calls per client IP.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(tooManyRequests(fmt.Sprintf("at most %d requests per second are allowed from one address", rps))),
	)
}

// AuthRateLimiter limits wallet calls per account, falling back to the client IP.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if accountID := AccountIDFromContext(r.Context()); accountID != "" {
				return "account:" + accountID, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(tooManyRequests(fmt.Sprintf("at most %d requests per second are allowed per account", rps))),
	)
}

func tooManyRequests(detail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		problem.Write(w, r, http.StatusTooManyRequests, "rate-limit-exceeded", detail)
	}
}
