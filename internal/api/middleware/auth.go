package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ayo6706/upi-wallet/internal/api/problem"
	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	accountContextKey contextKey = "account"
	accountSlotKey    contextKey = "account_slot"
	traceContextKey   contextKey = "trace_id"
)

// requestAccountSlot carries the authenticated account id back up to outer middleware.
type requestAccountSlot struct {
	accountID string
}

// TokenParser turns a bearer token into the account id it was issued for.
type TokenParser interface {
	Parse(token string) (uuid.UUID, error)
}

// AccountResolver loads the account behind an authenticated identity.
type AccountResolver interface {
	GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
}

// Authenticate validates the bearer token and injects the caller's account into the context.
func Authenticate(tokens TokenParser, accounts AccountResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				problem.Write(w, r, http.StatusUnauthorized, "auth/authorization-header-required", "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				problem.Write(w, r, http.StatusUnauthorized, "auth/invalid-token-format", "Invalid token format")
				return
			}

			accountID, err := tokens.Parse(tokenString)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, "auth/invalid-token", "Invalid token")
				return
			}

			account, err := accounts.GetAccount(r.Context(), accountID)
			if err != nil {
				if errors.Is(err, domain.ErrAccountNotFound) {
					problem.Write(w, r, http.StatusUnauthorized, "auth/unknown-account", "Account no longer exists")
					return
				}
				zap.L().Error("resolve authenticated account failed", zap.Error(err))
				problem.Write(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
				return
			}

			if slot, ok := r.Context().Value(accountSlotKey).(*requestAccountSlot); ok {
				slot.accountID = account.ID.String()
			}
			ctx := context.WithValue(r.Context(), accountContextKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireVerified rejects callers whose identity has not passed face verification.
func RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := AccountFromContext(r.Context())
		if account == nil {
			problem.Write(w, r, http.StatusUnauthorized, "auth/unauthenticated", "authentication required")
			return
		}
		if !account.FaceVerified {
			problem.Write(w, r, http.StatusForbidden, "auth/unverified-account", "account is not verified")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AccountFromContext returns the authenticated account, or nil.
func AccountFromContext(ctx context.Context) *models.Account {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(accountContextKey).(*models.Account); ok {
		return v
	}
	return nil
}

// AccountIDFromContext returns the authenticated account id as a string.
func AccountIDFromContext(ctx context.Context) string {
	if account := AccountFromContext(ctx); account != nil {
		return account.ID.String()
	}
	return ""
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceContextKey).(string); ok {
		return v
	}
	return ""
}
