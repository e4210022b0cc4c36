package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayo6706/upi-wallet/internal/api/middleware"
	"github.com/ayo6706/upi-wallet/internal/api/problem"
	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/models"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an RFC 7807 error response. problemType is a slug such
// as "wallet/invalid-amount" or an absolute type URI.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	problem.Write(w, r, status, problemType, message)
}

// RespondServiceError maps a service error onto a problem response.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, problemType, message := mapServiceError(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	RespondError(w, r, status, problemType, message)
}

func mapServiceError(err error) (status int, problemType, message string) {
	switch {
	case errors.Is(err, domain.ErrTransferFailed):
		return http.StatusInternalServerError, "wallet/transfer-failed", "transfer could not be completed; no money was moved"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "wallet/invalid-amount", err.Error()
	case errors.Is(err, domain.ErrSenderNotFound):
		return http.StatusNotFound, "wallet/sender-not-found", err.Error()
	case errors.Is(err, domain.ErrReceiverNotFound):
		return http.StatusNotFound, "wallet/receiver-not-found", err.Error()
	case errors.Is(err, domain.ErrSelfTransfer):
		return http.StatusBadRequest, "wallet/self-transfer", err.Error()
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "wallet/insufficient-funds", err.Error()
	case errors.Is(err, domain.ErrInvalidMemo):
		return http.StatusBadRequest, "wallet/invalid-memo", err.Error()
	case errors.Is(err, domain.ErrTransactionNotFound):
		return http.StatusNotFound, "wallet/transaction-not-found", "transaction not found"
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound, "account/not-found", "account not found"
	case errors.Is(err, domain.ErrDuplicateIdentity):
		return http.StatusConflict, "account/already-exists", err.Error()
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "request/invalid", err.Error()
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "auth/invalid-credentials", err.Error()
	case errors.Is(err, domain.ErrInvalidOTP):
		return http.StatusBadRequest, "auth/invalid-otp", err.Error()
	case errors.Is(err, domain.ErrFaceNotVerified):
		return http.StatusUnprocessableEntity, "auth/face-not-verified", err.Error()
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "auth/unauthenticated", "authentication required"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions"
	default:
		return http.StatusInternalServerError, "internal-server-error", "unexpected server error"
	}
}

func requestAccount(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	account := middleware.AccountFromContext(r.Context())
	if account == nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthenticated", "authentication required")
		return nil, false
	}
	return account, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return true
}
