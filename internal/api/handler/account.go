package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/service"
	"github.com/go-chi/chi/v5"
)

type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := requestAccount(w, r)
	if !ok {
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), account.ID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, balance)
}

func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	account, ok := requestAccount(w, r)
	if !ok {
		return
	}

	limit := domain.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > domain.MaxHistoryLimit {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be between 1 and "+strconv.Itoa(domain.MaxHistoryLimit))
			return
		}
		limit = parsed
	}

	txns, err := h.svc.ListTransactions(r.Context(), account.ID, limit)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"limit":        limit,
	})
}

func (h *AccountHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	account, ok := requestAccount(w, r)
	if !ok {
		return
	}

	transactionID := strings.TrimSpace(chi.URLParam(r, "transactionID"))
	txn, err := h.svc.GetTransaction(r.Context(), account.ID, transactionID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, txn)
}
