package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/service"
	"github.com/shopspring/decimal"
)

type TransferHandler struct {
	svc *service.TransferService
}

func NewTransferHandler(svc *service.TransferService) *TransferHandler {
	return &TransferHandler{svc: svc}
}

// transferRequest keeps amount raw so that malformed values surface as an
// invalid amount rather than an undecodable body. Both "250.00" and 250.00 are accepted.
type transferRequest struct {
	ReceiverHandle string          `json:"receiver_handle"`
	Amount         json.RawMessage `json:"amount"`
	Memo           string          `json:"memo"`
}

func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	account, ok := requestAccount(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := decodeAmount(req.Amount)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}

	result, err := h.svc.Transfer(r.Context(), service.TransferRequest{
		SenderAccountID: account.ID,
		ReceiverHandle:  req.ReceiverHandle,
		Amount:          amount,
		Memo:            req.Memo,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, result)
}

func decodeAmount(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, fmt.Errorf("%w: amount is required", domain.ErrInvalidAmount)
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Zero, fmt.Errorf("%w: amount must be a decimal string", domain.ErrInvalidAmount)
		}
	}
	return domain.ParseAmount(text)
}
