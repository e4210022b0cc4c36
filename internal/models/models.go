package models

import (
	"time"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/google/uuid"
)

// Account is a wallet holder: identity plus a single mutable balance.
type Account struct {
	ID             uuid.UUID    `json:"id"`
	Handle         string       `json:"handle"`
	DisplayName    string       `json:"display_name"`
	Email          string       `json:"email"`
	CredentialHash string       `json:"-"`
	FaceVerified   bool         `json:"face_verified"`
	Balance        domain.Money `json:"balance"`
	OpeningBalance domain.Money `json:"-"`
	Version        int64        `json:"-"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Transaction is an immutable record of a completed transfer.
type Transaction struct {
	TransactionID   string       `json:"transaction_id"`
	SenderAccountID uuid.UUID    `json:"sender_account_id"`
	ReceiverHandle  string       `json:"receiver_handle"`
	ReceiverName    string       `json:"receiver_name"`
	Amount          domain.Money `json:"amount"`
	Status          string       `json:"status"`
	Memo            string       `json:"memo,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

// TransferResult is returned to the caller of a successful transfer.
type TransferResult struct {
	TransactionID    string       `json:"transaction_id"`
	Amount           domain.Money `json:"amount"`
	ReceiverHandle   string       `json:"receiver_handle"`
	ReceiverName     string       `json:"receiver_name"`
	NewSenderBalance domain.Money `json:"new_sender_balance"`
}

// Balance is the wallet summary shown alongside the history.
type Balance struct {
	Balance     domain.Money `json:"balance"`
	Handle      string       `json:"handle"`
	DisplayName string       `json:"display_name"`
	Currency    string       `json:"currency"`
}

// AuditLog is an append-only audit record.
type AuditLog struct {
	EntityType string     `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	Action     string     `json:"action"`
	PrevState  string     `json:"prev_state,omitempty"`
	NextState  string     `json:"next_state,omitempty"`
	Metadata   []byte     `json:"metadata,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// LedgerTotals aggregates every account for reconciliation.
type LedgerTotals struct {
	Accounts         int64
	TotalBalance     domain.Money
	TotalOpening     domain.Money
	NegativeBalances int64
}

// IdempotencyKey is the durable record behind the Idempotency-Key header.
type IdempotencyKey struct {
	Key            string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
}
