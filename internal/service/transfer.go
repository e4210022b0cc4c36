package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/models"
	"github.com/ayo6706/upi-wallet/internal/observability"
	"github.com/ayo6706/upi-wallet/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferConfig carries the limits and retry policy of the transfer engine.
type TransferConfig struct {
	// MinAmount is an inclusive lower bound; amounts must also be strictly positive.
	MinAmount decimal.Decimal
	// MaxAmount is an inclusive upper bound. Zero disables the check.
	MaxAmount decimal.Decimal
	// Scale is the number of fractional digits an amount may carry.
	Scale        int32
	MaxAttempts  int
	RetryBackoff time.Duration
	IDPrefix     string
	// MaxMemoLength caps the memo in characters. Zero disables the check.
	MaxMemoLength int
}

func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		MinAmount:     decimal.RequireFromString("0.01"),
		Scale:         2,
		MaxAttempts:   3,
		RetryBackoff:  10 * time.Millisecond,
		IDPrefix:      "TXN",
		MaxMemoLength: 140,
	}
}

// TransferRequest is one caller-initiated transfer.
type TransferRequest struct {
	SenderAccountID uuid.UUID
	ReceiverHandle  string
	Amount          decimal.Decimal
	Memo            string
}

type TransferService struct {
	store LedgerStore
	audit *AuditService
	cfg   TransferConfig
	newID func() string
	now   func() time.Time
}

func NewTransferService(store LedgerStore, cfg TransferConfig) *TransferService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Scale < 0 || cfg.Scale > 6 {
		cfg.Scale = 2
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = "TXN"
	}
	s := &TransferService{
		store: store,
		audit: NewAuditService(store),
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
	s.newID = func() string { return newTransactionID(s.cfg.IDPrefix) }
	return s
}

// WithIDGenerator replaces the transaction id source.
func (s *TransferService) WithIDGenerator(fn func() string) *TransferService {
	if fn != nil {
		s.newID = fn
	}
	return s
}

// WithClock replaces the time source used for transaction timestamps.
func (s *TransferService) WithClock(now func() time.Time) *TransferService {
	if now != nil {
		s.now = now
	}
	return s
}

// Transfer moves req.Amount from the sender to the account behind req.ReceiverHandle.
// Validation happens before any lock is taken; the debit, the credit and the
// transaction record then commit as one unit of work that is not interrupted by
// cancellation of ctx.
func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (*models.TransferResult, error) {
	started := time.Now()
	result, err := s.transfer(ctx, req)
	observability.ObserveTransfer(transferOutcome(err), time.Since(started))
	return result, err
}

func (s *TransferService) transfer(ctx context.Context, req TransferRequest) (*models.TransferResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
	}

	amount, err := s.validateAmount(req.Amount)
	if err != nil {
		zap.L().Info("transfer rejected", zap.String("sender_account_id", req.SenderAccountID.String()), zap.Error(err))
		return nil, err
	}
	if err := s.validateMemo(req.Memo); err != nil {
		zap.L().Info("transfer rejected", zap.String("sender_account_id", req.SenderAccountID.String()), zap.Error(err))
		return nil, err
	}

	queries := s.store.Queries()
	sender, err := queries.GetAccountByID(ctx, req.SenderAccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			zap.L().Info("transfer rejected", zap.String("sender_account_id", req.SenderAccountID.String()), zap.Error(domain.ErrSenderNotFound))
			return nil, domain.ErrSenderNotFound
		}
		return nil, fmt.Errorf("%w: load sender: %w", domain.ErrTransferFailed, err)
	}

	handle := normalizeHandle(req.ReceiverHandle)
	fail := func(err error) (*models.TransferResult, error) {
		s.recordFailure(ctx, sender.ID, handle, amount, err)
		return nil, err
	}

	receiver, err := queries.GetAccountByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return fail(domain.ErrReceiverNotFound)
		}
		return fail(fmt.Errorf("%w: load receiver: %w", domain.ErrTransferFailed, err))
	}
	if receiver.ID == sender.ID {
		return fail(domain.ErrSelfTransfer)
	}
	if sender.Balance < amount {
		return fail(domain.NewInsufficientFunds(sender.Balance))
	}

	// Once the atomic section starts it runs to commit or rollback.
	atomicCtx := context.WithoutCancel(ctx)
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		result, err := s.commitTransfer(atomicCtx, sender.ID, receiver.ID, amount, req.Memo)
		if err == nil {
			zap.L().Info("transfer completed",
				zap.String("transaction_id", result.TransactionID),
				zap.String("sender_account_id", sender.ID.String()),
				zap.String("receiver_handle", result.ReceiverHandle),
				zap.String("amount", amount.String()),
				zap.Int("attempts", attempt),
			)
			return result, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, domain.ErrVersionConflict):
			if attempt < s.cfg.MaxAttempts {
				observability.IncrementTransferConflictRetry()
				zap.L().Debug("transfer conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
				if s.cfg.RetryBackoff > 0 {
					time.Sleep(time.Duration(attempt) * s.cfg.RetryBackoff)
				}
			}
		case errors.Is(err, domain.ErrInsufficientFunds):
			var insufficient *domain.InsufficientFundsError
			if errors.As(err, &insufficient) {
				return fail(insufficient)
			}
			return fail(err)
		case errors.Is(err, domain.ErrDuplicateTransactionID):
			zap.L().Error("transaction id collision", zap.String("sender_account_id", sender.ID.String()), zap.Error(err))
			return fail(fmt.Errorf("%w: %w", domain.ErrTransferFailed, err))
		default:
			return fail(fmt.Errorf("%w: %w", domain.ErrTransferFailed, err))
		}
	}

	return fail(fmt.Errorf("%w: gave up after %d attempts: %w", domain.ErrTransferFailed, s.cfg.MaxAttempts, lastErr))
}

func (s *TransferService) commitTransfer(ctx context.Context, senderID, receiverID uuid.UUID, amount domain.Money, memo string) (*models.TransferResult, error) {
	var result *models.TransferResult
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		locked, err := q.LockAccountsForUpdate(ctx, lockOrder(senderID, receiverID)...)
		if err != nil {
			return fmt.Errorf("lock accounts: %w", err)
		}
		sender, receiver := locked[senderID], locked[receiverID]

		// The precheck ran on an unlocked read; decide again on the locked row.
		if sender.Balance < amount {
			return domain.NewInsufficientFunds(sender.Balance)
		}

		debited, err := q.ApplyBalanceDelta(ctx, senderID, -amount, sender.Version)
		if err != nil {
			return fmt.Errorf("debit sender: %w", err)
		}
		if _, err := q.ApplyBalanceDelta(ctx, receiverID, amount, receiver.Version); err != nil {
			return fmt.Errorf("credit receiver: %w", err)
		}

		now := s.now()
		txn := &models.Transaction{
			TransactionID:   s.newID(),
			SenderAccountID: senderID,
			ReceiverHandle:  receiver.Handle,
			ReceiverName:    receiver.DisplayName,
			Amount:          amount,
			Status:          domain.TxStatusPending,
			Memo:            memo,
			CreatedAt:       now,
		}
		if err := transitionTransaction(txn, domain.TxStatusSuccess, now); err != nil {
			return err
		}
		if err := q.AppendTransaction(ctx, txn); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}

		result = &models.TransferResult{
			TransactionID:    txn.TransactionID,
			Amount:           amount,
			ReceiverHandle:   receiver.Handle,
			ReceiverName:     receiver.DisplayName,
			NewSenderBalance: debited.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *TransferService) validateAmount(amount decimal.Decimal) (domain.Money, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be greater than zero", domain.ErrInvalidAmount)
	}
	if !s.cfg.MinAmount.IsZero() && amount.LessThan(s.cfg.MinAmount) {
		return 0, fmt.Errorf("%w: amount is below the minimum of %s", domain.ErrInvalidAmount, s.cfg.MinAmount.StringFixed(2))
	}
	if !s.cfg.MaxAmount.IsZero() && amount.GreaterThan(s.cfg.MaxAmount) {
		return 0, fmt.Errorf("%w: amount exceeds the maximum of %s", domain.ErrInvalidAmount, s.cfg.MaxAmount.StringFixed(2))
	}
	return domain.MoneyFromDecimal(amount, s.cfg.Scale)
}

func (s *TransferService) validateMemo(memo string) error {
	if s.cfg.MaxMemoLength > 0 && utf8.RuneCountInString(memo) > s.cfg.MaxMemoLength {
		return fmt.Errorf("%w: memo must be at most %d characters", domain.ErrInvalidMemo, s.cfg.MaxMemoLength)
	}
	return nil
}

// recordFailure writes a failed attempt to the audit log. The transaction log
// only ever holds completed transfers.
func (s *TransferService) recordFailure(ctx context.Context, senderID uuid.UUID, receiverHandle string, amount domain.Money, cause error) {
	if isUserError(cause) {
		zap.L().Info("transfer rejected", zap.String("sender_account_id", senderID.String()), zap.String("receiver_handle", receiverHandle), zap.Error(cause))
	} else if !errors.Is(cause, domain.ErrDuplicateTransactionID) {
		zap.L().Warn("transfer failed", zap.String("sender_account_id", senderID.String()), zap.String("receiver_handle", receiverHandle), zap.Error(cause))
	}

	metadata, err := json.Marshal(map[string]string{
		"receiver_handle": receiverHandle,
		"amount":          amount.String(),
		"reason":          cause.Error(),
	})
	if err != nil {
		return
	}
	actor := senderID
	if err := s.audit.Write(context.WithoutCancel(ctx), nil, domain.AuditEntityTransfer, senderID, &actor, domain.AuditActionTransferFailed, domain.TxStatusPending, domain.TxStatusFailed, metadata); err != nil {
		zap.L().Warn("failed to audit transfer failure", zap.Error(err))
	}
}

func isUserError(err error) bool {
	return errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrInvalidMemo) ||
		errors.Is(err, domain.ErrSenderNotFound) ||
		errors.Is(err, domain.ErrReceiverNotFound) ||
		errors.Is(err, domain.ErrSelfTransfer) ||
		errors.Is(err, domain.ErrInsufficientFunds)
}

func transferOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case isUserError(err):
		return "rejected"
	default:
		return "failed"
	}
}
