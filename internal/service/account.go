package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/models"
	"github.com/google/uuid"
)

type AccountService struct {
	store LedgerStore
}

func NewAccountService(store LedgerStore) *AccountService {
	return &AccountService{store: store}
}

func (s *AccountService) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	return s.store.Queries().GetAccountByID(ctx, accountID)
}

// GetBalance returns the committed balance snapshot of one account.
func (s *AccountService) GetBalance(ctx context.Context, accountID uuid.UUID) (*models.Balance, error) {
	account, err := s.store.Queries().GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &models.Balance{
		Balance:     account.Balance,
		Handle:      account.Handle,
		DisplayName: account.DisplayName,
		Currency:    domain.DefaultCurrency,
	}, nil
}

// ListTransactions returns the transfers sent by accountID, newest first.
func (s *AccountService) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}
	if limit > domain.MaxHistoryLimit {
		limit = domain.MaxHistoryLimit
	}
	txns, err := s.store.Queries().ListTransactionsBySender(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

// GetTransaction returns one transfer sent by accountID. Transfers sent by other
// accounts are reported as not found.
func (s *AccountService) GetTransaction(ctx context.Context, accountID uuid.UUID, transactionID string) (*models.Transaction, error) {
	txn, err := s.store.Queries().GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if txn.SenderAccountID != accountID {
		return nil, domain.ErrTransactionNotFound
	}
	return txn, nil
}
