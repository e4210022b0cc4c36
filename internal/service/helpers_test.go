package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/models"
	"github.com/ayo6706/upi-wallet/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var txnTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func seedAccount(t *testing.T, store *memstore.Store, handle, name, balance string) *models.Account {
	t.Helper()
	amount := domain.MustParseMoney(balance)
	account := &models.Account{
		ID:             uuid.New(),
		Handle:         handle,
		DisplayName:    name,
		Email:          uuid.NewString() + "@example.com",
		FaceVerified:   true,
		Balance:        amount,
		OpeningBalance: amount,
	}
	require.NoError(t, store.Queries().CreateAccount(context.Background(), account))
	return account
}

func balanceOf(t *testing.T, store *memstore.Store, id uuid.UUID) domain.Money {
	t.Helper()
	account, err := store.Queries().GetAccountByID(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}
