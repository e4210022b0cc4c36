package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/models"
	"github.com/ayo6706/upi-wallet/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(handle, email string, balance string) *models.Account {
	m := domain.MustParseMoney(balance)
	return &models.Account{
		ID:             uuid.New(),
		Handle:         handle,
		DisplayName:    handle,
		Email:          email,
		FaceVerified:   true,
		Balance:        m,
		OpeningBalance: m,
	}
}

func TestCreateAccountRejectsDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()
	q := s.Queries()

	require.NoError(t, q.CreateAccount(ctx, newAccount("alice@upi", "alice@example.com", "100")))

	err := q.CreateAccount(ctx, newAccount("alice@upi", "other@example.com", "100"))
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentity)

	err = q.CreateAccount(ctx, newAccount("other@upi", "ALICE@example.com", "100"))
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentity)

	got, err := q.GetAccountByEmail(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@upi", got.Handle)
}

func TestGetAccountNotFound(t *testing.T) {
	q := New().Queries()
	ctx := context.Background()

	_, err := q.GetAccountByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = q.GetAccountByHandle(ctx, "ghost@upi")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := newAccount("alice@upi", "alice@example.com", "100")
	require.NoError(t, s.Queries().CreateAccount(ctx, alice))

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(q repository.Querier) error {
		locked, err := q.LockAccountsForUpdate(ctx, alice.ID)
		require.NoError(t, err)
		_, err = q.ApplyBalanceDelta(ctx, alice.ID, -domain.MustParseMoney("40"), locked[alice.ID].Version)
		require.NoError(t, err)
		require.NoError(t, q.AppendTransaction(ctx, &models.Transaction{TransactionID: "TXN1", SenderAccountID: alice.ID}))
		require.NoError(t, q.InsertAuditLog(ctx, models.AuditLog{EntityID: alice.ID, Action: "test"}))

		staged, err := q.GetAccountByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "60.00", staged.Balance.String())
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Queries().GetAccountByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", got.Balance.String())
	assert.Equal(t, int64(0), got.Version)
	assert.Empty(t, s.Transactions())
	assert.Empty(t, s.AuditLogs())
}

func TestApplyBalanceDeltaVersionCheck(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := newAccount("alice@upi", "alice@example.com", "100")
	q := s.Queries()
	require.NoError(t, q.CreateAccount(ctx, alice))

	updated, err := q.ApplyBalanceDelta(ctx, alice.ID, domain.MustParseMoney("5"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)
	assert.Equal(t, "105.00", updated.Balance.String())

	_, err = q.ApplyBalanceDelta(ctx, alice.ID, domain.MustParseMoney("5"), 0)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	_, err = q.ApplyBalanceDelta(ctx, alice.ID, -domain.MustParseMoney("500"), 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestCommitDetectsConcurrentWrite(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := newAccount("alice@upi", "alice@example.com", "100")
	require.NoError(t, s.Queries().CreateAccount(ctx, alice))

	err := s.RunInTx(ctx, func(q repository.Querier) error {
		// Read without locking, then let a writer outside the unit of work move the row.
		current, err := q.GetAccountByID(ctx, alice.ID)
		require.NoError(t, err)
		_, err = s.Queries().ApplyBalanceDelta(ctx, alice.ID, domain.MustParseMoney("1"), current.Version)
		require.NoError(t, err)
		_, err = q.ApplyBalanceDelta(ctx, alice.ID, domain.MustParseMoney("1"), current.Version)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	got, err := s.Queries().GetAccountByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "101.00", got.Balance.String())
}

func TestRowLocksSerialiseUnitsOfWork(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := newAccount("alice@upi", "alice@example.com", "1000")
	require.NoError(t, s.Queries().CreateAccount(ctx, alice))

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RunInTx(ctx, func(q repository.Querier) error {
				locked, err := q.LockAccountsForUpdate(ctx, alice.ID)
				if err != nil {
					return err
				}
				_, err = q.ApplyBalanceDelta(ctx, alice.ID, -domain.MustParseMoney("10"), locked[alice.ID].Version)
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Queries().GetAccountByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "800.00", got.Balance.String())
	assert.Equal(t, int64(workers), got.Version)
}

func TestRunInTxHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.RunInTx(ctx, func(repository.Querier) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestAppendTransactionRejectsDuplicateID(t *testing.T) {
	s := New()
	ctx := context.Background()
	q := s.Queries()

	require.NoError(t, q.AppendTransaction(ctx, &models.Transaction{TransactionID: "TXNA"}))
	err := q.AppendTransaction(ctx, &models.Transaction{TransactionID: "TXNA"})
	assert.ErrorIs(t, err, domain.ErrDuplicateTransactionID)

	got, err := q.GetTransaction(ctx, "TXNA")
	require.NoError(t, err)
	assert.Equal(t, "TXNA", got.TransactionID)

	_, err = q.GetTransaction(ctx, "TXNB")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListTransactionsBySenderNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	q := s.Queries()
	sender, other := uuid.New(), uuid.New()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"TXN1", "TXN2", "TXN3"} {
		require.NoError(t, q.AppendTransaction(ctx, &models.Transaction{
			TransactionID:   id,
			SenderAccountID: sender,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, q.AppendTransaction(ctx, &models.Transaction{TransactionID: "TXNX", SenderAccountID: other, CreatedAt: base}))

	txns, err := q.ListTransactionsBySender(ctx, sender, 0)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, "TXN3", txns[0].TransactionID)
	assert.Equal(t, "TXN1", txns[2].TransactionID)

	txns, err = q.ListTransactionsBySender(ctx, sender, -1)
	require.NoError(t, err)
	assert.Len(t, txns, 3)

	txns, err = q.ListTransactionsBySender(ctx, sender, 2)
	require.NoError(t, err)
	assert.Len(t, txns, 2)

	txns, err = q.ListTransactionsBySender(ctx, uuid.New(), 10)
	require.NoError(t, err)
	assert.NotNil(t, txns)
	assert.Empty(t, txns)
}

func TestLedgerTotals(t *testing.T) {
	s := New()
	ctx := context.Background()
	q := s.Queries()
	require.NoError(t, q.CreateAccount(ctx, newAccount("a@upi", "a@example.com", "100")))
	require.NoError(t, q.CreateAccount(ctx, newAccount("b@upi", "b@example.com", "250.50")))

	totals, err := q.GetLedgerTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Accounts)
	assert.Equal(t, "350.50", totals.TotalBalance.String())
	assert.Equal(t, totals.TotalOpening, totals.TotalBalance)
	assert.Zero(t, totals.NegativeBalances)
}

func TestIdempotencyKeyLifecycle(t *testing.T) {
	q := New().Queries()
	ctx := context.Background()

	ok, err := q.ReserveIdempotencyKey(ctx, models.IdempotencyKey{Key: "acct:k1", RequestHash: "h1", Method: "POST", Path: "/v1/wallet/transfers"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.ReserveIdempotencyKey(ctx, models.IdempotencyKey{Key: "acct:k1", RequestHash: "h1"})
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := q.GetIdempotencyKey(ctx, "acct:k1")
	require.NoError(t, err)
	assert.True(t, rec.InProgress)
	assert.Equal(t, "application/json", rec.ContentType)

	_, err = q.FinalizeIdempotencyKey(ctx, models.IdempotencyKey{Key: "acct:k1", RequestHash: "other"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rec, err = q.FinalizeIdempotencyKey(ctx, models.IdempotencyKey{Key: "acct:k1", RequestHash: "h1", ResponseStatus: 201, ResponseBody: []byte(`{}`), ContentType: "application/json"})
	require.NoError(t, err)
	assert.False(t, rec.InProgress)
	assert.Equal(t, 201, rec.ResponseStatus)

	_, err = q.GetIdempotencyKey(ctx, "acct:missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
