package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, handle, display_name, email, credential_hash, face_verified,
	balance_micros, opening_balance_micros, version, created_at, updated_at`

// Queries implements Querier on top of pgx.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a query set bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

func (q *Queries) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO accounts (id, handle, display_name, email, credential_hash, face_verified,
		balance_micros, opening_balance_micros, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, NOW(), NOW())
		RETURNING version, created_at, updated_at`
	err := q.db.QueryRow(ctx, query,
		account.ID, account.Handle, account.DisplayName, strings.ToLower(account.Email), account.CredentialHash,
		account.FaceVerified, account.Balance.Micros(), account.OpeningBalance.Micros(),
	).Scan(&account.Version, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", mapPgError(err))
	}
	return nil
}

func (q *Queries) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	row := q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccountRow(row, "get account by id")
}

func (q *Queries) GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error) {
	row := q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE handle = $1`, handle)
	return scanAccountRow(row, "get account by handle")
}

func (q *Queries) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, strings.ToLower(email))
	return scanAccountRow(row, "get account by email")
}

func (q *Queries) LockAccountsForUpdate(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	locked := make(map[uuid.UUID]*models.Account, len(ids))
	for _, id := range ids {
		if _, ok := locked[id]; ok {
			continue
		}
		row := q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
		account, err := scanAccountRow(row, "lock account")
		if err != nil {
			return nil, err
		}
		locked[id] = account
	}
	return locked, nil
}

func (q *Queries) ApplyBalanceDelta(ctx context.Context, id uuid.UUID, delta domain.Money, expectedVersion int64) (*models.Account, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE accounts
		SET balance_micros = balance_micros + $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $3 AND balance_micros + $2 >= 0
		RETURNING `+accountColumns,
		id, delta.Micros(), expectedVersion)
	account, err := scanAccount(row)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("apply balance delta: %w", mapPgError(err))
	}

	// Nothing updated: find out which guard refused the write.
	var balance, version int64
	err = q.db.QueryRow(ctx, `SELECT balance_micros, version FROM accounts WHERE id = $1`, id).Scan(&balance, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("apply balance delta: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("apply balance delta: %w", mapPgError(err))
	}
	if version != expectedVersion {
		return nil, fmt.Errorf("apply balance delta: %w", domain.ErrVersionConflict)
	}
	return nil, fmt.Errorf("apply balance delta: %w", domain.NewInsufficientFunds(domain.Money(balance)))
}

func (q *Queries) GetLedgerTotals(ctx context.Context) (models.LedgerTotals, error) {
	var totals models.LedgerTotals
	var balance, opening int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(balance_micros), 0)::BIGINT,
			COALESCE(SUM(opening_balance_micros), 0)::BIGINT,
			COUNT(*) FILTER (WHERE balance_micros < 0)
		FROM accounts`).Scan(&totals.Accounts, &balance, &opening, &totals.NegativeBalances)
	if err != nil {
		return totals, fmt.Errorf("get ledger totals: %w", err)
	}
	totals.TotalBalance = domain.Money(balance)
	totals.TotalOpening = domain.Money(opening)
	return totals, nil
}

func scanAccountRow(row pgx.Row, op string) (*models.Account, error) {
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return account, nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var balance, opening int64
	err := row.Scan(
		&a.ID, &a.Handle, &a.DisplayName, &a.Email, &a.CredentialHash, &a.FaceVerified,
		&balance, &opening, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Balance = domain.Money(balance)
	a.OpeningBalance = domain.Money(opening)
	return &a, nil
}
