package repository

import (
	"context"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier is the data access contract shared by the Postgres and in-memory stores.
// A Querier obtained inside RunInTx is the unit-of-work handle: every call made
// through it commits or rolls back together.
type Querier interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	// LockAccountsForUpdate locks the rows in the order given and returns their
	// current state. Callers pass ids in a fixed global order.
	LockAccountsForUpdate(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error)
	// ApplyBalanceDelta adds delta to one balance when the stored version matches.
	ApplyBalanceDelta(ctx context.Context, id uuid.UUID, delta domain.Money, expectedVersion int64) (*models.Account, error)
	GetLedgerTotals(ctx context.Context) (models.LedgerTotals, error)

	AppendTransaction(ctx context.Context, txn *models.Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error)
	// ListTransactionsBySender returns newest first. A limit <= 0 returns every row.
	ListTransactionsBySender(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Transaction, error)

	InsertAuditLog(ctx context.Context, entry models.AuditLog) error

	GetIdempotencyKey(ctx context.Context, key string) (*models.IdempotencyKey, error)
	ReserveIdempotencyKey(ctx context.Context, key models.IdempotencyKey) (bool, error)
	FinalizeIdempotencyKey(ctx context.Context, key models.IdempotencyKey) (*models.IdempotencyKey, error)
}
