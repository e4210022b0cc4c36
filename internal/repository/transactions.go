package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `transaction_id, sender_account_id, receiver_handle, receiver_name,
	amount_micros, status, memo, created_at, completed_at`

func (q *Queries) AppendTransaction(ctx context.Context, txn *models.Transaction) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txn.TransactionID, txn.SenderAccountID, txn.ReceiverHandle, txn.ReceiverName,
		txn.Amount.Micros(), txn.Status, txn.Memo, txn.CreatedAt, txn.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("append transaction: %w", mapPgError(err))
	}
	return nil
}

func (q *Queries) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	row := q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`, transactionID)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get transaction: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return txn, nil
}

func (q *Queries) ListTransactionsBySender(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Transaction, error) {
	// LIMIT NULL is no limit.
	var rowLimit *int
	if limit > 0 {
		rowLimit = &limit
	}
	rows, err := q.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE sender_account_id = $1
		ORDER BY created_at DESC, transaction_id DESC
		LIMIT $2`, accountID, rowLimit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]models.Transaction, 0, max(limit, 0))
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("list transactions: scan: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: rows: %w", err)
	}
	return txns, nil
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	var amount int64
	err := row.Scan(
		&t.TransactionID, &t.SenderAccountID, &t.ReceiverHandle, &t.ReceiverName,
		&amount, &t.Status, &t.Memo, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Amount = domain.Money(amount)
	return &t, nil
}
