package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/models"
	"github.com/jackc/pgx/v5"
)

const idempotencyColumns = `idempotency_key, request_hash, method, path, response_status,
	response_body, content_type, in_progress`

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (*models.IdempotencyKey, error) {
	row := q.db.QueryRow(ctx, `SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE idempotency_key = $1`, key)
	rec, err := scanIdempotencyKey(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get idempotency key: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	return rec, nil
}

// ReserveIdempotencyKey inserts an in-progress row; false means another request owns the key.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, key models.IdempotencyKey) (bool, error) {
	var reserved string
	err := q.db.QueryRow(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING idempotency_key`,
		key.Key, key.RequestHash, key.Method, key.Path,
	).Scan(&reserved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return true, nil
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, key models.IdempotencyKey) (*models.IdempotencyKey, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE idempotency_keys
		SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE, updated_at = NOW()
		WHERE idempotency_key = $4 AND request_hash = $5
		RETURNING `+idempotencyColumns,
		int32(key.ResponseStatus), key.ResponseBody, key.ContentType, key.Key, key.RequestHash,
	)
	rec, err := scanIdempotencyKey(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("finalize idempotency key: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}
	return rec, nil
}

func scanIdempotencyKey(row pgx.Row) (*models.IdempotencyKey, error) {
	var rec models.IdempotencyKey
	var status int32
	err := row.Scan(&rec.Key, &rec.RequestHash, &rec.Method, &rec.Path, &status,
		&rec.ResponseBody, &rec.ContentType, &rec.InProgress)
	if err != nil {
		return nil, err
	}
	rec.ResponseStatus = int(status)
	return &rec, nil
}
