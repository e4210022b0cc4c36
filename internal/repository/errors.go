package repository

import (
	"errors"
	"strings"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// mapPgError translates driver errors into domain error kinds.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		if strings.HasPrefix(pgErr.ConstraintName, "transactions") {
			return errors.Join(domain.ErrDuplicateTransactionID, err)
		}
		if strings.HasPrefix(pgErr.ConstraintName, "accounts") {
			return errors.Join(domain.ErrDuplicateIdentity, err)
		}
	case pgSerializationFailure, pgDeadlockDetected:
		return errors.Join(domain.ErrVersionConflict, err)
	}
	return err
}
