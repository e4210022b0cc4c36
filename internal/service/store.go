package service

import (
	"context"

	"github.com/ayo6706/upi-wallet/internal/repository"
)

// LedgerStore defines the minimal data access contract required by services.
// The Querier handed to fn is the unit of work: everything written through it
// commits or rolls back together.
type LedgerStore interface {
	Queries() repository.Querier
	RunInTx(ctx context.Context, fn func(q repository.Querier) error) error
}
