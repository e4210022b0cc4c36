package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/models"
)

var transactionTransitions = map[string]map[string]struct{}{
	domain.TxStatusPending: {
		domain.TxStatusSuccess: {},
		domain.TxStatusFailed:  {},
	},
	domain.TxStatusSuccess: {},
	domain.TxStatusFailed:  {},
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func canTransition(current, next string) bool {
	current = normalizeState(current)
	next = normalizeState(next)
	nextStates, ok := transactionTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// transitionTransaction moves txn to next, stamping CompletedAt on a terminal state.
func transitionTransaction(txn *models.Transaction, next string, at time.Time) error {
	if normalizeState(txn.Status) == normalizeState(next) {
		return nil
	}
	if !canTransition(txn.Status, next) {
		return fmt.Errorf("invalid transaction state transition: %s -> %s", txn.Status, next)
	}
	txn.Status = normalizeState(next)
	if len(transactionTransitions[txn.Status]) == 0 {
		completed := at
		txn.CompletedAt = &completed
	}
	return nil
}
