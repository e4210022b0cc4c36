package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/upi-wallet/internal/models"
	"github.com/ayo6706/upi-wallet/internal/repository"
	"github.com/google/uuid"
)

// AuditService writes immutable audit trail entries.
type AuditService struct {
	store LedgerStore
}

func NewAuditService(store LedgerStore) *AuditService {
	return &AuditService{store: store}
}

// Write stores a single immutable audit record. A nil q writes outside any unit of work.
func (s *AuditService) Write(ctx context.Context, q repository.Querier, entityType string, entityID uuid.UUID, actorID *uuid.UUID, action, prevState, nextState string, metadata []byte) error {
	if q == nil {
		q = s.store.Queries()
	}
	if err := q.InsertAuditLog(ctx, models.AuditLog{
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Action:     action,
		PrevState:  prevState,
		NextState:  nextState,
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
