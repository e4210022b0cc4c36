package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/upi-wallet/internal/models"
)

func (q *Queries) InsertAuditLog(ctx context.Context, entry models.AuditLog) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.EntityType, entry.EntityID, entry.ActorID, entry.Action,
		nullableText(entry.PrevState), nullableText(entry.NextState), entry.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func nullableText(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
