package service

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

func normalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// newTransactionID returns prefix followed by 32 upper-case hex characters.
func newTransactionID(prefix string) string {
	id := uuid.New()
	return prefix + strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}

// lockOrder returns the distinct ids sorted so every caller locks rows in the same order.
func lockOrder(ids ...uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	ordered := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].String() < ordered[j].String()
	})
	return ordered
}
