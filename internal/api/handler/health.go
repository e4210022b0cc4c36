package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const readinessTimeout = time.Second

// Pinger reports whether the ledger store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	ledger Pinger
	redis  redis.Cmdable
}

// NewHealthHandler builds the probe handler. redis may be nil when the cache is disabled.
func NewHealthHandler(ledger Pinger, redis redis.Cmdable) *HealthHandler {
	return &HealthHandler{ledger: ledger, redis: redis}
}

// Live reports that the process is serving.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "live"})
}

// Ready reports per-dependency status. Only the ledger store gates readiness;
// Redis state is reported but does not fail the probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := map[string]string{"ledger": "ok", "redis": "disabled"}
	if err := h.ledger.Ping(ctx); err != nil {
		zap.L().Warn("readiness: ledger store unreachable", zap.Error(err))
		RespondError(w, r, http.StatusServiceUnavailable, "health/ledger-unavailable", "ledger store unavailable")
		return
	}
	if h.redis != nil {
		checks["redis"] = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			zap.L().Warn("readiness: redis unreachable", zap.Error(err))
			checks["redis"] = "unavailable"
		}
	}

	RespondJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
}
