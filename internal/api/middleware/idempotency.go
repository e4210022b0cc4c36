package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ayo6706/upi-wallet/internal/api/problem"
	"github.com/ayo6706/upi-wallet/internal/idempotency"
	"github.com/ayo6706/upi-wallet/internal/observability"
	"go.uber.org/zap"
)

const (
	idempotencyHeader       = "Idempotency-Key"
	replayHeader            = "X-Idempotent-Replay"
	maxIdempotencyKeyLength = 128
)

// IdempotencyMiddleware makes a mutating route safe to retry. The first request
// carrying a key runs the handler and its response is stored; later requests with
// the same key and body get that response back without touching the ledger.
// Keys are scoped to the authenticated account.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || !isMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case key == "":
				observability.IncrementIdempotencyEvent("missing_key")
				problem.Write(w, r, http.StatusBadRequest, "idempotency/missing-key", "Idempotency-Key header is required")
				return
			case len(key) > maxIdempotencyKeyLength:
				observability.IncrementIdempotencyEvent("invalid_key")
				problem.Write(w, r, http.StatusBadRequest, "idempotency/invalid-key", "Idempotency-Key must be at most 128 characters")
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				problem.Write(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			key = scopeKey(r.Context(), key)
			hash := hashRequest(r.Method, r.URL.Path, body)

			rec, err := store.Lookup(r.Context(), key, hash)
			switch {
			case err == nil:
				observability.IncrementIdempotencyEvent("replay")
				replay(w, rec)
				return
			case errors.Is(err, idempotency.ErrHashMismatch):
				observability.IncrementIdempotencyEvent("hash_mismatch")
				problem.Write(w, r, http.StatusConflict, "idempotency/key-conflict", "Idempotency-Key was already used with a different request")
				return
			case errors.Is(err, idempotency.ErrInProgress):
				waitAndReplay(w, r, store, key, hash, logger)
				return
			case !errors.Is(err, idempotency.ErrNotFound):
				observability.IncrementIdempotencyEvent("lookup_error")
				logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
			}

			reserved, err := store.Reserve(r.Context(), key, hash, r.Method, r.URL.Path)
			if err != nil {
				observability.IncrementIdempotencyEvent("reserve_error")
				logger.Error("idempotency reserve failed", zap.String("key", key), zap.Error(err))
				problem.Write(w, r, http.StatusServiceUnavailable, "idempotency/unavailable", "request could not be recorded; retry later")
				return
			}
			if !reserved {
				// Lost the race to a concurrent request with the same key.
				waitAndReplay(w, r, store, key, hash, logger)
				return
			}
			observability.IncrementIdempotencyEvent("reserved")

			recorder := &capturingWriter{ResponseWriter: w}
			returned := false
			defer func() {
				if returned {
					return
				}
				// A panicking handler never reaches finalize; settle the key as a 500.
				body, _ := json.Marshal(problem.New(r, http.StatusInternalServerError, "internal-server-error", "unexpected server error"))
				finalize(r, store, key, hash, http.StatusInternalServerError, body, problem.ContentType, logger)
			}()
			next.ServeHTTP(recorder, r)
			returned = true

			contentType := recorder.Header().Get("Content-Type")
			if contentType == "" {
				contentType = "application/json"
			}
			finalize(r, store, key, hash, recorder.statusCode(), recorder.body.Bytes(), contentType, logger)
		})
	}
}

func finalize(r *http.Request, store *idempotency.Store, key, hash string, status int, body []byte, contentType string, logger *zap.Logger) {
	// The response is already on the wire; persist it even if the client went away.
	ctx := context.WithoutCancel(r.Context())
	if _, err := store.Finalize(ctx, key, hash, status, body, contentType); err != nil {
		observability.IncrementIdempotencyEvent("finalize_error")
		logger.Warn("idempotency finalize failed", zap.String("key", key), zap.Error(err))
		return
	}
	observability.IncrementIdempotencyEvent("finalized")
}

func waitAndReplay(w http.ResponseWriter, r *http.Request, store *idempotency.Store, key, hash string, logger *zap.Logger) {
	rec, err := store.WaitForCompletion(r.Context(), key, hash)
	if err == nil {
		observability.IncrementIdempotencyEvent("replay_after_wait")
		replay(w, rec)
		return
	}
	if errors.Is(err, idempotency.ErrHashMismatch) {
		observability.IncrementIdempotencyEvent("hash_mismatch")
		problem.Write(w, r, http.StatusConflict, "idempotency/key-conflict", "Idempotency-Key was already used with a different request")
		return
	}
	observability.IncrementIdempotencyEvent("in_progress_conflict")
	logger.Warn("idempotency wait failed", zap.String("key", key), zap.Error(err))
	problem.Write(w, r, http.StatusConflict, "idempotency/in-progress", "a request with this Idempotency-Key is still being processed")
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func scopeKey(ctx context.Context, key string) string {
	if accountID := AccountIDFromContext(ctx); accountID != "" {
		return accountID + ":" + key
	}
	return key
}

func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'|'})
	h.Write([]byte(path))
	h.Write([]byte{'|'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, rec *idempotency.Record) {
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set(replayHeader, rec.ServedBy)
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

// capturingWriter tees the response so it can be stored after the handler returns.
type capturingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (cw *capturingWriter) WriteHeader(code int) {
	if cw.status == 0 {
		cw.status = code
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *capturingWriter) Write(b []byte) (int, error) {
	if cw.status == 0 {
		cw.status = http.StatusOK
	}
	cw.body.Write(b)
	return cw.ResponseWriter.Write(b)
}

func (cw *capturingWriter) statusCode() int {
	if cw.status == 0 {
		return http.StatusOK
	}
	return cw.status
}
