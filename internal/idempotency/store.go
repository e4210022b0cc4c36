// Package idempotency stores the first response to each Idempotency-Key so a
// retried transfer is answered from the record instead of moving money twice.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key reused with a different request")
	ErrInProgress   = errors.New("idempotency key in progress")
)

const (
	servedByCache = "redis"
	servedByStore = "store"
	// maxWait bounds how long a duplicate request waits for the original to finish.
	maxWait = 10 * time.Second
)

// KeyStore is the durable side of the replay store.
type KeyStore interface {
	GetIdempotencyKey(ctx context.Context, key string) (*models.IdempotencyKey, error)
	ReserveIdempotencyKey(ctx context.Context, key models.IdempotencyKey) (bool, error)
	FinalizeIdempotencyKey(ctx context.Context, key models.IdempotencyKey) (*models.IdempotencyKey, error)
}

// Record is a completed response that can be replayed.
type Record struct {
	Key         string `json:"key"`
	RequestHash string `json:"hash"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
	ServedBy    string `json:"-"`
}

// Store answers repeats from a Redis read-through cache when one is configured
// and from the durable key store otherwise. Only completed records are cached.
type Store struct {
	keys         KeyStore
	cache        *responseCache
	pollInterval time.Duration
}

// NewStore builds a Store. A nil redis client disables the cache.
func NewStore(redis redis.Cmdable, keys KeyStore, ttl time.Duration) *Store {
	s := &Store{keys: keys, pollInterval: 50 * time.Millisecond}
	if redis != nil {
		s.cache = &responseCache{client: redis, ttl: ttl}
	}
	return s
}

// Lookup returns the stored response for key. It fails with ErrHashMismatch when
// the key was first used for a different request and ErrInProgress while the
// original request is still running.
func (s *Store) Lookup(ctx context.Context, key, requestHash string) (*Record, error) {
	if rec, ok := s.cache.get(ctx, key); ok {
		if rec.RequestHash != requestHash {
			return nil, ErrHashMismatch
		}
		rec.ServedBy = servedByCache
		return rec, nil
	}

	row, err := s.keys.GetIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	switch {
	case row.RequestHash != requestHash:
		return nil, ErrHashMismatch
	case row.InProgress:
		return nil, ErrInProgress
	}

	rec := recordFrom(row)
	s.cache.put(ctx, rec)
	return rec, nil
}

// Reserve claims key for the calling request. It reports false when another
// request already holds it.
func (s *Store) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	ok, err := s.keys.ReserveIdempotencyKey(ctx, models.IdempotencyKey{
		Key:         key,
		RequestHash: requestHash,
		Method:      method,
		Path:        path,
	})
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Finalize stores the response produced for a reserved key.
func (s *Store) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	row, err := s.keys.FinalizeIdempotencyKey(ctx, models.IdempotencyKey{
		Key:            key,
		RequestHash:    requestHash,
		ResponseStatus: status,
		ResponseBody:   body,
		ContentType:    contentType,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}

	rec := recordFrom(row)
	s.cache.put(ctx, rec)
	return rec, nil
}

// WaitForCompletion polls until the request holding key finishes, ctx ends or
// maxWait elapses.
func (s *Store) WaitForCompletion(ctx context.Context, key, requestHash string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		rec, err := s.Lookup(ctx, key, requestHash)
		if !errors.Is(err, ErrInProgress) {
			return rec, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func recordFrom(row *models.IdempotencyKey) *Record {
	return &Record{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		Status:      row.ResponseStatus,
		Body:        row.ResponseBody,
		ContentType: row.ContentType,
		ServedBy:    servedByStore,
	}
}

// responseCache is a best-effort Redis copy of completed records. A nil cache
// misses on every read and ignores writes.
type responseCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func (c *responseCache) get(ctx context.Context, key string) (*Record, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("idempotency cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		zap.L().Warn("idempotency cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &rec, true
}

func (c *responseCache) put(ctx context.Context, rec *Record) {
	if c == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		zap.L().Warn("idempotency cache encode failed", zap.String("key", rec.Key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, cacheKey(rec.Key), payload, c.ttl).Err(); err != nil {
		zap.L().Warn("idempotency cache write failed", zap.String("key", rec.Key), zap.Error(err))
	}
}

func cacheKey(key string) string {
	return "idempotency:" + key
}
