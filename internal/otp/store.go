// Package otp issues and verifies short-lived one-time codes.
package otp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Store keeps at most one live code per key.
type Store interface {
	Put(ctx context.Context, key, code string, ttl time.Duration) error
	// Consume returns the live code for key and removes it.
	// It returns domain.ErrInvalidOTP when no live code exists.
	Consume(ctx context.Context, key string) (string, error)
}

const redisKeyPrefix = "otp:"

// RedisStore keeps codes in Redis with a native expiry.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, key, code string, ttl time.Duration) error {
	if err := s.client.Set(ctx, redisKeyPrefix+key, code, ttl).Err(); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, key string) (string, error) {
	code, err := s.client.GetDel(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrInvalidOTP
	}
	if err != nil {
		return "", fmt.Errorf("consume otp: %w", err)
	}
	return code, nil
}

type memoryEntry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is a process-local Store used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, key, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.entries[key] = memoryEntry{code: code, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	delete(s.entries, key)
	if !ok || !s.now().Before(entry.expiresAt) {
		return "", domain.ErrInvalidOTP
	}
	return entry.code, nil
}

// sweep drops expired entries; s.mu must be held.
func (s *MemoryStore) sweep() {
	now := s.now()
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
