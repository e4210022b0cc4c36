package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/upi-wallet/internal/repository/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, memstore.New().Queries(), time.Hour)

	_, err := store.Lookup(ctx, "k1", "hash-a")
	require.ErrorIs(t, err, ErrNotFound)

	reserved, err := store.Reserve(ctx, "k1", "hash-a", "POST", "/v1/wallet/transfers")
	require.NoError(t, err)
	require.True(t, reserved)

	reserved, err = store.Reserve(ctx, "k1", "hash-a", "POST", "/v1/wallet/transfers")
	require.NoError(t, err)
	assert.False(t, reserved)

	_, err = store.Lookup(ctx, "k1", "hash-a")
	require.ErrorIs(t, err, ErrInProgress)

	rec, err := store.Finalize(ctx, "k1", "hash-a", 201, []byte(`{"ok":true}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)

	rec, err = store.Lookup(ctx, "k1", "hash-a")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(rec.Body))

	_, err = store.Lookup(ctx, "k1", "hash-b")
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestWaitForCompletion(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, memstore.New().Queries(), time.Hour)
	store.pollInterval = 5 * time.Millisecond

	reserved, err := store.Reserve(ctx, "k2", "hash", "POST", "/x")
	require.NoError(t, err)
	require.True(t, reserved)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = store.Finalize(context.Background(), "k2", "hash", 200, []byte("done"), "text/plain")
	}()

	rec, err := store.WaitForCompletion(ctx, "k2", "hash")
	require.NoError(t, err)
	assert.Equal(t, "done", string(rec.Body))
}

func TestWaitForCompletionHonoursContext(t *testing.T) {
	store := NewStore(nil, memstore.New().Queries(), time.Hour)
	store.pollInterval = 5 * time.Millisecond
	_, err := store.Reserve(context.Background(), "k3", "hash", "POST", "/x")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = store.WaitForCompletion(ctx, "k3", "hash")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
