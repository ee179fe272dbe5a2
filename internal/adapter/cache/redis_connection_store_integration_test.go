//go:build integration

package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-connect/internal/domain/connection"
)

func setupRedis(t *testing.T) *RedisConnectionStore {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Fatal("REDIS_ADDR must be set for integration tests")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	keys, err := client.Keys(ctx, "connection:{*.it.example}:*").Result()
	require.NoError(t, err)
	if len(keys) > 0 {
		require.NoError(t, client.Del(ctx, keys...).Err())
	}
	t.Cleanup(func() { _ = client.Close() })

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	return NewRedisConnectionStore(client, node)
}

func TestRedisConnectionStore_Lifecycle_Integration(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "Acme.it.example", "n1")
	require.NoError(t, err)
	require.Equal(t, "acme.it.example", rec.TenantID)
	require.True(t, rec.Active)

	_, err = store.Create(ctx, "acme.it.example", "n1")
	require.ErrorIs(t, err, connection.ErrStorage)

	other, err := store.FindPending(ctx, "other.it.example", "n1")
	require.NoError(t, err)
	require.Nil(t, other)

	found, err := store.FindPending(ctx, "acme.it.example", "n1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, rec.ID, found.ID)

	require.NoError(t, store.Complete(ctx, found, "T"))
	require.Equal(t, "T", found.AccessToken)
	require.False(t, found.Active)

	require.ErrorIs(t, store.Complete(ctx, rec, "again"), connection.ErrAlreadyCompleted)

	latest, err := store.FindLatest(ctx, "acme.it.example", "n1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, "T", latest.AccessToken)
}

func TestRedisConnectionStore_CompleteRace_Integration(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "race.it.example", "n1")
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			copyRec := *rec
			err := store.Complete(ctx, &copyRec, fmt.Sprintf("tok-%d", i))
			if err != nil && !errors.Is(err, connection.ErrAlreadyCompleted) {
				t.Errorf("unexpected error: %v", err)
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, successes)
}

func TestRedisConnectionStore_SupersedeAndAbandon_Integration(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()

	first, err := store.Create(ctx, "shop.it.example", "n1")
	require.NoError(t, err)
	second, err := store.Create(ctx, "shop.it.example", "n2")
	require.NoError(t, err)

	require.NoError(t, store.Complete(ctx, second, "tok"))
	require.ErrorIs(t, store.Complete(ctx, first, "late"), connection.ErrNotFound)

	third, err := store.Create(ctx, "shop.it.example", "n3")
	require.NoError(t, err)
	require.NoError(t, store.Abandon(ctx, third))
	require.False(t, third.Active)

	pending, err := store.FindPending(ctx, "shop.it.example", "n3")
	require.NoError(t, err)
	require.Nil(t, pending)

	require.NoError(t, store.Abandon(ctx, second))
}
