package redisx

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) *StatusCache {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := New(addr)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return NewStatusCache(rdb, time.Minute, nil)
}

func TestIntegrationStatusWriteKeepsHigherRank(t *testing.T) {
	c := testRedis(t)
	ctx := context.Background()
	id := time.Now().UnixNano()
	t.Cleanup(func() { _ = c.Invalidate(ctx, id) })

	applied, err := c.Set(ctx, id, StatusEntry{Status: "CONFIRMED", Rank: 2, UpdatedAt: fixedNow.Add(time.Second)})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = c.Set(ctx, id, StatusEntry{Status: "CREATED", Rank: 1, UpdatedAt: fixedNow})
	require.NoError(t, err)
	assert.False(t, applied)

	e, hit, err := c.Get(ctx, id, func(context.Context) (StatusEntry, error) {
		t.Fatal("entry must be cached")
		return StatusEntry{}, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "CONFIRMED", e.Status)

	applied, err = c.Set(ctx, id, StatusEntry{Status: "CANCELED", Rank: 3, UpdatedAt: fixedNow.Add(2 * time.Second)})
	require.NoError(t, err)
	assert.True(t, applied)

	ttl, err := c.rdb.PTTL(ctx, OrderStatusKey(id)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
}
