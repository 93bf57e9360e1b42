package redisx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)

func expectStatusWrite(mock redismock.ClientMock, key, value string, rank int) *redismock.ExpectedCmd {
	return mock.ExpectEvalSha(SetStatusScript.Hash(), []string{key}, value, rank, time.Minute.Milliseconds())
}

func TestStatusCacheHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewStatusCache(db, time.Minute, nil)

	mock.ExpectGet("order_status:7").SetVal(`{"status":"CONFIRMED","updated_at":"2024-03-01T09:30:00Z"}`)

	e, hit, err := c.Get(context.Background(), 7, func(context.Context) (StatusEntry, error) {
		t.Fatal("loader must not run on a hit")
		return StatusEntry{}, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "CONFIRMED", e.Status)
	assert.True(t, fixedNow.Equal(e.UpdatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusCacheMissFillsFromLoader(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewStatusCache(db, time.Minute, nil)
	c.now = func() time.Time { return fixedNow }

	mock.ExpectGet("order_status:7").RedisNil()
	expectStatusWrite(mock, "order_status:7", `{"status":"CREATED","rank":1,"updated_at":"2024-03-01T09:30:00Z"}`, 1).SetVal(int64(1))

	calls := 0
	e, hit, err := c.Get(context.Background(), 7, func(context.Context) (StatusEntry, error) {
		calls++
		return StatusEntry{Status: "CREATED", Rank: 1}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "CREATED", e.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusCacheRedisDownFallsBackToLoader(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewStatusCache(db, time.Minute, nil)
	c.now = func() time.Time { return fixedNow }

	mock.ExpectGet("order_status:7").SetErr(errors.New("connection refused"))
	expectStatusWrite(mock, "order_status:7", `{"status":"CANCELED","rank":3,"updated_at":"2024-03-01T09:30:00Z"}`, 3).
		SetErr(errors.New("connection refused"))

	e, hit, err := c.Get(context.Background(), 7, func(context.Context) (StatusEntry, error) {
		return StatusEntry{Status: "CANCELED", Rank: 3}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "CANCELED", e.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusCacheLoaderError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewStatusCache(db, time.Minute, nil)
	boom := errors.New("not found")

	mock.ExpectGet("order_status:8").RedisNil()

	_, _, err := c.Get(context.Background(), 8, func(context.Context) (StatusEntry, error) {
		return StatusEntry{}, boom
	})
	require.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusCacheSetKeepsLaterStatus(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewStatusCache(db, time.Minute, nil)

	confirmed := StatusEntry{Status: "CONFIRMED", Rank: 2, UpdatedAt: fixedNow.Add(time.Second)}
	created := StatusEntry{Status: "CREATED", Rank: 1, UpdatedAt: fixedNow}

	expectStatusWrite(mock, "order_status:7", `{"status":"CONFIRMED","rank":2,"updated_at":"2024-03-01T09:30:01Z"}`, 2).SetVal(int64(1))
	// the script sees rank 2 stored and refuses the older entry
	expectStatusWrite(mock, "order_status:7", `{"status":"CREATED","rank":1,"updated_at":"2024-03-01T09:30:00Z"}`, 1).SetVal(int64(0))

	applied, err := c.Set(context.Background(), 7, confirmed)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = c.Set(context.Background(), 7, created)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusCacheInvalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewStatusCache(db, 0, nil)

	mock.ExpectDel("order_status:9").SetVal(1)
	require.NoError(t, c.Invalidate(context.Background(), 9))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkOnce(t *testing.T) {
	db, mock := redismock.NewClientMock()
	key := DedupKey("projector", "evt-1")

	mock.ExpectSetNX(key, "1", TTLDedup).SetVal(true)
	mock.ExpectSetNX(key, "1", TTLDedup).SetVal(false)

	first, err := MarkOnce(context.Background(), db, key, TTLDedup)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = MarkOnce(context.Background(), db, key, TTLDedup)
	require.NoError(t, err)
	assert.False(t, first)
	assert.NoError(t, mock.ExpectationsWereMet())
}
