package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// StatusEntry is the cached view of an order's status. Rank is the lifecycle position of
// Status; an entry never replaces one with a higher rank.
type StatusEntry struct {
	Status    string    `json:"status"`
	Rank      int       `json:"rank"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetStatusScript writes ARGV[1] with a PX of ARGV[3] unless the stored entry has a rank
// above ARGV[2]. Returns 1 when written.
var SetStatusScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, doc = pcall(cjson.decode, cur)
  if ok and type(doc) == 'table' and tonumber(doc['rank']) and tonumber(doc['rank']) > tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// StatusLoader reads the authoritative status, normally from Postgres.
type StatusLoader func(ctx context.Context) (StatusEntry, error)

// StatusCache is a cache-aside view of order status. The database stays the source of
// truth; Redis failures degrade to a database read.
type StatusCache struct {
	rdb   redis.Cmdable
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group
	now   func() time.Time
}

func NewStatusCache(rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = TTLStatusCache
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StatusCache{rdb: rdb, ttl: ttl, log: log, now: time.Now}
}

func (c *StatusCache) lookup(ctx context.Context, key string) (StatusEntry, bool) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return StatusEntry{}, false
	}
	if err != nil {
		c.log.Warn("status cache read failed", zap.String("key", key), zap.Error(err))
		return StatusEntry{}, false
	}
	var e StatusEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.Status == "" {
		return StatusEntry{}, false
	}
	return e, true
}

// Get returns the cached entry, or calls load once for all concurrent misses on the same
// order and caches its result. hit reports whether Redis answered.
func (c *StatusCache) Get(ctx context.Context, orderID int64, load StatusLoader) (entry StatusEntry, hit bool, err error) {
	key := OrderStatusKey(orderID)
	if e, ok := c.lookup(ctx, key); ok {
		return e, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		fresh, err := load(ctx)
		if err != nil {
			return StatusEntry{}, err
		}
		if fresh.UpdatedAt.IsZero() {
			fresh.UpdatedAt = c.now().UTC()
		}
		// a status written after load started wins over this fill
		if _, err := c.Set(ctx, orderID, fresh); err != nil {
			c.log.Warn("status cache fill failed", zap.String("key", key), zap.Error(err))
		}
		return fresh, nil
	})
	if err != nil {
		return StatusEntry{}, false, err
	}
	return v.(StatusEntry), false, nil
}

// Set stores e unless the cache already holds a later status for the order.
// applied is false when e was older and left out.
func (c *StatusCache) Set(ctx context.Context, orderID int64, e StatusEntry) (applied bool, err error) {
	b, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	n, err := SetStatusScript.Run(ctx, c.rdb, []string{OrderStatusKey(orderID)}, string(b), e.Rank, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Invalidate drops the entry so the next read goes to the database. Used when a Set fails.
func (c *StatusCache) Invalidate(ctx context.Context, orderID int64) error {
	return c.rdb.Del(ctx, OrderStatusKey(orderID)).Err()
}
