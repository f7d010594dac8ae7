// README: Snapshot caches for offline display of the job list.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"wecare/internal/modules/ride"
	"wecare/internal/types"
)

func SnapshotKey(driverID types.ID) string {
	return "wecare:driver:" + string(driverID) + ":rides"
}

// RedisCache stores the snapshot as one JSON string, so a read never sees a
// partial write.
type RedisCache struct {
	rdb redis.Cmdable
	key string
}

func NewRedisCache(rdb redis.Cmdable, key string) *RedisCache {
	return &RedisCache{rdb: rdb, key: key}
}

func (c *RedisCache) Load(ctx context.Context) (Snapshot, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("jobs.RedisCache.Load: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, false, fmt.Errorf("jobs.RedisCache.Load decode: %w", err)
	}
	return s, true, nil
}

func (c *RedisCache) Save(ctx context.Context, s Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("jobs.RedisCache.Save encode: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key, b, 0).Err(); err != nil {
		return fmt.Errorf("jobs.RedisCache.Save: %w", err)
	}
	return nil
}

type MemoryCache struct {
	mu   sync.Mutex
	snap *Snapshot
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Load(context.Context) (Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return Snapshot{}, false, nil
	}
	return *c.snap, true, nil
}

func (c *MemoryCache) Save(_ context.Context, s Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.Rides = append([]ride.Ride(nil), s.Rides...)
	c.snap = &s
	return nil
}
