// README: Durable backing stores for the mutation queue.
package syncq

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"wecare/internal/types"
)

// Store persists the whole queue. Save replaces the stored queue atomically.
type Store interface {
	Load(ctx context.Context) ([]QueuedMutation, error)
	Save(ctx context.Context, items []QueuedMutation) error
}

// QueueKey is the Redis list holding one driver's queue.
func QueueKey(driverID types.ID) string {
	return "wecare:driver:" + string(driverID) + ":queue"
}

type RedisStore struct {
	rdb redis.Cmdable
	key string
}

func NewRedisStore(rdb redis.Cmdable, key string) *RedisStore {
	return &RedisStore{rdb: rdb, key: key}
}

func (s *RedisStore) Load(ctx context.Context) ([]QueuedMutation, error) {
	raw, err := s.rdb.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("syncq.RedisStore.Load: %w", err)
	}
	items := make([]QueuedMutation, 0, len(raw))
	for _, v := range raw {
		var m QueuedMutation
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("syncq.RedisStore.Load decode: %w", err)
		}
		items = append(items, m)
	}
	return items, nil
}

func (s *RedisStore) Save(ctx context.Context, items []QueuedMutation) error {
	values := make([]interface{}, 0, len(items))
	for _, m := range items {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("syncq.RedisStore.Save encode: %w", err)
		}
		values = append(values, b)
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.RPush(ctx, s.key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("syncq.RedisStore.Save: %w", err)
	}
	return nil
}

// MemoryStore keeps the queue in process memory. It does not survive a
// restart and is meant for tests and one-shot CLI runs.
type MemoryStore struct {
	mu    sync.Mutex
	items []QueuedMutation
}

func NewMemoryStore(items ...QueuedMutation) *MemoryStore {
	return &MemoryStore{items: append([]QueuedMutation(nil), items...)}
}

func (s *MemoryStore) Load(context.Context) ([]QueuedMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QueuedMutation(nil), s.items...), nil
}

func (s *MemoryStore) Save(_ context.Context, items []QueuedMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]QueuedMutation(nil), items...)
	return nil
}
