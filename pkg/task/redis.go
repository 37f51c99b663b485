package task

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStatusTTL is how long a status survives its last update in Redis.
const DefaultStatusTTL = 24 * time.Hour

// RedisStore keeps statuses in Redis so several server instances can answer
// status polls.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore stores statuses under prefix+id. A ttl <= 0 uses
// DefaultStatusTTL.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (Status, bool, error) {
	data, err := s.rdb.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Status{}, false, nil
	}
	if err != nil {
		return Status{}, false, err
	}
	st, err := decode(data)
	if err != nil {
		return Status{}, false, err
	}
	return st, true, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, st Status) error {
	data, err := encode(st)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.prefix+st.ID, data, s.ttl).Err()
}

var _ Store = (*RedisStore)(nil)
