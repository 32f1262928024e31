package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease guards a batch run against concurrent runs. Acquire reports ok=false
// when another holder has it.
type Lease interface {
	Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// releaseScript deletes the lease only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0`)

// RedisLease is a single-key lock with expiry, shared by every process that
// points at the same Redis.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	if key == "" {
		key = "claims:indexer:lease"
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisLease{client: client, key: key, ttl: ttl}
}

// NewRedisLeaseFromURL parses a redis:// or rediss:// URL.
func NewRedisLeaseFromURL(rawURL, key string, ttl time.Duration) (*RedisLease, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisLease(redis.NewClient(opts), key, ttl), nil
}

func (l *RedisLease) Acquire(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lease %s: %w", l.key, err)
		}
		return nil
	}
	return release, true, nil
}

func (l *RedisLease) Close() error {
	return l.client.Close()
}

// LocalLease only excludes runs within this process.
type LocalLease struct {
	mu sync.Mutex
}

func (l *LocalLease) Acquire(ctx context.Context) (func(context.Context) error, bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, true, nil
}
