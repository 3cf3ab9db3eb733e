package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DefaultLockKey is the Redis key holding the sweep lease.
const DefaultLockKey = "reporting:dispatcher:lease"

// Lease keeps two dispatcher replicas from sweeping at the same time.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLease struct {
	client *redis.Client
	key    string
	token  string
}

func NewRedisLease(client *redis.Client, key string) *RedisLease {
	if key == "" {
		key = DefaultLockKey
	}
	return &RedisLease{client: client, key: key, token: uuid.NewString()}
}

func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}

// localLease always succeeds; used when no Redis is configured.
type localLease struct{}

func (localLease) Acquire(context.Context, time.Duration) (bool, error) { return true, nil }
func (localLease) Release(context.Context) error                        { return nil }
