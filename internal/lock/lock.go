// Package lock provides advisory locks around scheduled jobs.
//
// The scheduler assumes a single active instance. Local is the no-op lock for that
// deployment; Redis serializes runs across horizontally scaled instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when another holder owns the lock
var ErrNotAcquired = errors.New("lock already held by another process")

// Lock is a held lock
type Lock interface {
	Release(ctx context.Context) error
}

// Locker acquires named locks with a time-to-live
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, error)
}

// Local always succeeds. It is correct only when one scheduler instance runs.
type Local struct{}

func (Local) Acquire(context.Context, string, time.Duration) (Lock, error) {
	return localLock{}, nil
}

type localLock struct{}

func (localLock) Release(context.Context) error { return nil }

// Redis implements Locker with SET NX and a compare-and-delete release
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a redis-backed locker
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "lock:"}
}

func (r *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
	key := r.prefix + name
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &redisLock{client: r.client, key: key, token: token}, nil
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

type redisLock struct {
	client *redis.Client
	key    string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	n, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("lock %s expired before release", l.key)
	}
	return nil
}
