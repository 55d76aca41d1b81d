package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by Acquire when another holder owns the lock.
var ErrLockHeld = errors.New("lock held")

// Lock serializes pipeline runs. Release must be given the token returned by
// Acquire so a holder never releases a lock it lost to expiry.
type Lock interface {
	Acquire(ctx context.Context, owner int64) (token string, err error)
	Release(ctx context.Context, token string) error
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLock returns a lock shared by every process using the same key.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) Lock {
	return &redisLock{client: client, key: key, ttl: ttl}
}

func (l *redisLock) Acquire(ctx context.Context, owner int64) (string, error) {
	token := strconv.FormatInt(owner, 10)
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

func (l *redisLock) Release(ctx context.Context, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

type localLock struct {
	mu    sync.Mutex
	token string
}

// NewLocalLock returns an in-process lock for deployments without Redis.
func NewLocalLock() Lock {
	return &localLock{}
}

func (l *localLock) Acquire(_ context.Context, owner int64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token != "" {
		return "", ErrLockHeld
	}
	l.token = strconv.FormatInt(owner, 10)
	return l.token, nil
}

func (l *localLock) Release(_ context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token == token {
		l.token = ""
	}
	return nil
}
