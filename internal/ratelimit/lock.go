package ratelimit

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker holds a value-guarded lock: release only succeeds with the token
// the lock was taken with, so a later holder is never released by an
// earlier one.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

// TryLock takes the lock at key with the caller-supplied token. The token
// is what Release must present, so it has to be reproducible by whoever
// will release the lock.
func (l *Locker) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return false, errors.New("lock client not configured")
	}
	if key == "" || token == "" {
		return false, errors.New("lock key and token are required")
	}
	if ttl <= 0 {
		return false, errors.New("lock ttl must be positive")
	}
	return l.client.SetNX(ctx, key, token, ttl).Result()
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}
