package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var ErrNotConfigured = errors.New("redis client not configured")

// Deletes the key only while it still holds the caller's token. A lock that
// expired and was taken by another replica stays with its new holder.
const unlockScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`

// Locker hands out short single-key locks on Redis. The donation ledger uses
// it to serialize transitions across replicas and the scheduler uses it to
// elect one runner per tick.
type Locker struct {
	client redis.UniversalClient
	unlock *redis.Script
}

func NewLocker(client redis.UniversalClient) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, unlock: redis.NewScript(unlockScript)}
}

// TryLock returns the holder token and true when key was free.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	switch {
	case l == nil || l.client == nil:
		return "", false, ErrNotConfigured
	case key == "":
		return "", false, ErrEmptyKey
	case ttl <= 0:
		return "", false, fmt.Errorf("lock %s: ttl must be positive", key)
	}

	token := uuid.NewString()
	err := l.client.SetArgs(ctx, key, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lock %s: %w", key, err)
	}
	return token, true, nil
}

// Release is a no-op for an empty token or an unconfigured locker.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	if err := l.unlock.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("unlock %s: %w", key, err)
	}
	return nil
}
