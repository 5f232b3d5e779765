package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// keyedMutex serializes work per key inside this process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// DistributedLocker serializes across replicas. ratelimit.Locker satisfies it.
type DistributedLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

const (
	lockRetryInterval = 25 * time.Millisecond
	lockMaxAttempts   = 40
)

// acquire takes the in-process lock and, when configured, the distributed one.
// If the distributed lock cannot be taken the caller still proceeds: the
// conditional update in the repository remains the authority.
func (s *Service) acquire(ctx context.Context, key string) func() {
	unlockLocal := s.locks.Lock(key)
	if s.locker == nil {
		return unlockLocal
	}

	lockKey := "donara:donation:" + key
	for attempt := 0; attempt < lockMaxAttempts; attempt++ {
		token, ok, err := s.locker.TryLock(ctx, lockKey, s.lockTTL)
		if err != nil {
			s.log.Warn("distributed lock unavailable", zap.String("donation_id", key), zap.Error(err))
			return unlockLocal
		}
		if ok {
			return func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
					s.log.Warn("distributed lock release failed", zap.String("donation_id", key), zap.Error(err))
				}
				unlockLocal()
			}
		}
		select {
		case <-ctx.Done():
			return unlockLocal
		case <-time.After(lockRetryInterval):
		}
	}
	s.log.Warn("distributed lock contended, relying on conditional update", zap.String("donation_id", key))
	return unlockLocal
}
