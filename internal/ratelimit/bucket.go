package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrEmptyKey      = errors.New("rate limit key is empty")
	ErrInvalidBudget = errors.New("rate limit rate and burst must be positive")
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Bucket takes one token from the bucket named key, refilling at rate tokens
// per second up to burst.
type Bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (Decision, error)
}

func validate(key string, r float64, burst int) error {
	if key == "" {
		return ErrEmptyKey
	}
	if r <= 0 || burst <= 0 {
		return ErrInvalidBudget
	}
	return nil
}

// bucketTTL is how long an idle bucket is worth keeping: twice the time it
// takes to refill from empty, never under a second.
func bucketTTL(r float64, burst int) time.Duration {
	if r <= 0 || burst <= 0 {
		return time.Second
	}
	d := time.Duration(float64(burst) / r * 2 * float64(time.Second))
	if d < time.Second {
		return time.Second
	}
	return d.Round(time.Second)
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalBucket keeps buckets in process memory. Each replica enforces its own
// budget, so it is only used when Redis is not configured.
type LocalBucket struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	now     func() time.Time
	swept   time.Time
}

func NewLocalBucket() *LocalBucket {
	return &LocalBucket{entries: make(map[string]*localEntry), now: time.Now}
}

func (b *LocalBucket) Allow(_ context.Context, key string, r float64, burst int) (Decision, error) {
	if err := validate(key, r, burst); err != nil {
		return Decision{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	ttl := bucketTTL(r, burst)
	b.sweep(now, ttl)

	entry, ok := b.entries[key]
	if !ok || entry.limiter.Limit() != rate.Limit(r) || entry.limiter.Burst() != burst {
		entry = &localEntry{limiter: rate.NewLimiter(rate.Limit(r), burst)}
		b.entries[key] = entry
	}
	entry.lastSeen = now

	d := Decision{Limit: burst}
	reservation := entry.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		d.RetryAfter = delay
	} else {
		d.Allowed = true
	}
	if tokens := entry.limiter.TokensAt(now); tokens > 0 {
		d.Remaining = int(tokens)
	}
	return d, nil
}

// sweep drops idle buckets at most once per ttl.
func (b *LocalBucket) sweep(now time.Time, ttl time.Duration) {
	if now.Sub(b.swept) < ttl {
		return
	}
	b.swept = now
	for key, entry := range b.entries {
		if now.Sub(entry.lastSeen) > ttl {
			delete(b.entries, key)
		}
	}
}

func (b *LocalBucket) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
