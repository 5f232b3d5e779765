package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The bucket state lives in one hash. Tokens are stored in thousandths so the
// script only returns integers; Redis truncates Lua floats on the way out.
// Refill uses the Redis clock so every replica sees the same bucket.
const redisBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2]) * 1000
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "milli", "ts")
local milli = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now

local elapsed = math.max(0, now - ts)
milli = math.min(burst, milli + elapsed * rate)

local allowed = 0
local wait = 0
if milli >= 1000 then
  allowed = 1
  milli = milli - 1000
else
  wait = math.ceil((1000 - milli) / rate)
end

redis.call("HSET", KEYS[1], "milli", math.floor(milli), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, math.floor(milli), wait}
`

// RedisBucket shares bucket state across replicas.
type RedisBucket struct {
	client redis.UniversalClient
	script *redis.Script
}

func NewRedisBucket(client redis.UniversalClient) *RedisBucket {
	if client == nil {
		return nil
	}
	return &RedisBucket{client: client, script: redis.NewScript(redisBucketScript)}
}

func (b *RedisBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Decision, error) {
	if b == nil || b.client == nil {
		return Decision{}, ErrNotConfigured
	}
	if err := validate(key, rate, burst); err != nil {
		return Decision{}, err
	}

	// rate is passed in tokens per second, which is thousandths per millisecond.
	out, err := b.script.Run(ctx, b.client, []string{key},
		rate, burst, bucketTTL(rate, burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(out) != 3 {
		return Decision{}, fmt.Errorf("rate limit %s: unexpected reply %v", key, out)
	}
	return Decision{
		Allowed:    out[0] == 1,
		Limit:      burst,
		Remaining:  int(out[1] / 1000),
		RetryAfter: time.Duration(out[2]) * time.Millisecond,
	}, nil
}
