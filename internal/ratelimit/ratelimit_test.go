package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/donara/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLockerReportsNotConfigured(t *testing.T) {
	var locker *Locker
	_, ok, err := locker.TryLock(context.Background(), "k", time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NoError(t, locker.Release(context.Background(), "k", "token"))
}

func TestConstructorsWithoutClient(t *testing.T) {
	assert.Nil(t, NewLocker(nil))
	assert.Nil(t, NewRedisBucket(nil))

	var bucket *RedisBucket
	_, err := bucket.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLimiterWithoutBucketAllowsEverything(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, DonationCreateRate: 1, DonationCreateBurst: 1}}
	limiter := NewLimiter(cfg, nil)
	require.Nil(t, limiter)

	res, err := limiter.AllowDonationCreate(context.Background(), "uid")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.AllowInbound(context.Background(), "razorpay", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiterDisabledByConfig(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: false, DonationCreateRate: 1, DonationCreateBurst: 1}}
	assert.Nil(t, NewLimiter(cfg, NewLocalBucket()))
}

func TestLimiterDonationBudgetIsPerDonor(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, DonationCreateRate: 0.2, DonationCreateBurst: 2}}
	limiter := NewLimiter(cfg, NewLocalBucket())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.AllowDonationCreate(ctx, "uid-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := limiter.AllowDonationCreate(ctx, "uid-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, 5*time.Second)

	res, err = limiter.AllowDonationCreate(ctx, "uid-2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiterZeroInboundBudgetAllows(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, DonationCreateRate: 1, DonationCreateBurst: 1}}
	limiter := NewLimiter(cfg, NewLocalBucket())
	for i := 0; i < 5; i++ {
		res, err := limiter.AllowInbound(context.Background(), "phonepe", "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestLocalBucketRefillsAndSweeps(t *testing.T) {
	bucket := NewLocalBucket()
	now := time.Unix(1_700_000_000, 0)
	bucket.now = func() time.Time { return now }
	ctx := context.Background()

	res, err := bucket.Allow(ctx, "a", 1, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res, err = bucket.Allow(ctx, "a", 1, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	now = now.Add(time.Second)
	res, err = bucket.Allow(ctx, "a", 1, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	now = now.Add(time.Minute)
	_, err = bucket.Allow(ctx, "b", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, bucket.size())
}

func TestLocalBucketValidates(t *testing.T) {
	bucket := NewLocalBucket()
	_, err := bucket.Allow(context.Background(), "", 1, 1)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = bucket.Allow(context.Background(), "k", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidBudget)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, bucketTTL(0, 5))
	assert.Equal(t, 10*time.Second, bucketTTL(1, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 5))
	assert.Equal(t, 50*time.Second, bucketTTL(0.2, 5))
}
