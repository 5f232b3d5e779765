package ratelimit

import (
	"context"
	"strings"

	"github.com/smallbiznis/donara/internal/config"
)

const keyPrefix = "donara:ratelimit:"

type budget struct {
	rate  float64
	burst int
}

func (b budget) valid() bool {
	return b.rate > 0 && b.burst > 0
}

// Limiter applies the configured request budgets. A nil Limiter allows
// everything, and so does a budget configured as zero.
type Limiter struct {
	bucket   Bucket
	donation budget
	inbound  budget
}

func NewLimiter(cfg config.Config, bucket Bucket) *Limiter {
	limits := cfg.RateLimit
	if !limits.Enabled || bucket == nil {
		return nil
	}
	return &Limiter{
		bucket:   bucket,
		donation: budget{rate: limits.DonationCreateRate, burst: limits.DonationCreateBurst},
		inbound:  budget{rate: limits.InboundRate, burst: limits.InboundBurst},
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowDonationCreate limits how often one donor may start donations.
func (l *Limiter) AllowDonationCreate(ctx context.Context, donorID string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.take(ctx, l.donation, "donation:create", donorID)
}

// AllowInbound meters provider traffic per provider and client address.
func (l *Limiter) AllowInbound(ctx context.Context, provider, clientIP string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.take(ctx, l.inbound, "inbound", provider, clientIP)
}

func (l *Limiter) take(ctx context.Context, b budget, scope string, parts ...string) (Decision, error) {
	if !b.valid() {
		return Decision{Allowed: true}, nil
	}
	key := keyPrefix + scope
	for _, p := range parts {
		key += ":" + strings.TrimSpace(p)
	}
	return l.bucket.Allow(ctx, key, b.rate, b.burst)
}
