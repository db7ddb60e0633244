package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/saasfoundry/tenantops/internal/config"
)

const (
	keyWebhookProvider = "webhook:ingest:provider:%s"
	keyWebhookSource   = "webhook:ingest:source:%s"
)

// WebhookLimiter throttles the public webhook endpoint per provider
// and per source address. A nil limiter allows everything; the
// endpoint stays usable without redis.
type WebhookLimiter struct {
	bucket *TokenBucket

	providerRate  float64
	providerBurst int
	sourceRate    float64
	sourceBurst   int
}

func NewWebhookLimiter(cfg config.Config) *WebhookLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})

	return &WebhookLimiter{
		bucket:        NewTokenBucket(client),
		providerRate:  cfg.WebhookRateLimit,
		providerBurst: cfg.WebhookBurst,
		sourceRate:    cfg.WebhookRateLimit,
		sourceBurst:   cfg.WebhookBurst,
	}
}

// Allow checks both buckets; the request must pass each.
func (l *WebhookLimiter) Allow(ctx context.Context, provider, source string) (*RateLimitResult, error) {
	if l == nil || l.bucket == nil {
		return &RateLimitResult{Allowed: true}, nil
	}

	result, err := l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookProvider, provider), l.providerRate, l.providerBurst)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		return result, nil
	}

	if source == "" {
		return result, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookSource, source), l.sourceRate, l.sourceBurst)
}

// RetryAfterSeconds rounds up for the Retry-After response header.
func RetryAfterSeconds(d time.Duration) int {
	seconds := int(d / time.Second)
	if d%time.Second > 0 {
		seconds++
	}
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
