package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tiketti_back/cache"
)

const cacheOpTimeout = 300 * time.Millisecond

// ResponseCache memoizes completions in Redis so identical prompts (for
// example repeated analyses of an unchanged ticket) skip the provider call.
// It wraps another Completer and is transparent when disabled or when Redis
// is unreachable.
type ResponseCache struct {
	inner  Completer
	client *redis.Client
	ttl    time.Duration
}

// NewResponseCacheFromEnv wraps inner with a Redis-backed completion cache
// when AI_CACHE_ENABLED=true. AI_CACHE_TTL is in seconds (default 3600).
// When disabled or Redis is unavailable, inner is returned unwrapped.
func NewResponseCacheFromEnv(inner Completer) Completer {
	if inner == nil {
		return nil
	}
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("AI_CACHE_ENABLED")), "true") {
		return inner
	}

	client, err := cache.GetRedisClient()
	if err != nil || client == nil {
		log.Printf("llm: completion cache requested but redis unavailable: %v", err)
		return inner
	}

	ttl := time.Hour
	if raw := strings.TrimSpace(os.Getenv("AI_CACHE_TTL")); raw != "" {
		if parsed, convErr := strconv.Atoi(raw); convErr == nil && parsed > 0 {
			ttl = time.Duration(parsed) * time.Second
		}
	}

	return &ResponseCache{inner: inner, client: client, ttl: ttl}
}

func (r *ResponseCache) key(prompt string, tier Tier) string {
	sum := sha256.Sum256([]byte(string(tier) + "\x00" + prompt))
	return "llm:completion:" + hex.EncodeToString(sum[:])
}

// Complete serves the reply from cache when present, otherwise delegates to
// the wrapped Completer and stores the result. Errors are never cached.
func (r *ResponseCache) Complete(ctx context.Context, prompt string, tier Tier) (string, error) {
	key := r.key(prompt, tier)

	lookupCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	cached, err := r.client.Get(lookupCtx, key).Result()
	cancel()
	if err == nil && cached != "" {
		return cached, nil
	}

	reply, err := r.inner.Complete(ctx, prompt, tier)
	if err != nil {
		return "", err
	}

	storeCtx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	if err := r.client.Set(storeCtx, key, reply, r.ttl).Err(); err != nil {
		log.Printf("llm: store completion cache failed: %v", err)
	}
	return reply, nil
}
