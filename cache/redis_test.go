package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

// The singleton dials whatever REDIS_ADDR points at on first use; pointing it
// at a closed port exercises the degraded mode every caller must survive.
func TestMain(m *testing.M) {
	os.Setenv("REDIS_ADDR", "127.0.0.1:1")
	os.Exit(m.Run())
}

func TestEnabledWithoutRedis(t *testing.T) {
	if Enabled() {
		t.Fatalf("Enabled() = true with no redis reachable")
	}
	if _, err := GetRedisClient(); err == nil {
		t.Fatalf("expected connection error")
	}
}

func TestAllowFailsOpenWithoutRedis(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !Allow(ctx, "ratelimit:test", 1, time.Minute) {
			t.Fatalf("request %d rejected while redis is down", i)
		}
	}
}

func TestAllowDisabledLimits(t *testing.T) {
	ctx := context.Background()
	if !Allow(ctx, "ratelimit:test", 0, time.Minute) {
		t.Fatalf("zero limit must disable the limiter")
	}
	if !Allow(ctx, "ratelimit:test", 5, 0) {
		t.Fatalf("zero window must disable the limiter")
	}
}
