package ratelimit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "login:1.2.3.4", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		if decision.Remaining != 2-i {
			t.Fatalf("expected remaining %d, got %d", 2-i, decision.Remaining)
		}
	}
	decision, err := limiter.Allow(ctx, "login:1.2.3.4", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatal("fourth attempt should be throttled")
	}
	if !decision.ResetAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected reset %v", decision.ResetAt)
	}

	other, _ := limiter.Allow(ctx, "login:5.6.7.8", 3, time.Minute)
	if !other.Allowed {
		t.Fatal("keys must be tracked independently")
	}

	now = now.Add(time.Minute)
	decision, _ = limiter.Allow(ctx, "login:1.2.3.4", 3, time.Minute)
	if !decision.Allowed {
		t.Fatal("new window should allow")
	}
}

func TestMemoryLimiterDisabledAndCapacity(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }, MaxKeys: 1})
	ctx := context.Background()

	decision, err := limiter.Allow(ctx, "a", 0, time.Minute)
	if err != nil || !decision.Allowed {
		t.Fatalf("limit 0 disables throttling, got %+v err=%v", decision, err)
	}
	if _, err := limiter.Allow(ctx, "a", 1, time.Minute); err != nil {
		t.Fatalf("allow a: %v", err)
	}
	if _, err := limiter.Allow(ctx, "b", 1, time.Minute); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := limiter.Allow(ctx, "b", 1, time.Minute); err != nil {
		t.Fatalf("expired keys should be collected: %v", err)
	}
}

func TestRedisLimiterRequiresAddr(t *testing.T) {
	if _, err := NewRedisLimiter("", "", 0, nil); err == nil {
		t.Fatal("expected error for empty addr")
	}
}

func TestRedisLimiterUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	limiter := NewRedisLimiterFromClient(client, nil)
	defer limiter.Close()

	if _, err := limiter.Allow(context.Background(), "k", 1, time.Second); err == nil {
		t.Fatal("expected error from unreachable redis")
	}
	decision, err := limiter.Allow(context.Background(), "k", 0, time.Second)
	if err != nil || !decision.Allowed {
		t.Fatalf("disabled limit must not touch redis, got %+v err=%v", decision, err)
	}
}

func TestWindowBoundsAlignToClock(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 15, 42, 500, time.UTC)
	start, end := windowBounds(now, time.Minute)
	if !start.Equal(time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window start %s", start)
	}
	if end.Sub(start) != time.Minute {
		t.Fatalf("unexpected window length %s", end.Sub(start))
	}

	start, end = windowBounds(now, 0)
	if end.Sub(start) != time.Second {
		t.Fatalf("expected sub-second windows widened to 1s, got %s", end.Sub(start))
	}
}

func TestWindowKeyChangesPerWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 15, 42, 0, time.UTC)
	first, _ := windowBounds(now, time.Minute)
	next, _ := windowBounds(now.Add(time.Minute), time.Minute)
	a := windowKey("login:ip:10.0.0.1", first)
	b := windowKey("login:ip:10.0.0.1", next)
	if a == b {
		t.Fatalf("expected distinct keys per window, got %s", a)
	}
	if !strings.HasPrefix(a, loginKeyPrefix+"login:ip:10.0.0.1:") {
		t.Fatalf("unexpected key %s", a)
	}
}
