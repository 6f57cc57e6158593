package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAllowBoundaryAndRollover(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.RateLimit.Limits = map[OperationClass]int{ClassLogin: 3}
	})
	ctx := context.Background()
	key := RateLimitKey{Caller: "203.0.113.7", Class: ClassLogin}

	for i := 0; i < 3; i++ {
		if err := te.Allow(ctx, key); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := te.Allow(ctx, key); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	other := RateLimitKey{Caller: "203.0.113.8", Class: ClassLogin}
	if err := te.Allow(ctx, other); err != nil {
		t.Fatalf("other caller blocked: %v", err)
	}

	te.clock.Advance(time.Minute)
	if err := te.Allow(ctx, key); err != nil {
		t.Fatalf("expected fresh window, got %v", err)
	}

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricLoginRateLimited] != 1 || snap.Counters[MetricRateLimitHit] != 1 {
		t.Fatalf("unexpected rate metrics: %+v", snap.Counters)
	}
}

func TestAllowUnconfiguredClassNeverBlocks(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.RateLimit.Limits = map[OperationClass]int{ClassLogin: 1}
	})
	key := RateLimitKey{Caller: "203.0.113.7", Class: ClassRefresh}
	for i := 0; i < 50; i++ {
		if err := te.Allow(context.Background(), key); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if _, ok := te.RateLimit(ClassRefresh); ok {
		t.Fatal("refresh should have no limit")
	}
}

func TestAllowFailsClosedWhenCounterUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	te := newTestEngine(t, nil, func(b *Builder) { b.WithRedis(rdb) })

	key := RateLimitKey{Caller: "203.0.113.7", Class: ClassLogin}
	if err := te.Allow(context.Background(), key); err != nil {
		t.Fatalf("allow: %v", err)
	}

	mr.Close()
	err := te.Allow(context.Background(), key)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrRateLimited) {
		t.Fatal("backend failure must not look like a limit hit")
	}
}

func TestSubjectExistsWrapsProviderErrors(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	exists, err := te.SubjectExists(ctx, "alice@example.com")
	if err != nil || !exists {
		t.Fatalf("expected alice to exist, got %v / %v", exists, err)
	}
	exists, err = te.SubjectExists(ctx, "nobody@example.com")
	if err != nil || exists {
		t.Fatalf("expected nobody to be absent, got %v / %v", exists, err)
	}

	te.provider.lookupErr = errors.New("connection reset")
	if _, err := te.SubjectExists(ctx, "alice@example.com"); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}
