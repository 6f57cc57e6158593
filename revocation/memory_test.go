package revocation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryStoreFirstWriterWins(t *testing.T) {
	s := NewMemoryStore(Retention{KindReset: time.Hour}, nil)
	ctx := context.Background()

	first, err := s.MarkRevoked(ctx, KindReset, "r1")
	if err != nil || !first {
		t.Fatalf("expected first mark to win, got %v %v", first, err)
	}
	again, err := s.MarkRevoked(ctx, KindReset, "r1")
	if err != nil || again {
		t.Fatalf("expected second mark to lose, got %v %v", again, err)
	}

	revoked, _ := s.IsRevoked(ctx, KindReset, "r1")
	if !revoked {
		t.Fatal("expected marker to be visible")
	}
	other, _ := s.IsRevoked(ctx, KindSession, "r1")
	if other {
		t.Fatal("markers must be namespaced by kind")
	}
	if _, err := s.MarkRevoked(ctx, KindReset, ""); err == nil {
		t.Fatal("expected empty id to be rejected")
	}
}

func TestMemoryStoreConcurrentMarkSingleWinner(t *testing.T) {
	s := NewMemoryStore(nil, nil)
	const n = 64

	var wins atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := s.MarkRevoked(context.Background(), KindReset, "shared")
			if err != nil {
				t.Errorf("mark: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestMemoryStoreSweepIsIdempotent(t *testing.T) {
	clock := &stepClock{t: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(Retention{KindSession: 2 * time.Hour, KindReset: time.Hour}, clock.Now)
	ctx := context.Background()

	_, _ = s.MarkRevoked(ctx, KindSession, "s1")
	_, _ = s.MarkRevoked(ctx, KindReset, "r1")
	clock.Advance(90 * time.Minute)
	_, _ = s.MarkRevoked(ctx, KindReset, "r2")

	removed, err := s.SweepExpired(ctx, clock.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected only r1 to be swept, removed %d", removed)
	}
	if revoked, _ := s.IsRevoked(ctx, KindSession, "s1"); !revoked {
		t.Fatal("session marker is still within retention")
	}
	if revoked, _ := s.IsRevoked(ctx, KindReset, "r2"); !revoked {
		t.Fatal("fresh reset marker must survive the sweep")
	}

	again, _ := s.SweepExpired(ctx, clock.Now())
	if again != 0 || s.Len() != 2 {
		t.Fatalf("second sweep must be a no-op, removed %d, len %d", again, s.Len())
	}
}

func TestMemoryStoreSweepKeepsKindsWithoutRetention(t *testing.T) {
	clock := &stepClock{t: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(Retention{KindReset: time.Minute}, clock.Now)
	ctx := context.Background()

	_, _ = s.MarkRevoked(ctx, KindSession, "s1")
	clock.Advance(24 * time.Hour)
	removed, _ := s.SweepExpired(ctx, clock.Now())
	if removed != 0 {
		t.Fatalf("expected kind without retention to be kept, removed %d", removed)
	}
}
