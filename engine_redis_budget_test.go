package authcore

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter counts Redis commands, pipelined ones included.
type cmdCounter struct {
	commands atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func newCountedRedisEngine(t *testing.T) (testEngine, *cmdCounter) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	// Connection setup is not part of any budget.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter := &cmdCounter{}
	rdb.AddHook(counter)

	return newTestEngine(t, nil, func(b *Builder) { b.WithRedis(rdb) }), counter
}

func TestValidateRedisBudget(t *testing.T) {
	te, counter := newCountedRedisEngine(t)
	pair := te.login(t)

	counter.commands.Store(0)
	if _, err := te.Validate(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := counter.commands.Load(); got != 1 {
		t.Fatalf("validate used %d redis commands, want 1", got)
	}
}

func TestRefreshRedisBudget(t *testing.T) {
	te, counter := newCountedRedisEngine(t)
	ctx := context.Background()
	pair := te.login(t)

	// The first rotation may need EVAL to load the script.
	pair, err := te.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("warmup refresh: %v", err)
	}

	counter.commands.Store(0)
	if _, err := te.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := counter.commands.Load(); got > 2 {
		t.Fatalf("refresh used %d redis commands, want at most 2", got)
	}
}
