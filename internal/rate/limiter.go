package rate

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Key identifies one counter series.
type Key struct {
	Caller string
	Class  string
}

// Config holds rate limiter tuning parameters.
//
// Classes missing from Limits are never counted and always allowed.
type Config struct {
	Window time.Duration
	Limits map[string]int
	Now    func() time.Time
}

// Counter increments the named counter and returns the new value. The
// counter must disappear no earlier than expiresAt.
type Counter interface {
	Increment(ctx context.Context, key string, now, expiresAt time.Time) (int64, error)
}

// Limiter decides allow/deny for a Key within the current window.
type Limiter struct {
	counter Counter
	config  Config
}

// New creates a [Limiter] over counter. Window defaults to one minute.
func New(counter Counter, cfg Config) (*Limiter, error) {
	if counter == nil {
		return nil, errors.New("rate counter is required")
	}
	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	if cfg.Window < time.Second {
		return nil, errors.New("rate window must be at least one second")
	}
	limits := make(map[string]int, len(cfg.Limits))
	for class, limit := range cfg.Limits {
		if limit < 0 {
			return nil, errors.New("rate limit must not be negative")
		}
		limits[class] = limit
	}
	cfg.Limits = limits
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{counter: counter, config: cfg}, nil
}

// Allow counts the request and reports whether it is within the class limit.
// The request that takes the count to limit is allowed; limit+1 is denied.
func (l *Limiter) Allow(ctx context.Context, key Key) (bool, error) {
	limit, ok := l.config.Limits[key.Class]
	if !ok {
		return true, nil
	}

	now := l.config.Now()
	start := now.Truncate(l.config.Window)
	count, err := l.counter.Increment(ctx, counterKey(key, start), now, start.Add(l.config.Window))
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}

// Limit returns the configured limit for class.
func (l *Limiter) Limit(class string) (int, bool) {
	limit, ok := l.config.Limits[class]
	return limit, ok
}

func counterKey(key Key, windowStart time.Time) string {
	return "arl:" + key.Class + ":" + key.Caller + ":" + strconv.FormatInt(windowStart.Unix(), 10)
}
