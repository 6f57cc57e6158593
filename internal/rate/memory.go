package rate

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounter keeps window counters in process memory. Expired entries
// are replaced on their next increment and removed by Sweep.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryCounter returns an empty counter set.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{entries: make(map[string]*memoryEntry)}
}

// Increment implements [Counter].
func (c *MemoryCounter) Increment(_ context.Context, key string, now, expiresAt time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &memoryEntry{expiresAt: expiresAt}
		c.entries[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// Sweep removes counters whose window ended at or before now.
func (c *MemoryCounter) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live counters.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
