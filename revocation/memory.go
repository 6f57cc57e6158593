package revocation

import (
	"context"
	"sync"
	"time"
)

type markerKey struct {
	kind Kind
	id   string
}

// MemoryStore keeps markers in process memory behind a single RWMutex.
type MemoryStore struct {
	mu        sync.RWMutex
	markers   map[markerKey]time.Time
	retention Retention
	now       func() time.Time
}

// NewMemoryStore returns an empty in-memory store. now defaults to time.Now.
func NewMemoryStore(retention Retention, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		markers:   make(map[markerKey]time.Time),
		retention: retention,
		now:       now,
	}
}

// MarkRevoked records the marker if absent.
func (s *MemoryStore) MarkRevoked(_ context.Context, kind Kind, id string) (bool, error) {
	if err := validID(kind, id); err != nil {
		return false, err
	}
	key := markerKey{kind: kind, id: id}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markers[key]; ok {
		return false, nil
	}
	s.markers[key] = s.now()
	return true, nil
}

// IsRevoked reports whether a marker exists.
func (s *MemoryStore) IsRevoked(_ context.Context, kind Kind, id string) (bool, error) {
	s.mu.RLock()
	_, ok := s.markers[markerKey{kind: kind, id: id}]
	s.mu.RUnlock()
	return ok, nil
}

// SweepExpired drops markers whose retention ended at or before before.
func (s *MemoryStore) SweepExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, revokedAt := range s.markers {
		cutoff, ok := s.retention.cutoff(key.kind, before)
		if !ok {
			continue
		}
		if !revokedAt.After(cutoff) {
			delete(s.markers, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of markers currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}
