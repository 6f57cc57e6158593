package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process session table. A single mutex serializes
// every mutation, which is what makes Rotate a compare-and-swap.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	bySubject map[string]map[string]struct{}
}

// NewMemoryStore returns an empty table.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*Session),
		bySubject: make(map[string]map[string]struct{}),
	}
}

// Create inserts a new record.
func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	if err := validate(sess); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.SessionID]; ok {
		return ErrExists
	}
	cp := *sess
	s.sessions[sess.SessionID] = &cp
	ids, ok := s.bySubject[sess.Subject]
	if !ok {
		ids = make(map[string]struct{})
		s.bySubject[sess.Subject] = ids
	}
	ids[sess.SessionID] = struct{}{}
	return nil
}

// Get returns a copy of the record.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// Rotate swaps the refresh token id when ExpectedID is current.
func (s *MemoryStore) Rotate(_ context.Context, req RotateRequest) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[req.SessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if req.ExpectedSubject != "" && sess.Subject != req.ExpectedSubject {
		return nil, ErrSubjectMismatch
	}
	if sess.Revoked {
		return nil, ErrRevoked
	}
	if sess.Expired(req.Now) {
		return nil, ErrExpired
	}
	if sess.RefreshTokenID != req.ExpectedID {
		return nil, ErrRefreshIDMismatch
	}

	sess.RefreshTokenID = req.NextID
	if !req.NextExpiresAt.IsZero() {
		sess.RefreshExpiresAt = req.NextExpiresAt
	}
	cp := *sess
	return &cp, nil
}

// Revoke marks the record revoked. It reports whether this call changed it.
func (s *MemoryStore) Revoke(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return false, ErrNotFound
	}
	if sess.Revoked {
		return false, nil
	}
	sess.Revoked = true
	return true, nil
}

// RevokeAllForSubject revokes every record indexed under subject.
func (s *MemoryStore) RevokeAllForSubject(_ context.Context, subject string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.bySubject[subject]))
	for id := range s.bySubject[subject] {
		sess, ok := s.sessions[id]
		if !ok {
			continue
		}
		sess.Revoked = true
		ids = append(ids, id)
	}
	return ids, nil
}

// SweepExpired removes records whose refresh expiry is at or before before.
func (s *MemoryStore) SweepExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if !sess.Expired(before) {
			continue
		}
		delete(s.sessions, id)
		if ids, ok := s.bySubject[sess.Subject]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(s.bySubject, sess.Subject)
			}
		}
		removed++
	}
	return removed, nil
}

// Len returns the number of records, revoked ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
