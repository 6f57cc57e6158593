// Package identity provides an in-memory identity provider for tests, the
// demo server and load testing. Production deployments plug their own user
// service into authcore.IdentityProvider.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/password"
	"github.com/google/uuid"
)

var (
	// ErrExists is returned by Register for an email that is already taken.
	ErrExists = errors.New("identity already exists")
	// ErrUnknownSubject is returned by UpdatePassword for subjects it never issued.
	ErrUnknownSubject = errors.New("unknown subject")
)

type record struct {
	subject string
	hash    string
}

// MemoryProvider stores email → argon2id hash records in a map.
type MemoryProvider struct {
	hasher *password.Argon2
	// dummyHash is verified for unknown emails. It is hashed with the live
	// config so both lookup paths cost the same.
	dummyHash string

	mu        sync.RWMutex
	byEmail   map[string]*record
	bySubject map[string]*record

	// fail, when set, is returned by every call to simulate an outage.
	fail error
}

// NewMemoryProvider returns an empty provider hashing with cfg.
func NewMemoryProvider(cfg password.Config) (*MemoryProvider, error) {
	hasher, err := password.NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &MemoryProvider{
		hasher:    hasher,
		dummyHash: dummy,
		byEmail:   make(map[string]*record),
		bySubject: make(map[string]*record),
	}, nil
}

// Register creates an account and returns its subject.
func (p *MemoryProvider) Register(ctx context.Context, email, pw string) (string, error) {
	if err := p.failure(); err != nil {
		return "", err
	}
	email = normalizeEmail(email)
	if email == "" {
		return "", errors.New("email is required")
	}
	hash, err := p.hasher.Hash(pw)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byEmail[email]; ok {
		return "", ErrExists
	}
	rec := &record{subject: uuid.NewString(), hash: hash}
	p.byEmail[email] = rec
	p.bySubject[rec.subject] = rec
	return rec.subject, nil
}

// LookupSubjectByCredential returns authcore.ErrAuthFailed for unknown
// emails and wrong passwords alike. Unknown emails still pay for one hash
// verification so both paths take comparable time.
func (p *MemoryProvider) LookupSubjectByCredential(ctx context.Context, email, pw string) (string, error) {
	if err := p.failure(); err != nil {
		return "", err
	}

	p.mu.RLock()
	rec, ok := p.byEmail[normalizeEmail(email)]
	var subject, hash string
	if ok {
		subject, hash = rec.subject, rec.hash
	}
	p.mu.RUnlock()

	if !ok {
		_, _ = p.hasher.Verify(pw, p.dummyHash)
		return "", authcore.ErrAuthFailed
	}
	match, err := p.hasher.Verify(pw, hash)
	if err != nil || !match {
		return "", authcore.ErrAuthFailed
	}
	return subject, nil
}

// UpdatePassword replaces the stored hash for subject.
func (p *MemoryProvider) UpdatePassword(ctx context.Context, subject, newPassword string) error {
	if err := p.failure(); err != nil {
		return err
	}
	hash, err := p.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.bySubject[subject]
	if !ok {
		return ErrUnknownSubject
	}
	rec.hash = hash
	return nil
}

// SubjectExists reports whether email is registered.
func (p *MemoryProvider) SubjectExists(ctx context.Context, email string) (bool, error) {
	if err := p.failure(); err != nil {
		return false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byEmail[normalizeEmail(email)]
	return ok, nil
}

// SubjectByEmail returns the subject registered for email, or
// ErrUnknownSubject.
func (p *MemoryProvider) SubjectByEmail(ctx context.Context, email string) (string, error) {
	if err := p.failure(); err != nil {
		return "", err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.byEmail[normalizeEmail(email)]
	if !ok {
		return "", ErrUnknownSubject
	}
	return rec.subject, nil
}

// SetFailure makes every subsequent call return err. Pass nil to recover.
func (p *MemoryProvider) SetFailure(err error) {
	p.mu.Lock()
	p.fail = err
	p.mu.Unlock()
}

func (p *MemoryProvider) failure() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fail
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ authcore.IdentityProvider = (*MemoryProvider)(nil)
