package identity_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T) *identity.MemoryProvider {
	t.Helper()
	p, err := identity.NewMemoryProvider(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)
	return p
}

func TestRegisterAndLookup(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	subject, err := p.Register(ctx, "Alice@Example.com ", "s3cret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, subject)

	got, err := p.LookupSubjectByCredential(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, subject, got)

	exists, err := p.SubjectExists(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = p.Register(ctx, "alice@example.com", "another-1")
	assert.ErrorIs(t, err, identity.ErrExists)
}

func TestLookupFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)
	_, err := p.Register(ctx, "bob@example.com", "right-pass-1")
	require.NoError(t, err)

	_, wrongPassword := p.LookupSubjectByCredential(ctx, "bob@example.com", "wrong-pass-1")
	_, unknownEmail := p.LookupSubjectByCredential(ctx, "nobody@example.com", "right-pass-1")

	assert.ErrorIs(t, wrongPassword, authcore.ErrAuthFailed)
	assert.ErrorIs(t, unknownEmail, authcore.ErrAuthFailed)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestUpdatePassword(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)
	subject, err := p.Register(ctx, "carol@example.com", "old-pass-1")
	require.NoError(t, err)

	require.NoError(t, p.UpdatePassword(ctx, subject, "new-pass-2"))

	_, err = p.LookupSubjectByCredential(ctx, "carol@example.com", "old-pass-1")
	assert.ErrorIs(t, err, authcore.ErrAuthFailed)
	got, err := p.LookupSubjectByCredential(ctx, "carol@example.com", "new-pass-2")
	require.NoError(t, err)
	assert.Equal(t, subject, got)

	assert.ErrorIs(t, p.UpdatePassword(ctx, "missing", "x-pass-3"), identity.ErrUnknownSubject)
}

func TestSetFailure(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)
	outage := errors.New("connection refused")
	p.SetFailure(outage)

	_, err := p.LookupSubjectByCredential(ctx, "a@b.c", "pw-123456")
	assert.ErrorIs(t, err, outage)
	assert.NotErrorIs(t, err, authcore.ErrAuthFailed)
	assert.ErrorIs(t, p.UpdatePassword(ctx, "s", "pw-123456"), outage)
	_, err = p.SubjectExists(ctx, "a@b.c")
	assert.ErrorIs(t, err, outage)

	p.SetFailure(nil)
	_, err = p.SubjectExists(ctx, "a@b.c")
	assert.NoError(t, err)
}

func TestConcurrentRegisterSingleWinner(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Register(ctx, "race@example.com", "race-pass-1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestSubjectByEmail(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	subject, err := p.Register(ctx, "bob@example.com", "hunter22-pass")
	require.NoError(t, err)

	got, err := p.SubjectByEmail(ctx, " BOB@example.com")
	require.NoError(t, err)
	assert.Equal(t, subject, got)

	_, err = p.SubjectByEmail(ctx, "carol@example.com")
	assert.ErrorIs(t, err, identity.ErrUnknownSubject)
}
