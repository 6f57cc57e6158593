package identity

import (
	"context"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// phcParams returns the "m=..,t=..,p=.." segment of an encoded hash.
func phcParams(t *testing.T, encoded string) string {
	t.Helper()
	parts := strings.Split(encoded, "$")
	require.Len(t, parts, 6, encoded)
	return parts[3]
}

func TestUnknownEmailVerifiesAtLiveCost(t *testing.T) {
	ctx := context.Background()
	for name, cfg := range map[string]password.Config{
		"default": password.DefaultConfig(),
		"fast": {
			Memory:      8 * 1024,
			Time:        1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
	} {
		t.Run(name, func(t *testing.T) {
			p, err := NewMemoryProvider(cfg)
			require.NoError(t, err)
			_, err = p.Register(ctx, "carol@example.com", "right-pass-1")
			require.NoError(t, err)

			p.mu.RLock()
			stored := p.byEmail["carol@example.com"].hash
			p.mu.RUnlock()

			assert.Equal(t, phcParams(t, stored), phcParams(t, p.dummyHash))
			assert.Len(t, p.dummyHash, len(stored))

			upgrade, err := p.hasher.NeedsUpgrade(p.dummyHash)
			require.NoError(t, err)
			assert.False(t, upgrade)

			match, err := p.hasher.Verify("right-pass-1", p.dummyHash)
			require.NoError(t, err)
			assert.False(t, match)
		})
	}
}

func TestDummyHashIsPerProvider(t *testing.T) {
	cfg := password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	a, err := NewMemoryProvider(cfg)
	require.NoError(t, err)
	b, err := NewMemoryProvider(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a.dummyHash, b.dummyHash)
}
