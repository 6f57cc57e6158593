package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind identifies which lifecycle a signed token belongs to.
//
// A token minted for one kind never verifies as another.
type Kind string

const (
	// KindAccess marks short-lived bearer tokens presented on protected requests.
	KindAccess Kind = "access"
	// KindRefresh marks tokens exchanged for a new pair through rotation.
	KindRefresh Kind = "refresh"
	// KindReset marks single-use password reset tokens.
	KindReset Kind = "reset"
)

// MinSecretLength is the smallest HS256 secret NewManager accepts.
const MinSecretLength = 32

var (
	// ErrMalformed is returned for tokens that cannot be decoded or whose claims are incomplete.
	ErrMalformed = errors.New("token malformed")
	// ErrSignature is returned when the signature or key id does not verify.
	ErrSignature = errors.New("token signature invalid")
	// ErrExpired is returned when the current time is at or after exp.
	ErrExpired = errors.New("token expired")
	// ErrKindMismatch is returned when a valid token is presented for the wrong lifecycle.
	ErrKindMismatch = errors.New("token kind mismatch")
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// Secret signs every token issued by the manager.
	Secret []byte
	// KeyID is written to the kid header when set and is required when
	// VerifyKeys is non-empty.
	KeyID string
	// VerifyKeys maps retired key ids to their secrets so tokens signed
	// before a secret rotation keep verifying until they expire.
	VerifyKeys map[string][]byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	// Now is the clock used for iat, exp and verification. Defaults to time.Now.
	Now func() time.Time
}

// Manager defines a public type used by authcore APIs.
//
// Manager is stateless after construction and safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// Claims is the decoded payload of a verified token.
//
// Subject and ID (jti) come from the embedded registered claims. For refresh
// tokens ID is the session's refresh token id, for reset tokens it is the
// reset id.
type Claims struct {
	Kind      Kind   `json:"kind"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a codec. Secrets shorter than 32 bytes are rejected.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("hs256 secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) < MinSecretLength {
			return nil, fmt.Errorf("verify key for kid %q is shorter than %d bytes", kid, MinSecretLength)
		}
	}
	if cfg.KeyID == "" && len(cfg.VerifyKeys) > 0 {
		return nil, errors.New("VerifyKeys requires a KeyID for the active secret")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

// Issue signs a token of the given kind and returns it with its expiry.
//
// sessionID is required for access and refresh tokens and ignored for reset
// tokens. tokenID becomes the jti claim.
func (m *Manager) Issue(subject, sessionID, tokenID string, kind Kind, ttl time.Duration) (string, time.Time, error) {
	if subject == "" || tokenID == "" {
		return "", time.Time{}, errors.New("subject and token id are required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("invalid TTL")
	}
	switch kind {
	case KindAccess, KindRefresh:
		if sessionID == "" {
			return "", time.Time{}, errors.New("session id is required")
		}
	case KindReset:
		sessionID = ""
	default:
		return "", time.Time{}, fmt.Errorf("unknown token kind %q", kind)
	}

	now := m.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Kind:      kind,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}
	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	// NumericDate truncates to seconds; report what the token actually carries.
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks signature, expiry and kind, and returns the claims.
//
// The returned error is always one of ErrMalformed, ErrSignature, ErrExpired
// or ErrKindMismatch.
func (m *Manager) Verify(tokenStr string, kind Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, m.keyFunc)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrMalformed
	}
	if claims.Kind != kind {
		return nil, ErrKindMismatch
	}
	if kind != KindReset && claims.SessionID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	if m.config.KeyID == "" {
		return m.config.Secret, nil
	}

	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	if kid == m.config.KeyID {
		return m.config.Secret, nil
	}
	if key, ok := m.config.VerifyKeys[kid]; ok {
		return key, nil
	}
	return nil, errors.New("unknown kid")
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignature
	default:
		return ErrMalformed
	}
}
