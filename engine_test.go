package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeAccount struct {
	subject  string
	password string
}

// fakeProvider is an in-process IdentityProvider that counts calls.
type fakeProvider struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount

	lookupErr error
	updateErr error

	lookupCalls int
	updateCalls int
	existsCalls int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		accounts: map[string]*fakeAccount{
			"alice@example.com": {subject: "user-alice", password: "correct-password-123"},
			"bob@example.com":   {subject: "user-bob", password: "bob-password-456"},
		},
	}
}

func (p *fakeProvider) LookupSubjectByCredential(_ context.Context, email, password string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookupCalls++
	if p.lookupErr != nil {
		return "", p.lookupErr
	}
	acct, ok := p.accounts[email]
	if !ok || acct.password != password {
		return "", ErrAuthFailed
	}
	return acct.subject, nil
}

func (p *fakeProvider) UpdatePassword(_ context.Context, subject, newPassword string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateCalls++
	if p.updateErr != nil {
		return p.updateErr
	}
	for _, acct := range p.accounts {
		if acct.subject == subject {
			acct.password = newPassword
			return nil
		}
	}
	return errors.New("unknown subject")
}

func (p *fakeProvider) SubjectExists(_ context.Context, email string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.existsCalls++
	if p.lookupErr != nil {
		return false, p.lookupErr
	}
	_, ok := p.accounts[email]
	return ok, nil
}

func (p *fakeProvider) setUpdateErr(err error) {
	p.mu.Lock()
	p.updateErr = err
	p.mu.Unlock()
}

func (p *fakeProvider) calls() (lookup, update, exists int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookupCalls, p.updateCalls, p.existsCalls
}

func (p *fakeProvider) password(email string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if acct, ok := p.accounts[email]; ok {
		return acct.password
	}
	return ""
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = append([]byte(nil), testSecret...)
	cfg.JWT.AccessTTL = 5 * time.Minute
	cfg.JWT.RefreshTTL = time.Hour
	cfg.JWT.Issuer = "authcore-test"
	cfg.PasswordReset.ResetTTL = 15 * time.Minute
	cfg.SweepInterval = 0
	return cfg
}

type testEngine struct {
	*Engine
	provider *fakeProvider
	clock    *testClock
}

func newTestEngine(t testing.TB, mutate func(*Config), extra ...func(*Builder)) testEngine {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	provider := newFakeProvider()
	clock := newTestClock()

	b := New().
		WithConfig(cfg).
		WithIdentityProvider(provider).
		WithClock(clock.Now)
	for _, fn := range extra {
		fn(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	return testEngine{Engine: engine, provider: provider, clock: clock}
}

func (te testEngine) login(t testing.TB) *TokenPair {
	t.Helper()
	pair, err := te.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return pair
}

func TestBuildRejectsMissingProviderAndReuse(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without identity provider")
	}

	b := New().WithConfig(testConfig()).WithIdentityProvider(newFakeProvider())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Secret = []byte("short")
	if _, err := New().WithConfig(cfg).WithIdentityProvider(newFakeProvider()).Build(); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}

func TestZeroEngineNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Validate(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := (&Engine{}).Logout(context.Background(), "sid"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestLoginIssuesValidatablePair(t *testing.T) {
	te := newTestEngine(t, nil)
	pair := te.login(t)

	if pair.Subject != "user-alice" || pair.SessionID == "" {
		t.Fatalf("unexpected pair: %+v", pair)
	}
	if got, want := pair.AccessExpiresAt, te.clock.Now().Add(5*time.Minute); !got.Equal(want) {
		t.Fatalf("access expiry = %v, want %v", got, want)
	}
	if got, want := pair.RefreshExpiresAt, te.clock.Now().Add(time.Hour); !got.Equal(want) {
		t.Fatalf("refresh expiry = %v, want %v", got, want)
	}

	res, err := te.Validate(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Subject != "user-alice" || res.SessionID != pair.SessionID || res.TokenID == "" {
		t.Fatalf("unexpected auth result: %+v", res)
	}

	info, err := te.GetSessionInfo(context.Background(), pair.SessionID)
	if err != nil {
		t.Fatalf("session info: %v", err)
	}
	if info.Subject != "user-alice" || info.Revoked {
		t.Fatalf("unexpected session info: %+v", info)
	}
}

func TestLoginSubjectSkipsProvider(t *testing.T) {
	te := newTestEngine(t, nil)
	pair, err := te.LoginSubject(context.Background(), "user-carol")
	if err != nil {
		t.Fatalf("login subject: %v", err)
	}
	if pair.Subject != "user-carol" {
		t.Fatalf("unexpected subject %q", pair.Subject)
	}
	if lookup, _, _ := te.provider.calls(); lookup != 0 {
		t.Fatalf("expected no provider lookups, got %d", lookup)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	_, unknownErr := te.Login(ctx, "nobody@example.com", "correct-password-123")
	_, wrongErr := te.Login(ctx, "alice@example.com", "wrong-password")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v / %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("error text differs: %q vs %q", unknownErr, wrongErr)
	}
	if ErrorKind(unknownErr) != ErrorKind(wrongErr) {
		t.Fatalf("error kind differs")
	}
}

func TestLoginProviderOutage(t *testing.T) {
	te := newTestEngine(t, nil)
	te.provider.lookupErr = errors.New("dial tcp: connection refused")

	_, err := te.Login(context.Background(), "alice@example.com", "correct-password-123")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("outage must not look like a credential failure")
	}
}

func TestRefreshRotatesAndRetiresPredecessor(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	first := te.login(t)

	second, err := te.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("rotation changed session id: %s -> %s", first.SessionID, second.SessionID)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}
	if !second.RefreshExpiresAt.Equal(first.RefreshExpiresAt) {
		t.Fatalf("absolute lifetime changed: %v -> %v", first.RefreshExpiresAt, second.RefreshExpiresAt)
	}

	if _, err := te.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused, got %v", err)
	}

	// Reuse revokes the whole session, including the legitimate successor.
	if _, err := te.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after reuse, got %v", err)
	}
	if _, err := te.Validate(ctx, second.AccessToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked after reuse, got %v", err)
	}

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricRefreshReuseDetected] != 1 {
		t.Fatalf("expected one reuse detection, got %d", snap.Counters[MetricRefreshReuseDetected])
	}
}

func TestRefreshSlidingExtendsLifetime(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.Session.SlidingRefresh = true })
	first := te.login(t)

	te.clock.Advance(10 * time.Minute)
	second, err := te.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if want := te.clock.Now().Add(time.Hour); !second.RefreshExpiresAt.Equal(want) {
		t.Fatalf("refresh expiry = %v, want %v", second.RefreshExpiresAt, want)
	}
}

func TestRefreshAfterLifetimeExpires(t *testing.T) {
	te := newTestEngine(t, nil)
	pair := te.login(t)

	te.clock.Advance(time.Hour)
	if _, err := te.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRefreshRejectsOtherTokenKinds(t *testing.T) {
	te := newTestEngine(t, nil)
	pair := te.login(t)

	if _, err := te.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access token, got %v", err)
	}
	if _, err := te.Validate(context.Background(), pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for refresh token, got %v", err)
	}
	if _, err := te.Refresh(context.Background(), "not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	te := newTestEngine(t, nil)
	pair := te.login(t)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		others    []error
	)
	start := make(chan struct{})
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := te.Refresh(context.Background(), pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			others = append(others, err)
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", successes)
	}
	for _, err := range others {
		if !errors.Is(err, ErrTokenReused) && !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("unexpected loser error: %v", err)
		}
	}
}

func TestValidateExpiredAccessToken(t *testing.T) {
	te := newTestEngine(t, nil)
	pair := te.login(t)

	te.clock.Advance(5 * time.Minute)
	if _, err := te.Validate(context.Background(), pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateNeverCallsProvider(t *testing.T) {
	te := newTestEngine(t, nil, func(b *Builder) { b.WithLatencyHistograms(true) })
	pair := te.login(t)
	before, _, _ := te.provider.calls()

	for i := 0; i < 10; i++ {
		if _, err := te.Validate(context.Background(), pair.AccessToken); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}
	if after, _, _ := te.provider.calls(); after != before {
		t.Fatalf("validate called the provider: %d -> %d", before, after)
	}

	var observed uint64
	for _, n := range te.MetricsSnapshot().Histograms[MetricValidateLatency] {
		observed += n
	}
	if observed != 10 {
		t.Fatalf("expected 10 latency samples, got %d", observed)
	}
}

func TestLogoutIsFinal(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	pair := te.login(t)

	if err := te.Logout(ctx, pair.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := te.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
	if _, err := te.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := te.Logout(ctx, pair.SessionID); err != nil {
		t.Fatalf("second logout should succeed, got %v", err)
	}

	info, err := te.GetSessionInfo(ctx, pair.SessionID)
	if err != nil {
		t.Fatalf("session info: %v", err)
	}
	if !info.Revoked {
		t.Fatal("expected session to be marked revoked")
	}
}

func TestLogoutEdgeCases(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	if err := te.Logout(ctx, ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for empty id, got %v", err)
	}
	if err := te.Logout(ctx, "never-existed"); err != nil {
		t.Fatalf("unknown session logout should succeed, got %v", err)
	}
	if _, err := te.GetSessionInfo(ctx, "never-existed"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestLogoutByAccessToken(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	pair := te.login(t)

	if err := te.LogoutByAccessToken(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for refresh token, got %v", err)
	}
	if err := te.LogoutByAccessToken(ctx, pair.AccessToken); err != nil {
		t.Fatalf("logout by access token: %v", err)
	}
	if _, err := te.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}

	other := te.login(t)
	te.clock.Advance(5 * time.Minute)
	if err := te.LogoutByAccessToken(ctx, other.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	a := te.login(t)
	b := te.login(t)
	bob, err := te.Login(ctx, "bob@example.com", "bob-password-456")
	if err != nil {
		t.Fatalf("login bob: %v", err)
	}

	n, err := te.LogoutAll(ctx, "user-alice")
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked sessions, got %d", n)
	}
	for _, p := range []*TokenPair{a, b} {
		if _, err := te.Validate(ctx, p.AccessToken); !errors.Is(err, ErrSessionRevoked) {
			t.Fatalf("expected ErrSessionRevoked, got %v", err)
		}
	}
	if _, err := te.Validate(ctx, bob.AccessToken); err != nil {
		t.Fatalf("other subject's session affected: %v", err)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	pair := te.login(t)
	te.login(t)
	if err := te.Logout(ctx, pair.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := te.Allow(ctx, RateLimitKey{Caller: "10.0.0.1", Class: ClassLogin}); err != nil {
		t.Fatalf("allow: %v", err)
	}

	report, err := te.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Removed["revocations"] != 0 || report.Removed["sessions"] != 0 {
		t.Fatalf("nothing should be swept yet: %+v", report.Removed)
	}

	te.clock.Advance(2 * time.Hour)
	report, err = te.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Removed["sessions"] != 2 || report.Removed["revocations"] != 1 || report.Removed["rate_counters"] != 1 {
		t.Fatalf("unexpected sweep report: %+v", report.Removed)
	}

	report, err = te.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if report.Total() != 0 {
		t.Fatalf("second sweep removed %d entries", report.Total())
	}
	if got := te.MetricsSnapshot().Counters[MetricSweepRemoved]; got != 4 {
		t.Fatalf("expected sweep metric 4, got %d", got)
	}
}

func TestSweeperLifecycle(t *testing.T) {
	te := newTestEngine(t, nil)

	if err := te.StartSweeper(0); err == nil {
		t.Fatal("expected error when no interval is configured")
	}
	if err := te.StartSweeper(10 * time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := te.StartSweeper(10 * time.Millisecond); err == nil {
		t.Fatal("expected error when sweeper already running")
	}
	te.StopSweeper()
	te.StopSweeper()
	if err := te.StartSweeper(10 * time.Millisecond); err != nil {
		t.Fatalf("restart: %v", err)
	}

	te.Close()
	if err := te.StartSweeper(10 * time.Millisecond); err == nil {
		t.Fatal("expected error after Close")
	}
}

func TestConfigIsCopiedAtBuild(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg).WithIdentityProvider(newFakeProvider())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	cfg.RateLimit.Limits[ClassLogin] = 1
	cfg.JWT.Secret[0] = 'x'
	if limit, _ := engine.RateLimit(ClassLogin); limit != 10 {
		t.Fatalf("engine limit changed through caller config: %d", limit)
	}

	got := engine.Config()
	got.RateLimit.Limits[ClassLogin] = 2
	if limit, _ := engine.RateLimit(ClassLogin); limit != 10 {
		t.Fatalf("engine limit changed through Config(): %d", limit)
	}
	if engine.Config().JWT.Secret[0] != testSecret[0] {
		t.Fatal("engine secret changed through caller config")
	}
}

func TestHealthInMemory(t *testing.T) {
	te := newTestEngine(t, nil)
	if h := te.Health(context.Background()); !h.Available {
		t.Fatalf("expected in-memory engine to be healthy: %+v", h)
	}
}

func TestSecurityReportNamesBackends(t *testing.T) {
	te := newTestEngine(t, nil)
	report := te.SecurityReport()
	if report.AccessTTL != 5*time.Minute || report.RefreshTTL != time.Hour {
		t.Fatalf("unexpected TTLs in report: %+v", report)
	}

	var codes []string
	for _, w := range report.Warnings {
		codes = append(codes, w.Code)
	}
	joined := strings.Join(codes, ",")
	for _, want := range []string{"memory_backend", "memory_rate_counter", "audit_disabled"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %s in %v", want, codes)
		}
	}
}
