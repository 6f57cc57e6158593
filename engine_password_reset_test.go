package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPasswordResetHappyPath(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	a := te.login(t)
	b := te.login(t)

	token, expiresAt, err := te.RequestResetWithExpiry(ctx, "user-alice")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if want := te.clock.Now().Add(15 * time.Minute); !expiresAt.Equal(want) {
		t.Fatalf("reset expiry = %v, want %v", expiresAt, want)
	}

	if err := te.CompleteReset(ctx, token, "brand-new-secret-9"); err != nil {
		t.Fatalf("complete reset: %v", err)
	}
	if got := te.provider.password("alice@example.com"); got != "brand-new-secret-9" {
		t.Fatalf("password not updated, got %q", got)
	}
	for _, p := range []*TokenPair{a, b} {
		if _, err := te.Validate(ctx, p.AccessToken); !errors.Is(err, ErrSessionRevoked) {
			t.Fatalf("expected sessions revoked after reset, got %v", err)
		}
	}

	if err := te.CompleteReset(ctx, token, "another-secret-10"); !errors.Is(err, ErrTokenAlreadyUsed) {
		t.Fatalf("expected ErrTokenAlreadyUsed, got %v", err)
	}
	if got := te.provider.password("alice@example.com"); got != "brand-new-secret-9" {
		t.Fatalf("replay changed the password to %q", got)
	}

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricPasswordResetReplay] != 1 || snap.Counters[MetricPasswordResetConfirmSuccess] != 1 {
		t.Fatalf("unexpected reset metrics: %+v", snap.Counters)
	}
}

func TestPasswordResetRequestDoesNotRevealSubject(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	known, knownExp, err := te.RequestResetWithExpiry(ctx, "user-alice")
	if err != nil {
		t.Fatalf("known subject: %v", err)
	}
	unknown, unknownExp, err := te.RequestResetWithExpiry(ctx, "user-nobody")
	if err != nil {
		t.Fatalf("unknown subject: %v", err)
	}
	if known == "" || unknown == "" {
		t.Fatal("expected tokens for both subjects")
	}
	if !knownExp.Equal(unknownExp) {
		t.Fatalf("expiry differs: %v vs %v", knownExp, unknownExp)
	}
	if lookup, update, exists := te.provider.calls(); lookup+update+exists != 0 {
		t.Fatalf("reset request touched the provider: %d/%d/%d", lookup, update, exists)
	}

	_, err = te.RequestReset(ctx, "")
	if !errors.Is(err, ErrTokenInvalid) || ErrorKind(err) != "token_invalid" {
		t.Fatalf("expected ErrTokenInvalid for empty subject, got %v", err)
	}
}

func TestPasswordResetPolicyKeepsTokenUsable(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	token, err := te.RequestReset(ctx, "user-alice")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}

	for _, weak := range []string{"short1", "onlyletters", "12345678901", "password123"} {
		if err := te.CompleteReset(ctx, token, weak); !errors.Is(err, ErrPasswordPolicy) {
			t.Fatalf("%q: expected ErrPasswordPolicy, got %v", weak, err)
		}
	}
	if _, update, _ := te.provider.calls(); update != 0 {
		t.Fatalf("policy failures reached the provider %d times", update)
	}

	if err := te.CompleteReset(ctx, token, "strong-enough-42"); err != nil {
		t.Fatalf("expected token to stay usable, got %v", err)
	}
}

func TestPasswordResetUpstreamFailureConsumesToken(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	pair := te.login(t)
	token, err := te.RequestReset(ctx, "user-alice")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}

	te.provider.setUpdateErr(errors.New("identity service timeout"))
	if err := te.CompleteReset(ctx, token, "strong-enough-42"); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}

	te.provider.setUpdateErr(nil)
	if err := te.CompleteReset(ctx, token, "strong-enough-42"); !errors.Is(err, ErrTokenAlreadyUsed) {
		t.Fatalf("expected token to stay consumed, got %v", err)
	}
	if _, err := te.Validate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("sessions should survive a failed password update: %v", err)
	}
}

func TestPasswordResetConcurrentSingleUse(t *testing.T) {
	te := newTestEngine(t, nil)
	token, err := te.RequestReset(context.Background(), "user-alice")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		replays   int
	)
	start := make(chan struct{})
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			err := te.CompleteReset(context.Background(), token, "strong-enough-42")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrTokenAlreadyUsed):
				replays++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || replays != workers-1 {
		t.Fatalf("expected 1 success and %d replays, got %d/%d", workers-1, successes, replays)
	}
	if _, update, _ := te.provider.calls(); update != 1 {
		t.Fatalf("expected exactly one password update, got %d", update)
	}
}

func TestPasswordResetTokenExpiry(t *testing.T) {
	te := newTestEngine(t, nil)
	token, err := te.RequestReset(context.Background(), "user-alice")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}

	te.clock.Advance(15 * time.Minute)
	if err := te.CompleteReset(context.Background(), token, "strong-enough-42"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestPasswordResetRejectsOtherTokenKinds(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	pair := te.login(t)

	if err := te.CompleteReset(ctx, pair.AccessToken, "strong-enough-42"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access token, got %v", err)
	}
	token, err := te.RequestReset(ctx, "user-alice")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if _, err := te.Validate(ctx, token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected reset token to fail validation, got %v", err)
	}
}

func TestCheckPasswordPolicy(t *testing.T) {
	te := newTestEngine(t, nil)

	if err := te.CheckPasswordPolicy("long-enough-42"); err != nil {
		t.Fatalf("strong password rejected: %v", err)
	}
	err := te.CheckPasswordPolicy("short1")
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if ErrorKind(err) != "password_policy" {
		t.Fatalf("kind = %q", ErrorKind(err))
	}

	var nilEngine *Engine
	if err := nilEngine.CheckPasswordPolicy("long-enough-42"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("nil engine: %v", err)
	}
}
