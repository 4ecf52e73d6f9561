package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type memoryTokenStore struct {
	mu      sync.Mutex
	stored  *Credential
	upserts int
	getErr  error
	putErr  error
}

func (s *memoryTokenStore) Get(context.Context) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return Credential{}, s.getErr
	}
	if s.stored == nil {
		return Credential{}, ErrCredentialNotFound
	}
	return *s.stored, nil
}

func (s *memoryTokenStore) Upsert(_ context.Context, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.upserts++
	copied := cred
	s.stored = &copied
	return nil
}

type stubRefresher struct {
	mu     sync.Mutex
	calls  int
	result Credential
	err    error
	block  chan struct{}
}

func (r *stubRefresher) Exchange(_ context.Context, refreshToken string) (Credential, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.block != nil {
		<-r.block
	}
	if r.err != nil {
		return Credential{}, r.err
	}
	if r.result.AccessToken == "" {
		return Credential{}, fmt.Errorf("stub refresher has no result for %q", refreshToken)
	}
	return r.result, nil
}

func (r *stubRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestLifecycleSeedsStoreOnFirstUse(t *testing.T) {
	store := &memoryTokenStore{}
	refresher := &stubRefresher{}
	lifecycle, err := NewLifecycle(store, refresher,
		Credential{AccessToken: "seed-access", RefreshToken: "seed-refresh"},
		WithLifecycleNow(fixedNow),
		WithRefreshLead(time.Hour),
		WithSeedExpiry(48*time.Hour),
	)
	if err != nil {
		t.Fatalf("new lifecycle: %v", err)
	}

	cred, err := lifecycle.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("ensure valid: %v", err)
	}
	if cred.AccessToken != "seed-access" {
		t.Fatalf("expected seed credential, got %q", cred.AccessToken)
	}
	if cred.ExpiresAt != fixedNow().Add(48*time.Hour) {
		t.Fatalf("expected conservative seed expiry, got %s", cred.ExpiresAt)
	}
	if store.stored == nil || store.stored.AccessToken != "seed-access" {
		t.Fatalf("expected seed persisted to the store")
	}
	if refresher.callCount() != 0 {
		t.Fatalf("expected no refresh for a fresh seed, got %d", refresher.callCount())
	}
}

func TestLifecyclePrefersStoredCredentialOverSeed(t *testing.T) {
	stored := Credential{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    fixedNow().Add(72 * time.Hour),
	}
	store := &memoryTokenStore{stored: &stored}
	lifecycle, err := NewLifecycle(store, &stubRefresher{},
		Credential{AccessToken: "seed-access", RefreshToken: "seed-refresh"},
		WithLifecycleNow(fixedNow),
	)
	if err != nil {
		t.Fatalf("new lifecycle: %v", err)
	}

	cred, err := lifecycle.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("ensure valid: %v", err)
	}
	if cred.AccessToken != "stored-access" {
		t.Fatalf("expected stored credential to win, got %q", cred.AccessToken)
	}
	if store.upserts != 0 {
		t.Fatalf("expected no writes when a stored credential exists")
	}
}

func TestLifecycleProactiveRefreshInsideMargin(t *testing.T) {
	stored := Credential{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    fixedNow().Add(6 * time.Hour),
	}
	store := &memoryTokenStore{stored: &stored}
	refresher := &stubRefresher{result: Credential{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		ExpiresAt:    fixedNow().Add(90 * 24 * time.Hour),
	}}
	lifecycle, err := NewLifecycle(store, refresher, Credential{},
		WithLifecycleNow(fixedNow),
		WithRefreshLead(24*time.Hour),
	)
	if err != nil {
		t.Fatalf("new lifecycle: %v", err)
	}

	cred, err := lifecycle.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("ensure valid: %v", err)
	}
	if cred.AccessToken != "new-access" {
		t.Fatalf("expected refreshed credential, got %q", cred.AccessToken)
	}
	if refresher.callCount() != 1 {
		t.Fatalf("expected exactly one refresh, got %d", refresher.callCount())
	}
	if store.stored.AccessToken != "new-access" || store.stored.RefreshToken != "new-refresh" {
		t.Fatalf("expected stored pair replaced together, got %+v", store.stored)
	}
}

func TestLifecycleFailedRefreshLeavesStoreUntouched(t *testing.T) {
	stored := Credential{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    fixedNow().Add(-time.Hour),
	}
	store := &memoryTokenStore{stored: &stored}
	refresher := &stubRefresher{err: fmt.Errorf("invalid_grant")}
	lifecycle, err := NewLifecycle(store, refresher, Credential{}, WithLifecycleNow(fixedNow))
	if err != nil {
		t.Fatalf("new lifecycle: %v", err)
	}

	if _, err := lifecycle.EnsureValid(context.Background()); err == nil {
		t.Fatalf("expected error when refresh fails for an expired credential")
	}
	if store.stored.AccessToken != "old-access" || store.stored.RefreshToken != "old-refresh" {
		t.Fatalf("expected failed refresh to leave stored credential untouched, got %+v", store.stored)
	}
	if store.upserts != 0 {
		t.Fatalf("expected no partial writes, got %d upserts", store.upserts)
	}
}

func TestLifecycleProactiveRefreshFailureDegradesToCurrent(t *testing.T) {
	stored := Credential{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    fixedNow().Add(6 * time.Hour),
	}
	store := &memoryTokenStore{stored: &stored}
	refresher := &stubRefresher{err: fmt.Errorf("token endpoint unavailable")}
	lifecycle, err := NewLifecycle(store, refresher, Credential{},
		WithLifecycleNow(fixedNow),
		WithRefreshLead(24*time.Hour),
	)
	if err != nil {
		t.Fatalf("new lifecycle: %v", err)
	}

	cred, err := lifecycle.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("expected degraded success while the credential is still live, got %v", err)
	}
	if cred.AccessToken != "old-access" {
		t.Fatalf("expected current credential, got %q", cred.AccessToken)
	}
}

func TestLifecycleConcurrentRefreshIsSingleFlight(t *testing.T) {
	stored := Credential{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    fixedNow().Add(-time.Hour),
	}
	store := &memoryTokenStore{stored: &stored}
	refresher := &stubRefresher{
		result: Credential{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiresAt:    fixedNow().Add(90 * 24 * time.Hour),
		},
		block: make(chan struct{}),
	}
	lifecycle, err := NewLifecycle(store, refresher, Credential{}, WithLifecycleNow(fixedNow))
	if err != nil {
		t.Fatalf("new lifecycle: %v", err)
	}

	const callers = 5
	var wg sync.WaitGroup
	results := make([]Credential, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			results[slot], errs[slot] = lifecycle.Refresh(context.Background())
		}(i)
	}

	// Give every caller a chance to join the in-flight exchange.
	time.Sleep(50 * time.Millisecond)
	close(refresher.block)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].AccessToken != "new-access" {
			t.Fatalf("caller %d: got %q", i, results[i].AccessToken)
		}
	}
	if got := refresher.callCount(); got != 1 {
		t.Fatalf("expected a single shared exchange, got %d", got)
	}
}
