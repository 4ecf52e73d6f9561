package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/singleflight"
)

const refreshFlightKey = "credential.refresh"

// Lifecycle keeps a non-expired access credential available for remote
// calls. The durable token store is the single source of truth across
// restarts: the configuration seed is only used when the store is empty.
//
// Refreshes are single-flight: refresh tokens are typically single-use, so a
// concurrent second caller waits for the in-flight exchange's result instead
// of issuing a duplicate.
type Lifecycle struct {
	tokens     TokenStore
	refresher  TokenRefresher
	seed       Credential
	lead       time.Duration
	seedExpiry time.Duration
	logger     Logger
	now        func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	current *Credential
}

type LifecycleOption func(*Lifecycle)

func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *Lifecycle) {
		l.logger = logger
	}
}

func WithRefreshLead(lead time.Duration) LifecycleOption {
	return func(l *Lifecycle) {
		if lead > 0 {
			l.lead = lead
		}
	}
}

func WithSeedExpiry(expiry time.Duration) LifecycleOption {
	return func(l *Lifecycle) {
		if expiry > 0 {
			l.seedExpiry = expiry
		}
	}
}

func WithLifecycleNow(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLifecycle(tokens TokenStore, refresher TokenRefresher, seed Credential, options ...LifecycleOption) (*Lifecycle, error) {
	if tokens == nil {
		return nil, fmt.Errorf("core: token store is required")
	}
	if refresher == nil {
		return nil, fmt.Errorf("core: token refresher is required")
	}
	lifecycle := &Lifecycle{
		tokens:     tokens,
		refresher:  refresher,
		seed:       seed,
		lead:       DefaultRefreshLeadWindow,
		seedExpiry: DefaultSeedExpiry,
		logger:     glog.Nop(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(lifecycle)
	}
	return lifecycle, nil
}

// EnsureValid returns a credential fit for an authenticated remote call,
// refreshing proactively when the remaining lifetime is below the safety
// margin. A failed proactive refresh degrades to the current credential as
// long as it has not actually expired; an expired one surfaces the error.
func (l *Lifecycle) EnsureValid(ctx context.Context) (Credential, error) {
	if l == nil {
		return Credential{}, fmt.Errorf("core: lifecycle is nil")
	}
	current, err := l.load(ctx)
	if err != nil {
		return Credential{}, err
	}

	now := l.now().UTC()
	state := ResolveTokenState(now, current)
	if !ShouldRefresh(now, state, l.lead) {
		return current, nil
	}

	refreshed, refreshErr := l.Refresh(ctx)
	if refreshErr == nil {
		return refreshed, nil
	}
	if !state.IsExpired && state.HasAccessToken {
		l.logger.Warn("proactive refresh failed, continuing with current credential",
			"expires_at", state.ExpiresAt,
			"error", refreshErr.Error(),
		)
		return current, nil
	}
	return Credential{}, refreshErr
}

// Refresh exchanges the current refresh token for a new access/refresh pair
// and atomically replaces the stored credential. On failure the stored
// credential is left untouched. Concurrent callers share one exchange.
func (l *Lifecycle) Refresh(ctx context.Context) (Credential, error) {
	if l == nil {
		return Credential{}, fmt.Errorf("core: lifecycle is nil")
	}
	result, err, shared := l.group.Do(refreshFlightKey, func() (any, error) {
		return l.refreshLocked(ctx)
	})
	if err != nil {
		return Credential{}, err
	}
	refreshed, ok := result.(Credential)
	if !ok {
		return Credential{}, fmt.Errorf("core: unexpected refresh result type %T", result)
	}
	if shared {
		l.logger.Debug("joined in-flight credential refresh")
	}
	return refreshed, nil
}

func (l *Lifecycle) refreshLocked(ctx context.Context) (Credential, error) {
	current, err := l.load(ctx)
	if err != nil {
		return Credential{}, err
	}

	refreshed, err := l.refresher.Exchange(ctx, current.RefreshToken)
	if err != nil {
		return Credential{}, WrapRefreshError(err, "core: refresh token exchange failed")
	}
	if err := refreshed.Validate(); err != nil {
		return Credential{}, WrapRefreshError(err, "core: refresh returned incomplete credential")
	}
	if refreshed.ExpiresAt.IsZero() {
		refreshed.ExpiresAt = l.now().UTC().Add(l.seedExpiry)
	}

	if err := l.tokens.Upsert(ctx, refreshed); err != nil {
		return Credential{}, WrapStoreError(err, "core: persist refreshed credential")
	}

	l.mu.Lock()
	l.current = &refreshed
	l.mu.Unlock()

	l.logger.Info("credential refreshed", "expires_at", refreshed.ExpiresAt)
	return refreshed, nil
}

func (l *Lifecycle) load(ctx context.Context) (Credential, error) {
	l.mu.Lock()
	if l.current != nil {
		cached := *l.current
		l.mu.Unlock()
		return cached, nil
	}
	l.mu.Unlock()

	stored, err := l.tokens.Get(ctx)
	switch {
	case err == nil:
		l.mu.Lock()
		l.current = &stored
		l.mu.Unlock()
		return stored, nil
	case errors.Is(err, ErrCredentialNotFound):
		return l.seedStore(ctx)
	default:
		return Credential{}, WrapStoreError(err, "core: load stored credential")
	}
}

// seedStore writes the configuration credential into the store on first use.
// A stored credential always wins afterwards; the seed is never re-applied.
func (l *Lifecycle) seedStore(ctx context.Context) (Credential, error) {
	seed := l.seed
	if err := seed.Validate(); err != nil {
		return Credential{}, fmt.Errorf("core: no stored credential and no usable seed: %w", err)
	}
	if seed.ExpiresAt.IsZero() {
		seed.ExpiresAt = l.now().UTC().Add(l.seedExpiry)
	}
	if err := l.tokens.Upsert(ctx, seed); err != nil {
		return Credential{}, WrapStoreError(err, "core: persist seed credential")
	}

	l.mu.Lock()
	l.current = &seed
	l.mu.Unlock()

	l.logger.Info("seeded credential store from configuration", "expires_at", seed.ExpiresAt)
	return seed, nil
}
