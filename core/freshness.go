package core

import (
	"strings"
	"time"
)

const (
	// DefaultRefreshLeadWindow is the proactive safety margin: a credential
	// whose remaining lifetime is below it is refreshed before use.
	DefaultRefreshLeadWindow = 24 * time.Hour

	// DefaultSeedExpiry is the conservative lifetime assumed for a credential
	// seeded from configuration when the true expiry is unknown.
	DefaultSeedExpiry = 24 * time.Hour
)

// TokenState captures the lifecycle flags derived from a credential at a
// given instant.
type TokenState struct {
	ExpiresAt       time.Time
	HasAccessToken  bool
	HasRefreshToken bool
	IsExpired       bool
	TimeToExpiry    time.Duration
}

// ResolveTokenState evaluates expiry flags for a credential.
func ResolveTokenState(now time.Time, credential Credential) TokenState {
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}

	state := TokenState{
		HasAccessToken:  strings.TrimSpace(credential.AccessToken) != "",
		HasRefreshToken: strings.TrimSpace(credential.RefreshToken) != "",
	}
	if credential.ExpiresAt.IsZero() {
		return state
	}
	expiresAt := credential.ExpiresAt.UTC()
	state.ExpiresAt = expiresAt
	if !expiresAt.After(now) {
		state.IsExpired = true
		return state
	}
	state.TimeToExpiry = expiresAt.Sub(now)
	return state
}

// ShouldRefresh reports whether a refresh should be attempted before the
// credential is handed to a remote call.
func ShouldRefresh(now time.Time, state TokenState, leadWindow time.Duration) bool {
	if !state.HasRefreshToken {
		return false
	}
	if !state.HasAccessToken || state.IsExpired {
		return true
	}
	if state.ExpiresAt.IsZero() {
		return false
	}
	if leadWindow <= 0 {
		leadWindow = DefaultRefreshLeadWindow
	}
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	return !state.ExpiresAt.After(now.Add(leadWindow))
}
