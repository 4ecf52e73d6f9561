package core

import (
	"testing"
	"time"
)

func TestResolveTokenState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fresh := Credential{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    now.Add(72 * time.Hour),
	}
	state := ResolveTokenState(now, fresh)
	if !state.HasAccessToken || !state.HasRefreshToken {
		t.Fatalf("expected both tokens present")
	}
	if state.IsExpired {
		t.Fatalf("expected credential not expired")
	}
	if state.TimeToExpiry != 72*time.Hour {
		t.Fatalf("time to expiry: got %s", state.TimeToExpiry)
	}

	expired := ResolveTokenState(now, Credential{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    now.Add(-time.Minute),
	})
	if !expired.IsExpired {
		t.Fatalf("expected credential expired")
	}

	unknown := ResolveTokenState(now, Credential{AccessToken: "access", RefreshToken: "refresh"})
	if unknown.IsExpired || !unknown.ExpiresAt.IsZero() {
		t.Fatalf("expected unknown expiry to stay unflagged")
	}
}

func TestShouldRefresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lead := 24 * time.Hour

	cases := []struct {
		name string
		cred Credential
		want bool
	}{
		{
			name: "fresh credential is left alone",
			cred: Credential{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(72 * time.Hour)},
			want: false,
		},
		{
			name: "inside the safety margin",
			cred: Credential{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(6 * time.Hour)},
			want: true,
		},
		{
			name: "already expired",
			cred: Credential{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(-time.Hour)},
			want: true,
		},
		{
			name: "missing access token",
			cred: Credential{RefreshToken: "r", ExpiresAt: now.Add(72 * time.Hour)},
			want: true,
		},
		{
			name: "no refresh token means nothing to do",
			cred: Credential{AccessToken: "a", ExpiresAt: now.Add(-time.Hour)},
			want: false,
		},
		{
			name: "unknown expiry with access token",
			cred: Credential{AccessToken: "a", RefreshToken: "r"},
			want: false,
		},
	}
	for _, tc := range cases {
		state := ResolveTokenState(now, tc.cred)
		if got := ShouldRefresh(now, state, lead); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
