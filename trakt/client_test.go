package trakt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/watchrelay/watchrelay/core"
)

const historyFixture = `[
  {
    "id": 999,
    "watched_at": "2026-02-10T21:30:00.000Z",
    "action": "watch",
    "type": "episode",
    "episode": {
      "season": 2,
      "number": 3,
      "title": "The After Hours",
      "ids": {"trakt": 4500, "tmdb": 620}
    },
    "show": {
      "title": "Severance",
      "ids": {"trakt": 180770, "slug": "severance", "tmdb": 95396}
    }
  },
  {
    "id": 998,
    "watched_at": "2026-02-10T19:00:00.000Z",
    "action": "watch",
    "type": "movie",
    "movie": {
      "title": "Heat",
      "year": 1995,
      "ids": {"trakt": 612, "slug": "heat-1995", "tmdb": 949}
    }
  }
]`

func newTestClient(t *testing.T, handler http.Handler) (*Client, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	client, err := New(Config{
		BaseURL:      server.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}, WithHTTPClient(server.Client()))
	if err != nil {
		server.Close()
		t.Fatalf("new client: %v", err)
	}
	return client, server.Close
}

func TestFetchParsesHistory(t *testing.T) {
	var gotPath, gotAuth, gotKey, gotVersion string
	client, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("trakt-api-key")
		gotVersion = r.Header.Get("trakt-api-version")
		if r.URL.Query().Get("limit") != "50" {
			t.Errorf("limit: got %q", r.URL.Query().Get("limit"))
		}
		if r.URL.Query().Get("start_at") == "" {
			t.Errorf("expected start_at query parameter")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(historyFixture))
	}))
	defer cleanup()

	since := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	events, err := client.Fetch(context.Background(), since, 50, "access-token")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if gotPath != "/users/me/history" {
		t.Fatalf("path: got %q", gotPath)
	}
	if gotAuth != "Bearer access-token" {
		t.Fatalf("authorization: got %q", gotAuth)
	}
	if gotKey != "client-id" || gotVersion != "2" {
		t.Fatalf("api headers: key=%q version=%q", gotKey, gotVersion)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	episode := events[0]
	if episode.ID != "999" || episode.Kind != core.EventKindEpisode {
		t.Fatalf("episode event: %+v", episode)
	}
	if episode.Show.Title != "Severance" || episode.Episode.Season != 2 || episode.Episode.Number != 3 {
		t.Fatalf("episode payload: %+v", episode)
	}
	if episode.Show.IDs.TMDB != 95396 {
		t.Fatalf("show tmdb id: got %d", episode.Show.IDs.TMDB)
	}
	movie := events[1]
	if movie.ID != "998" || movie.Kind != core.EventKindMovie {
		t.Fatalf("movie event: %+v", movie)
	}
	if movie.Movie.Title != "Heat" || movie.Movie.Year != 1995 || movie.Movie.IDs.Slug != "heat-1995" {
		t.Fatalf("movie payload: %+v", movie)
	}
}

func TestFetchSkipsUnrecognizedItems(t *testing.T) {
	client, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id": 1, "watched_at": "2026-02-10T19:00:00.000Z", "type": "season"},
			{"id": 2, "watched_at": "2026-02-10T20:00:00.000Z", "type": "movie",
			 "movie": {"title": "Ran", "year": 1985, "ids": {"trakt": 7, "slug": "ran-1985", "tmdb": 11645}}}
		]`))
	}))
	defer cleanup()

	events, err := client.Fetch(context.Background(), time.Now().Add(-time.Hour), 50, "access-token")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 1 || events[0].ID != "2" {
		t.Fatalf("expected only the movie event, got %+v", events)
	}
}

func TestFetchClassifiesErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		auth      bool
		transient bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, true, false},
		{"rate limited", http.StatusTooManyRequests, `{}`, false, true},
		{"server error", http.StatusInternalServerError, `{}`, false, true},
		{"unexpected status", http.StatusNotFound, `{}`, false, false},
		{"malformed body", http.StatusOK, `{"not": "an array"`, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer cleanup()

			_, err := client.Fetch(context.Background(), time.Now().Add(-time.Hour), 50, "access-token")
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := core.IsAuthError(err); got != tc.auth {
				t.Fatalf("IsAuthError = %v, want %v (%v)", got, tc.auth, err)
			}
			if got := core.IsTransientError(err); got != tc.transient {
				t.Fatalf("IsTransientError = %v, want %v (%v)", got, tc.transient, err)
			}
		})
	}
}

func TestExchangeReturnsRotatedPair(t *testing.T) {
	client, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/oauth/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "new-access",
			"refresh_token": "new-refresh",
			"expires_in": 7776000,
			"created_at": 1770000000,
			"token_type": "bearer"
		}`))
	}))
	defer cleanup()

	credential, err := client.Exchange(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if credential.AccessToken != "new-access" || credential.RefreshToken != "new-refresh" {
		t.Fatalf("credential: %+v", credential)
	}
	wantExpiry := time.Unix(1770000000, 0).UTC().Add(7776000 * time.Second)
	if !credential.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expires_at: got %s, want %s", credential.ExpiresAt, wantExpiry)
	}
}

func TestExchangeClassifiesRejection(t *testing.T) {
	client, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "invalid_grant", "error_description": "refresh token revoked"}`))
	}))
	defer cleanup()

	_, err := client.Exchange(context.Background(), "revoked-refresh")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !core.IsAuthError(err) {
		t.Fatalf("expected auth classification, got %v", err)
	}
}

func TestExchangeRequiresClientSecret(t *testing.T) {
	client, err := New(Config{ClientID: "client-id"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Exchange(context.Background(), "refresh"); err == nil {
		t.Fatalf("expected error without client secret")
	}
}
