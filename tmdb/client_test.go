package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/watchrelay/watchrelay/core"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	client, err := New(Config{
		BaseURL: server.URL,
		APIKey:  "tmdb-key",
	}, WithHTTPClient(server.Client()))
	if err != nil {
		server.Close()
		t.Fatalf("new client: %v", err)
	}
	return client, server.Close
}

func movieEvent() core.Event {
	return core.Event{
		ID:   "1",
		Kind: core.EventKindMovie,
		Movie: &core.MovieRef{
			Title: "Heat",
			Year:  1995,
			IDs:   core.MediaIDs{Trakt: 612, Slug: "heat-1995", TMDB: 949},
		},
	}
}

func episodeEvent() core.Event {
	return core.Event{
		ID:   "2",
		Kind: core.EventKindEpisode,
		Show: &core.ShowRef{
			Title: "Severance",
			IDs:   core.MediaIDs{Trakt: 180770, Slug: "severance", TMDB: 95396},
		},
		Episode: &core.EpisodeRef{Season: 2, Number: 3, Title: "The After Hours"},
	}
}

func TestLookupMovie(t *testing.T) {
	client, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/949" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if r.URL.Query().Get("api_key") != "tmdb-key" {
			t.Errorf("api_key: got %q", r.URL.Query().Get("api_key"))
		}
		_, _ = w.Write([]byte(`{
			"overview": "A group of high-end thieves...",
			"poster_path": "/heat-poster.jpg",
			"backdrop_path": "/heat-backdrop.jpg",
			"runtime": 170,
			"vote_average": 8.3,
			"genres": [{"name": "Crime"}, {"name": "Drama"}, {"name": "Thriller"}]
		}`))
	}))
	defer cleanup()

	metadata := client.Lookup(context.Background(), movieEvent())
	if metadata == nil {
		t.Fatalf("expected metadata")
	}
	if metadata.Overview != "A group of high-end thieves..." {
		t.Fatalf("overview: got %q", metadata.Overview)
	}
	if metadata.PosterPath != "/heat-poster.jpg" || metadata.BackdropPath != "/heat-backdrop.jpg" {
		t.Fatalf("images: %+v", metadata)
	}
	if metadata.RuntimeMinutes != 170 || metadata.VoteAverage != 8.3 {
		t.Fatalf("numbers: %+v", metadata)
	}
	if len(metadata.Genres) != 3 || metadata.Genres[0] != "Crime" {
		t.Fatalf("genres: %v", metadata.Genres)
	}
}

func TestLookupEpisodeMergesShowPoster(t *testing.T) {
	client, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tv/95396":
			_, _ = w.Write([]byte(`{"poster_path": "/severance-poster.jpg"}`))
		case "/tv/95396/season/2/episode/3":
			_, _ = w.Write([]byte(`{
				"overview": "Mark makes a discovery.",
				"still_path": "/still.jpg",
				"runtime": 48,
				"vote_average": 8.9
			}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer cleanup()

	metadata := client.Lookup(context.Background(), episodeEvent())
	if metadata == nil {
		t.Fatalf("expected metadata")
	}
	if metadata.ShowPosterPath != "/severance-poster.jpg" {
		t.Fatalf("show poster: got %q", metadata.ShowPosterPath)
	}
	if metadata.StillPath != "/still.jpg" || metadata.Overview != "Mark makes a discovery." {
		t.Fatalf("episode payload: %+v", metadata)
	}
}

func TestLookupEpisodeSurvivesShowLookupFailure(t *testing.T) {
	client, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tv/95396":
			w.WriteHeader(http.StatusInternalServerError)
		case "/tv/95396/season/2/episode/3":
			_, _ = w.Write([]byte(`{"overview": "Mark makes a discovery.", "runtime": 48}`))
		}
	}))
	defer cleanup()

	metadata := client.Lookup(context.Background(), episodeEvent())
	if metadata == nil {
		t.Fatalf("expected metadata despite show lookup failure")
	}
	if metadata.ShowPosterPath != "" {
		t.Fatalf("expected empty show poster, got %q", metadata.ShowPosterPath)
	}
	if metadata.RuntimeMinutes != 48 {
		t.Fatalf("runtime: got %d", metadata.RuntimeMinutes)
	}
}

func TestLookupDegradesToNil(t *testing.T) {
	client, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer cleanup()

	if metadata := client.Lookup(context.Background(), movieEvent()); metadata != nil {
		t.Fatalf("expected nil metadata on 404, got %+v", metadata)
	}

	noID := movieEvent()
	noID.Movie.IDs.TMDB = 0
	if metadata := client.Lookup(context.Background(), noID); metadata != nil {
		t.Fatalf("expected nil metadata without a tmdb id")
	}
}
