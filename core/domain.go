package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrCredentialNotFound = errors.New("core: credential not found")
	ErrInvalidEventKind   = errors.New("core: invalid event kind")
)

type EventKind string

const (
	EventKindMovie   EventKind = "movie"
	EventKindEpisode EventKind = "episode"
)

// MediaIDs carries the source-assigned identifiers for a piece of media.
// TMDB is optional; zero means the enricher has nothing to look up.
type MediaIDs struct {
	Trakt int64
	Slug  string
	TMDB  int64
}

type MovieRef struct {
	Title string
	Year  int
	IDs   MediaIDs
}

type ShowRef struct {
	Title string
	IDs   MediaIDs
}

type EpisodeRef struct {
	Season int
	Number int
	Title  string
	IDs    MediaIDs
}

// Event is a single watch record fetched from the history source. It is
// immutable: the source assigns ID and never reuses it, and watchrelay keeps
// nothing of the event beyond its ID once delivery succeeds.
type Event struct {
	ID         string
	Kind       EventKind
	OccurredAt time.Time

	// Exactly one of the following pairs is set, matching Kind.
	Movie   *MovieRef
	Show    *ShowRef
	Episode *EpisodeRef
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("core: event id is required")
	}
	switch e.Kind {
	case EventKindMovie:
		if e.Movie == nil {
			return fmt.Errorf("core: movie event %q is missing movie payload", e.ID)
		}
	case EventKindEpisode:
		if e.Show == nil || e.Episode == nil {
			return fmt.Errorf("core: episode event %q is missing show or episode payload", e.ID)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEventKind, e.Kind)
	}
	return nil
}

// Title returns a short human-readable description used in logs.
func (e Event) Title() string {
	switch e.Kind {
	case EventKindMovie:
		if e.Movie != nil {
			return fmt.Sprintf("%s (%d)", e.Movie.Title, e.Movie.Year)
		}
	case EventKindEpisode:
		if e.Show != nil && e.Episode != nil {
			return fmt.Sprintf("%s S%02dE%02d", e.Show.Title, e.Episode.Season, e.Episode.Number)
		}
	}
	return e.ID
}

// Metadata is the best-effort descriptive augmentation looked up from the
// enrichment API. A nil *Metadata means the bare composition path is used.
type Metadata struct {
	Overview       string
	PosterPath     string
	BackdropPath   string
	StillPath      string
	ShowPosterPath string
	RuntimeMinutes int
	VoteAverage    float64
	Genres         []string
}

// Credential is the current access/refresh pair. Exactly one live Credential
// exists at a time; the token store replaces it wholesale, never per-field.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (c Credential) Validate() error {
	if strings.TrimSpace(c.AccessToken) == "" {
		return fmt.Errorf("core: credential access token is required")
	}
	if strings.TrimSpace(c.RefreshToken) == "" {
		return fmt.Errorf("core: credential refresh token is required")
	}
	return nil
}

// DeliveryRecord is the durable fact that the event with EventID has been
// delivered. At most one record exists per event id.
type DeliveryRecord struct {
	EventID     string
	DeliveredAt time.Time
}

// Payload is a wire-ready notification body produced by a Composer.
type Payload struct {
	Body    []byte
	Summary string
}

// SortEventsOldestFirst orders events ascending by occurrence time so
// delivered notifications read chronologically. The sort is stable: the
// source's relative order is kept for equal timestamps.
func SortEventsOldestFirst(events []Event) []Event {
	ordered := append([]Event(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OccurredAt.Before(ordered[j].OccurredAt)
	})
	return ordered
}
