// Package discord renders watch events into webhook embeds and delivers
// them.
package discord

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/watchrelay/watchrelay/core"
)

const (
	colorBlue   = 0x5865F2
	colorGreen  = 0x57F287
	colorYellow = 0xFEE75C
	colorPink   = 0xEB459E
	colorRed    = 0xED4245

	footerText    = "Trakt • via Infuse"
	footerIconURL = "https://walter.trakt.tv/hotlink-ok/public/favicon.ico"

	posterImageBase   = "https://image.tmdb.org/t/p/w500"
	backdropImageBase = "https://image.tmdb.org/t/p/original"

	watchedAtLayout = "Jan 02, 2006 at 03:04 PM"

	maxGenresShown = 4
)

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	URL         string       `json:"url,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Thumbnail   *embedImage  `json:"thumbnail,omitempty"`
	Image       *embedImage  `json:"image,omitempty"`
}

type webhookBody struct {
	Embeds []embed `json:"embeds"`
}

// Composer renders events into Discord webhook payloads.
type Composer struct{}

func NewComposer() *Composer {
	return &Composer{}
}

func (c *Composer) Compose(event core.Event, metadata *core.Metadata) (core.Payload, error) {
	if err := event.Validate(); err != nil {
		return core.Payload{}, err
	}

	var rendered embed
	switch event.Kind {
	case core.EventKindMovie:
		rendered = composeMovie(event, metadata)
	case core.EventKindEpisode:
		rendered = composeEpisode(event, metadata)
	default:
		return core.Payload{}, fmt.Errorf("discord: unsupported event kind %q", event.Kind)
	}

	body, err := json.Marshal(webhookBody{Embeds: []embed{rendered}})
	if err != nil {
		return core.Payload{}, fmt.Errorf("discord: encode webhook body: %w", err)
	}
	return core.Payload{
		Body:    body,
		Summary: event.Title(),
	}, nil
}

func composeMovie(event core.Event, metadata *core.Metadata) embed {
	movie := event.Movie

	year := "N/A"
	if movie.Year > 0 {
		year = fmt.Sprintf("%d", movie.Year)
	}

	description := "Just finished watching!"
	if metadata != nil {
		description = "Just finished watching this movie!"
		if strings.TrimSpace(metadata.Overview) != "" {
			description = metadata.Overview
		}
	}

	rendered := embed{
		Title:       fmt.Sprintf("🎬 %s (%s)", movie.Title, year),
		Description: description,
		Color:       colorFromRating(metadata),
		Fields:      []embedField{watchedField(event.OccurredAt)},
		Footer:      &embedFooter{Text: footerText, IconURL: footerIconURL},
		Timestamp:   event.OccurredAt.UTC().Format(time.RFC3339),
	}
	if strings.TrimSpace(movie.IDs.Slug) != "" {
		rendered.URL = "https://trakt.tv/movies/" + movie.IDs.Slug
	}

	if metadata != nil {
		if metadata.PosterPath != "" {
			rendered.Thumbnail = &embedImage{URL: posterImageBase + metadata.PosterPath}
		}
		if metadata.BackdropPath != "" {
			rendered.Image = &embedImage{URL: backdropImageBase + metadata.BackdropPath}
		}
		if metadata.RuntimeMinutes > 0 {
			rendered.Fields = append(rendered.Fields, embedField{
				Name:   "⏱️ Runtime",
				Value:  fmt.Sprintf("%dh %dm", metadata.RuntimeMinutes/60, metadata.RuntimeMinutes%60),
				Inline: true,
			})
		}
		if metadata.VoteAverage > 0 {
			rendered.Fields = append(rendered.Fields, ratingField(metadata.VoteAverage))
		}
		if len(metadata.Genres) > 0 {
			genres := metadata.Genres
			if len(genres) > maxGenresShown {
				genres = genres[:maxGenresShown]
			}
			rendered.Fields = append(rendered.Fields, embedField{
				Name:  "🎭 Genres",
				Value: strings.Join(genres, ", "),
			})
		}
	}
	return rendered
}

func composeEpisode(event core.Event, metadata *core.Metadata) embed {
	show := event.Show
	episode := event.Episode

	description := fmt.Sprintf("**Season %d, Episode %d**", episode.Season, episode.Number)
	if strings.TrimSpace(episode.Title) != "" {
		description += " - " + episode.Title
	}
	description += "\n\n"
	if metadata != nil && strings.TrimSpace(metadata.Overview) != "" {
		description += metadata.Overview
	} else {
		description += "Just finished watching this episode!"
	}

	rendered := embed{
		Title:       "📺 " + show.Title,
		Description: description,
		Color:       colorBlue,
		Fields:      []embedField{watchedField(event.OccurredAt)},
		Footer:      &embedFooter{Text: footerText, IconURL: footerIconURL},
		Timestamp:   event.OccurredAt.UTC().Format(time.RFC3339),
	}
	if strings.TrimSpace(show.IDs.Slug) != "" {
		rendered.URL = fmt.Sprintf(
			"https://trakt.tv/shows/%s/seasons/%d/episodes/%d",
			show.IDs.Slug, episode.Season, episode.Number,
		)
	}

	if metadata != nil {
		if metadata.ShowPosterPath != "" {
			rendered.Thumbnail = &embedImage{URL: posterImageBase + metadata.ShowPosterPath}
		}
		if metadata.StillPath != "" {
			rendered.Image = &embedImage{URL: posterImageBase + metadata.StillPath}
		}
		if metadata.RuntimeMinutes > 0 {
			rendered.Fields = append(rendered.Fields, embedField{
				Name:   "⏱️ Runtime",
				Value:  fmt.Sprintf("%d min", metadata.RuntimeMinutes),
				Inline: true,
			})
		}
		if metadata.VoteAverage > 0 {
			rendered.Fields = append(rendered.Fields, ratingField(metadata.VoteAverage))
		}
	}
	return rendered
}

func watchedField(occurredAt time.Time) embedField {
	return embedField{
		Name:   "🕐 Watched",
		Value:  occurredAt.UTC().Format(watchedAtLayout),
		Inline: true,
	}
}

func ratingField(voteAverage float64) embedField {
	return embedField{
		Name:   "⭐ Rating",
		Value:  fmt.Sprintf("%.1f/10", voteAverage),
		Inline: true,
	}
}

func colorFromRating(metadata *core.Metadata) int {
	if metadata == nil || metadata.VoteAverage <= 0 {
		return colorBlue
	}
	switch {
	case metadata.VoteAverage >= 8:
		return colorGreen
	case metadata.VoteAverage >= 7:
		return colorYellow
	case metadata.VoteAverage >= 6:
		return colorPink
	default:
		return colorRed
	}
}

var _ core.Composer = (*Composer)(nil)
