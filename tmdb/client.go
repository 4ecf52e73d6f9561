// Package tmdb enriches watch events with metadata from The Movie Database.
// Enrichment is best effort: every failure degrades to a nil result and the
// notification goes out without it.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/watchrelay/watchrelay/core"
)

const (
	DefaultBaseURL = "https://api.themoviedb.org/3"

	defaultLookupTimeout = 10 * time.Second

	maxResponseBodyBytes = 4 << 20
)

type Config struct {
	BaseURL string
	APIKey  string

	LookupTimeout time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     core.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(cfg Config, options ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("tmdb: api key is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}

	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     glog.Nop(),
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	return client, nil
}

type genrePayload struct {
	Name string `json:"name"`
}

type moviePayload struct {
	Overview     string         `json:"overview"`
	PosterPath   string         `json:"poster_path"`
	BackdropPath string         `json:"backdrop_path"`
	Runtime      int            `json:"runtime"`
	VoteAverage  float64        `json:"vote_average"`
	Genres       []genrePayload `json:"genres"`
}

type showPayload struct {
	PosterPath string `json:"poster_path"`
}

type episodePayload struct {
	Overview    string  `json:"overview"`
	StillPath   string  `json:"still_path"`
	Runtime     int     `json:"runtime"`
	VoteAverage float64 `json:"vote_average"`
}

// Lookup fetches metadata for the event. A nil return means no metadata is
// available; the caller proceeds without it.
func (c *Client) Lookup(ctx context.Context, event core.Event) *core.Metadata {
	if c == nil || c.httpClient == nil {
		return nil
	}
	switch event.Kind {
	case core.EventKindMovie:
		if event.Movie == nil || event.Movie.IDs.TMDB == 0 {
			return nil
		}
		return c.lookupMovie(ctx, event.Movie.IDs.TMDB)
	case core.EventKindEpisode:
		if event.Show == nil || event.Episode == nil || event.Show.IDs.TMDB == 0 {
			return nil
		}
		return c.lookupEpisode(ctx, event.Show.IDs.TMDB, event.Episode.Season, event.Episode.Number)
	default:
		return nil
	}
}

func (c *Client) lookupMovie(ctx context.Context, tmdbID int64) *core.Metadata {
	var payload moviePayload
	endpoint := fmt.Sprintf("%s/movie/%d", c.cfg.BaseURL, tmdbID)
	if !c.getJSON(ctx, endpoint, &payload) {
		return nil
	}

	metadata := &core.Metadata{
		Overview:       payload.Overview,
		PosterPath:     payload.PosterPath,
		BackdropPath:   payload.BackdropPath,
		RuntimeMinutes: payload.Runtime,
		VoteAverage:    payload.VoteAverage,
	}
	for _, genre := range payload.Genres {
		if strings.TrimSpace(genre.Name) == "" {
			continue
		}
		metadata.Genres = append(metadata.Genres, genre.Name)
	}
	return metadata
}

func (c *Client) lookupEpisode(ctx context.Context, showID int64, season int, number int) *core.Metadata {
	// The show lookup only contributes the poster; its failure does not
	// block the episode lookup.
	var show showPayload
	showEndpoint := fmt.Sprintf("%s/tv/%d", c.cfg.BaseURL, showID)
	showFound := c.getJSON(ctx, showEndpoint, &show)

	var episode episodePayload
	episodeEndpoint := fmt.Sprintf(
		"%s/tv/%d/season/%s/episode/%s",
		c.cfg.BaseURL,
		showID,
		strconv.Itoa(season),
		strconv.Itoa(number),
	)
	if !c.getJSON(ctx, episodeEndpoint, &episode) {
		return nil
	}

	metadata := &core.Metadata{
		Overview:       episode.Overview,
		StillPath:      episode.StillPath,
		RuntimeMinutes: episode.Runtime,
		VoteAverage:    episode.VoteAverage,
	}
	if showFound {
		metadata.ShowPosterPath = show.PosterPath
	}
	return metadata
}

func (c *Client) getJSON(ctx context.Context, endpoint string, target any) bool {
	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	query := url.Values{}
	query.Set("api_key", c.cfg.APIKey)

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		c.logger.Warn("metadata request build failed", "endpoint", endpoint, "error", err.Error())
		return false
	}
	httpReq.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("metadata request failed", "endpoint", endpoint, "error", err.Error())
		return false
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		c.logger.Warn("metadata endpoint returned non-200", "endpoint", endpoint, "status", response.StatusCode)
		return false
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if err != nil || int64(len(body)) > maxResponseBodyBytes {
		c.logger.Warn("metadata response read failed", "endpoint", endpoint)
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		c.logger.Warn("metadata response decode failed", "endpoint", endpoint, "error", err.Error())
		return false
	}
	return true
}

var _ core.MetadataEnricher = (*Client)(nil)
