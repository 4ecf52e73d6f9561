// Package trakt implements the watch-history source and token refresher
// against the Trakt v2 API.
package trakt

import (
	"bytes"
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
	DefaultBaseURL = "https://api.trakt.tv"

	apiVersion = "2"

	defaultHistoryTimeout = 15 * time.Second
	defaultTokenTimeout   = 15 * time.Second

	maxResponseBodyBytes = 4 << 20
)

// Config carries the OAuth application credentials. ClientSecret is only
// needed for token refresh.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string

	HistoryTimeout time.Duration
	TokenTimeout   time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     core.Logger
	now        func() time.Time
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

func WithNow(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func New(cfg Config, options ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("trakt: client id is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.HistoryTimeout <= 0 {
		cfg.HistoryTimeout = defaultHistoryTimeout
	}
	if cfg.TokenTimeout <= 0 {
		cfg.TokenTimeout = defaultTokenTimeout
	}

	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     glog.Nop(),
		now:        time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	return client, nil
}

type historyIDs struct {
	Trakt int64  `json:"trakt"`
	Slug  string `json:"slug"`
	TMDB  int64  `json:"tmdb"`
}

type historyMovie struct {
	Title string     `json:"title"`
	Year  int        `json:"year"`
	IDs   historyIDs `json:"ids"`
}

type historyShow struct {
	Title string     `json:"title"`
	IDs   historyIDs `json:"ids"`
}

type historyEpisode struct {
	Season int        `json:"season"`
	Number int        `json:"number"`
	Title  string     `json:"title"`
	IDs    historyIDs `json:"ids"`
}

type historyItem struct {
	ID        int64           `json:"id"`
	WatchedAt time.Time       `json:"watched_at"`
	Type      string          `json:"type"`
	Movie     *historyMovie   `json:"movie"`
	Show      *historyShow    `json:"show"`
	Episode   *historyEpisode `json:"episode"`
}

// Fetch returns the authenticated user's watch history since the given
// instant, newest first as the API reports it.
func (c *Client) Fetch(ctx context.Context, since time.Time, limit int, accessToken string) ([]core.Event, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("trakt: client is not configured")
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, core.NewUnauthorizedError("trakt: access token is required")
	}
	if limit <= 0 {
		limit = 50
	}

	query := url.Values{}
	query.Set("start_at", since.UTC().Format(time.RFC3339))
	query.Set("limit", strconv.Itoa(limit))
	endpoint := c.cfg.BaseURL + "/users/me/history?" + query.Encode()

	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.HistoryTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("trakt-api-version", apiVersion)
	httpReq.Header.Set("trakt-api-key", c.cfg.ClientID)
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewSourceUnavailableError(fmt.Sprintf("trakt: history request failed: %v", err))
	}
	defer response.Body.Close()

	body, err := readBoundedBody(response.Body)
	if err != nil {
		return nil, core.NewSourceUnavailableError(fmt.Sprintf("trakt: read history response: %v", err))
	}

	switch {
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return nil, core.NewUnauthorizedError(fmt.Sprintf("trakt: history request rejected (%d)", response.StatusCode))
	case response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= http.StatusInternalServerError:
		return nil, core.NewSourceUnavailableError(fmt.Sprintf("trakt: history endpoint error (%d)", response.StatusCode))
	case response.StatusCode != http.StatusOK:
		return nil, core.NewSourceMalformedError(fmt.Sprintf("trakt: unexpected history status (%d)", response.StatusCode))
	}

	var items []historyItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, core.NewSourceMalformedError(fmt.Sprintf("trakt: decode history response: %v", err))
	}

	events := make([]core.Event, 0, len(items))
	for _, item := range items {
		event, convErr := item.toDomain()
		if convErr != nil {
			c.logger.Warn("skipping unrecognized history item",
				"item_id", item.ID,
				"item_type", item.Type,
				"error", convErr.Error(),
			)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (item historyItem) toDomain() (core.Event, error) {
	event := core.Event{
		ID:         strconv.FormatInt(item.ID, 10),
		OccurredAt: item.WatchedAt.UTC(),
	}
	switch item.Type {
	case string(core.EventKindMovie):
		if item.Movie == nil {
			return core.Event{}, fmt.Errorf("trakt: movie item %d has no movie payload", item.ID)
		}
		event.Kind = core.EventKindMovie
		event.Movie = &core.MovieRef{
			Title: item.Movie.Title,
			Year:  item.Movie.Year,
			IDs:   item.Movie.IDs.toDomain(),
		}
	case string(core.EventKindEpisode):
		if item.Show == nil || item.Episode == nil {
			return core.Event{}, fmt.Errorf("trakt: episode item %d is missing show or episode payload", item.ID)
		}
		event.Kind = core.EventKindEpisode
		event.Show = &core.ShowRef{
			Title: item.Show.Title,
			IDs:   item.Show.IDs.toDomain(),
		}
		event.Episode = &core.EpisodeRef{
			Season: item.Episode.Season,
			Number: item.Episode.Number,
			Title:  item.Episode.Title,
			IDs:    item.Episode.IDs.toDomain(),
		}
	default:
		return core.Event{}, fmt.Errorf("trakt: unsupported item type %q", item.Type)
	}
	if err := event.Validate(); err != nil {
		return core.Event{}, err
	}
	return event, nil
}

func (ids historyIDs) toDomain() core.MediaIDs {
	return core.MediaIDs{
		Trakt: ids.Trakt,
		Slug:  ids.Slug,
		TMDB:  ids.TMDB,
	}
}

type tokenRequest struct {
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
	GrantType    string `json:"grant_type"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	CreatedAt        int64  `json:"created_at"`
	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange swaps a refresh token for a new access/refresh pair.
func (c *Client) Exchange(ctx context.Context, refreshToken string) (core.Credential, error) {
	if c == nil || c.httpClient == nil {
		return core.Credential{}, fmt.Errorf("trakt: client is not configured")
	}
	if strings.TrimSpace(refreshToken) == "" {
		return core.Credential{}, fmt.Errorf("trakt: refresh token is required")
	}
	if strings.TrimSpace(c.cfg.ClientSecret) == "" {
		return core.Credential{}, fmt.Errorf("trakt: client secret is required for token refresh")
	}

	payload, err := json.Marshal(tokenRequest{
		RefreshToken: refreshToken,
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURI:  "urn:ietf:wg:oauth:2.0:oob",
		GrantType:    "refresh_token",
	})
	if err != nil {
		return core.Credential{}, err
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.TokenTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		c.cfg.BaseURL+"/oauth/token",
		bytes.NewReader(payload),
	)
	if err != nil {
		return core.Credential{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return core.Credential{}, core.NewSourceUnavailableError(fmt.Sprintf("trakt: token request failed: %v", err))
	}
	defer response.Body.Close()

	body, err := readBoundedBody(response.Body)
	if err != nil {
		return core.Credential{}, core.NewSourceUnavailableError(fmt.Sprintf("trakt: read token response: %v", err))
	}

	var parsed tokenResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			return core.Credential{}, core.NewSourceMalformedError(fmt.Sprintf("trakt: decode token response: %v", err))
		}
	}

	switch {
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden || response.StatusCode == http.StatusBadRequest:
		return core.Credential{}, core.NewUnauthorizedError(fmt.Sprintf(
			"trakt: token endpoint rejected refresh (%d): %s",
			response.StatusCode,
			describeTokenError(parsed),
		))
	case response.StatusCode != http.StatusOK:
		return core.Credential{}, core.NewSourceUnavailableError(fmt.Sprintf(
			"trakt: token endpoint error (%d)", response.StatusCode,
		))
	}

	if strings.TrimSpace(parsed.AccessToken) == "" || strings.TrimSpace(parsed.RefreshToken) == "" {
		return core.Credential{}, core.NewSourceMalformedError("trakt: token response missing access or refresh token")
	}

	credential := core.Credential{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
	}
	if parsed.ExpiresIn > 0 {
		issuedAt := c.now().UTC()
		if parsed.CreatedAt > 0 {
			issuedAt = time.Unix(parsed.CreatedAt, 0).UTC()
		}
		credential.ExpiresAt = issuedAt.Add(time.Duration(parsed.ExpiresIn) * time.Second)
	}
	return credential, nil
}

func describeTokenError(parsed tokenResponse) string {
	if strings.TrimSpace(parsed.ErrorDescription) != "" {
		return strings.TrimSpace(parsed.ErrorDescription)
	}
	if strings.TrimSpace(parsed.ErrorCode) != "" {
		return strings.TrimSpace(parsed.ErrorCode)
	}
	return "unknown error"
}

func readBoundedBody(reader io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(reader, maxResponseBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxResponseBodyBytes)
	}
	return body, nil
}

var (
	_ core.HistorySource  = (*Client)(nil)
	_ core.TokenRefresher = (*Client)(nil)
)
