package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	source := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Source.ClientID) != "" {
		source["client_id"] = cfg.Source.ClientID
	}
	if includeZero || strings.TrimSpace(cfg.Source.ClientSecret) != "" {
		source["client_secret"] = cfg.Source.ClientSecret
	}
	if includeZero || strings.TrimSpace(cfg.Source.AccessToken) != "" {
		source["access_token"] = cfg.Source.AccessToken
	}
	if includeZero || strings.TrimSpace(cfg.Source.RefreshToken) != "" {
		source["refresh_token"] = cfg.Source.RefreshToken
	}
	if len(source) > 0 {
		layer["source"] = source
	}

	if includeZero || strings.TrimSpace(cfg.Enrichment.APIKey) != "" {
		layer["enrichment"] = map[string]any{"api_key": cfg.Enrichment.APIKey}
	}
	if includeZero || strings.TrimSpace(cfg.Sink.WebhookURL) != "" {
		layer["sink"] = map[string]any{"webhook_url": cfg.Sink.WebhookURL}
	}

	storage := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Storage.Driver) != "" {
		storage["driver"] = cfg.Storage.Driver
	}
	if includeZero || strings.TrimSpace(cfg.Storage.DSN) != "" {
		storage["dsn"] = cfg.Storage.DSN
	}
	if len(storage) > 0 {
		layer["storage"] = storage
	}

	for key, value := range map[string]int{
		"poll_interval_seconds": cfg.PollIntervalSeconds,
		"lookback_hours":        cfg.LookbackHours,
		"history_limit":         cfg.HistoryLimit,
		"item_delay_millis":     cfg.ItemDelayMillis,
		"refresh_lead_hours":    cfg.RefreshLeadHours,
		"retention_days":        cfg.RetentionDays,
	} {
		if includeZero || value != 0 {
			layer[key] = value
		}
	}
	return layer
}

// EnvConfigLoader reads configuration from environment-style key/value pairs.
// WATCHRELAY_* keys win; the bare names used by earlier deployments
// (TRAKT_CLIENT_ID, DISCORD_WEBHOOK_URL, ...) are accepted as fallbacks.
type EnvConfigLoader struct {
	Lookup func(key string) (string, bool)
}

func NewEnvConfigLoader() EnvConfigLoader {
	return EnvConfigLoader{Lookup: os.LookupEnv}
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	first := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value), true
			}
		}
		return "", false
	}

	raw := map[string]any{}
	setNested := func(section string, key string, value string) {
		nested, ok := raw[section].(map[string]any)
		if !ok {
			nested = map[string]any{}
			raw[section] = nested
		}
		nested[key] = value
	}

	if value, ok := first("WATCHRELAY_SERVICE_NAME"); ok {
		raw["service_name"] = value
	}
	if value, ok := first("WATCHRELAY_SOURCE_CLIENT_ID", "TRAKT_CLIENT_ID"); ok {
		setNested("source", "client_id", value)
	}
	if value, ok := first("WATCHRELAY_SOURCE_CLIENT_SECRET", "TRAKT_CLIENT_SECRET"); ok {
		setNested("source", "client_secret", value)
	}
	if value, ok := first("WATCHRELAY_SOURCE_ACCESS_TOKEN", "TRAKT_ACCESS_TOKEN"); ok {
		setNested("source", "access_token", value)
	}
	if value, ok := first("WATCHRELAY_SOURCE_REFRESH_TOKEN", "TRAKT_REFRESH_TOKEN"); ok {
		setNested("source", "refresh_token", value)
	}
	if value, ok := first("WATCHRELAY_ENRICHMENT_API_KEY", "TMDB_API_KEY"); ok {
		setNested("enrichment", "api_key", value)
	}
	if value, ok := first("WATCHRELAY_SINK_WEBHOOK_URL", "DISCORD_WEBHOOK_URL"); ok {
		setNested("sink", "webhook_url", value)
	}
	if value, ok := first("WATCHRELAY_STORAGE_DRIVER"); ok {
		setNested("storage", "driver", value)
	}
	if value, ok := first("WATCHRELAY_STORAGE_DSN", "DATABASE_URL"); ok {
		setNested("storage", "dsn", value)
	}

	for _, entry := range []struct {
		field string
		keys  []string
	}{
		{"poll_interval_seconds", []string{"WATCHRELAY_POLL_INTERVAL_SECONDS", "CHECK_INTERVAL"}},
		{"lookback_hours", []string{"WATCHRELAY_LOOKBACK_HOURS"}},
		{"history_limit", []string{"WATCHRELAY_HISTORY_LIMIT"}},
		{"item_delay_millis", []string{"WATCHRELAY_ITEM_DELAY_MILLIS"}},
		{"refresh_lead_hours", []string{"WATCHRELAY_REFRESH_LEAD_HOURS"}},
		{"retention_days", []string{"WATCHRELAY_RETENTION_DAYS"}},
	} {
		value, ok := first(entry.keys...)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("core: %s: invalid integer %q", entry.field, value)
		}
		raw[entry.field] = parsed
	}

	return raw, nil
}
