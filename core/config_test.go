package core

import (
	"context"
	"strings"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Source.ClientID = "client-id"
	cfg.Sink.WebhookURL = "https://discord.example/webhook"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	missingSink := validTestConfig()
	missingSink.Sink.WebhookURL = " "
	if err := missingSink.Validate(); err == nil {
		t.Fatalf("expected error for missing webhook url")
	}

	badDriver := validTestConfig()
	badDriver.Storage.Driver = "mysql"
	if err := badDriver.Validate(); err == nil {
		t.Fatalf("expected error for unsupported storage driver")
	}

	badInterval := validTestConfig()
	badInterval.PollIntervalSeconds = 0
	if err := badInterval.Validate(); err == nil {
		t.Fatalf("expected error for non-positive poll interval")
	}
}

func TestConfigDurationAccessors(t *testing.T) {
	cfg := validTestConfig()
	if got := cfg.PollInterval(); got != 3600*time.Second {
		t.Fatalf("poll interval: got %s", got)
	}
	if got := cfg.Lookback(); got != 24*time.Hour {
		t.Fatalf("lookback: got %s", got)
	}
	if got := cfg.ItemDelay(); got != 500*time.Millisecond {
		t.Fatalf("item delay: got %s", got)
	}
	if got := cfg.RetentionHorizon(); got != 30*24*time.Hour {
		t.Fatalf("retention horizon: got %s", got)
	}
}

func TestEnrichmentEnabled(t *testing.T) {
	cfg := validTestConfig()
	if cfg.EnrichmentEnabled() {
		t.Fatalf("expected enrichment disabled without an api key")
	}
	cfg.Enrichment.APIKey = "tmdb-key"
	if !cfg.EnrichmentEnabled() {
		t.Fatalf("expected enrichment enabled with an api key")
	}
}

func mapLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestEnvConfigLoaderPrefersNamespacedKeys(t *testing.T) {
	loader := EnvConfigLoader{Lookup: mapLookup(map[string]string{
		"WATCHRELAY_SOURCE_CLIENT_ID": "namespaced-id",
		"TRAKT_CLIENT_ID":             "legacy-id",
		"DISCORD_WEBHOOK_URL":         "https://discord.example/hook",
		"CHECK_INTERVAL":              "120",
	})}

	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	source, ok := raw["source"].(map[string]any)
	if !ok {
		t.Fatalf("expected source section, got %#v", raw)
	}
	if source["client_id"] != "namespaced-id" {
		t.Fatalf("expected namespaced key to win, got %v", source["client_id"])
	}
	sink, ok := raw["sink"].(map[string]any)
	if !ok || sink["webhook_url"] != "https://discord.example/hook" {
		t.Fatalf("expected legacy webhook fallback, got %#v", raw["sink"])
	}
	if raw["poll_interval_seconds"] != 120 {
		t.Fatalf("expected interval parsed from fallback, got %v", raw["poll_interval_seconds"])
	}
}

func TestEnvConfigLoaderRejectsBadIntegers(t *testing.T) {
	loader := EnvConfigLoader{Lookup: mapLookup(map[string]string{
		"WATCHRELAY_HISTORY_LIMIT": "fifty",
	})}
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected error for a non-numeric integer value")
	} else if !strings.Contains(err.Error(), "history_limit") {
		t.Fatalf("expected error to name the field, got %v", err)
	}
}

func TestGoOptionsResolverLayering(t *testing.T) {
	defaults := DefaultConfig()

	loaded := Config{}
	loaded.Source.ClientID = "loaded-id"
	loaded.Sink.WebhookURL = "https://discord.example/loaded"
	loaded.PollIntervalSeconds = 900

	runtime := Config{}
	runtime.PollIntervalSeconds = 60

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Source.ClientID != "loaded-id" {
		t.Fatalf("expected loaded client id, got %q", resolved.Source.ClientID)
	}
	if resolved.PollIntervalSeconds != 60 {
		t.Fatalf("expected runtime layer to win, got %d", resolved.PollIntervalSeconds)
	}
	if resolved.Storage.Driver != StorageDriverSQLite {
		t.Fatalf("expected default storage driver to survive, got %q", resolved.Storage.Driver)
	}
	if resolved.HistoryLimit != 50 {
		t.Fatalf("expected default history limit to survive, got %d", resolved.HistoryLimit)
	}
}

func TestGoOptionsResolverRejectsIncompleteResult(t *testing.T) {
	defaults := DefaultConfig()
	if _, err := (GoOptionsResolver{}).Resolve(defaults, Config{}, Config{}); err == nil {
		t.Fatalf("expected validation failure without required credentials")
	}
}
