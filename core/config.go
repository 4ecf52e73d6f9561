package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	StorageDriverSQLite   = "sqlite3"
	StorageDriverPostgres = "postgres"
)

type SourceConfig struct {
	ClientID     string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string `koanf:"client_secret" mapstructure:"client_secret"`
	AccessToken  string `koanf:"access_token" mapstructure:"access_token"`
	RefreshToken string `koanf:"refresh_token" mapstructure:"refresh_token"`
}

type EnrichmentConfig struct {
	// APIKey empty disables enrichment; the pipeline still runs.
	APIKey string `koanf:"api_key" mapstructure:"api_key"`
}

type SinkConfig struct {
	WebhookURL string `koanf:"webhook_url" mapstructure:"webhook_url"`
}

type StorageConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
}

type Config struct {
	ServiceName         string           `koanf:"service_name" mapstructure:"service_name"`
	Source              SourceConfig     `koanf:"source" mapstructure:"source"`
	Enrichment          EnrichmentConfig `koanf:"enrichment" mapstructure:"enrichment"`
	Sink                SinkConfig       `koanf:"sink" mapstructure:"sink"`
	Storage             StorageConfig    `koanf:"storage" mapstructure:"storage"`
	PollIntervalSeconds int              `koanf:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`
	LookbackHours       int              `koanf:"lookback_hours" mapstructure:"lookback_hours"`
	HistoryLimit        int              `koanf:"history_limit" mapstructure:"history_limit"`
	ItemDelayMillis     int              `koanf:"item_delay_millis" mapstructure:"item_delay_millis"`
	RefreshLeadHours    int              `koanf:"refresh_lead_hours" mapstructure:"refresh_lead_hours"`
	RetentionDays       int              `koanf:"retention_days" mapstructure:"retention_days"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "watchrelay",
		Storage: StorageConfig{
			Driver: StorageDriverSQLite,
			DSN:    "file:watchrelay.db?_foreign_keys=on",
		},
		PollIntervalSeconds: 3600,
		LookbackHours:       24,
		HistoryLimit:        50,
		ItemDelayMillis:     500,
		RefreshLeadHours:    24,
		RetentionDays:       30,
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("core: config is nil")
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Source.ClientID) == "" {
		return fmt.Errorf("core: source client_id is required")
	}
	if strings.TrimSpace(c.Sink.WebhookURL) == "" {
		return fmt.Errorf("core: sink webhook_url is required")
	}
	driver := strings.TrimSpace(strings.ToLower(c.Storage.Driver))
	if driver != StorageDriverSQLite && driver != StorageDriverPostgres {
		return fmt.Errorf("core: storage driver %q is not supported", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.DSN) == "" {
		return fmt.Errorf("core: storage dsn is required")
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("core: poll_interval_seconds must be positive")
	}
	if c.LookbackHours <= 0 {
		return fmt.Errorf("core: lookback_hours must be positive")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("core: history_limit must be positive")
	}
	if c.ItemDelayMillis < 0 {
		return fmt.Errorf("core: item_delay_millis must not be negative")
	}
	if c.RefreshLeadHours <= 0 {
		return fmt.Errorf("core: refresh_lead_hours must be positive")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("core: retention_days must be positive")
	}
	return nil
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c Config) Lookback() time.Duration {
	return time.Duration(c.LookbackHours) * time.Hour
}

func (c Config) ItemDelay() time.Duration {
	return time.Duration(c.ItemDelayMillis) * time.Millisecond
}

func (c Config) RefreshLead() time.Duration {
	return time.Duration(c.RefreshLeadHours) * time.Hour
}

func (c Config) RetentionHorizon() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// EnrichmentEnabled reports whether the optional enrichment API is
// configured. Its absence disables enrichment, never the pipeline.
func (c Config) EnrichmentEnabled() bool {
	return strings.TrimSpace(c.Enrichment.APIKey) != ""
}
