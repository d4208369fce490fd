// Package config defines the service configuration and how it is loaded.
package config

import "time"

// Config contains process configuration.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":5200".
	Addr string `koanf:"addr"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DatabaseURL is the postgres DSN.
	DatabaseURL string `koanf:"database_url"`

	// GatewayToken is the shared bearer token every request must carry.
	GatewayToken string `koanf:"gateway_token"`

	// AllowedOrigins is a comma separated CORS origin list.
	AllowedOrigins string `koanf:"allowed_origins"`

	// StreamIntervalMS is the timer broadcast cadence.
	StreamIntervalMS int `koanf:"stream_interval_ms"`

	// SweepIntervalMS is the cadence of the unattended auto-advance sweep. 0 disables it.
	SweepIntervalMS int `koanf:"sweep_interval_ms"`

	// AutoStartClock starts the blind clock as soon as a game date starts.
	AutoStartClock bool `koanf:"auto_start_clock"`

	NotifyURL   string `koanf:"notify_url"`
	NotifyToken string `koanf:"notify_token"`

	PlayerSyncURL        string `koanf:"player_sync_url"`
	PlayerSyncPath       string `koanf:"player_sync_path"`
	PlayerSyncIntervalMS int    `koanf:"player_sync_interval_ms"`

	R2AccountID       string `koanf:"r2_account_id"`
	R2AccessKeyID     string `koanf:"r2_access_key_id"`
	R2AccessKeySecret string `koanf:"r2_access_key_secret"`
	R2Bucket          string `koanf:"r2_bucket"`
	R2CDNBaseURL      string `koanf:"r2_cdn_base_url"`

	MetricsEnabled bool `koanf:"metrics_enabled"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Addr:                 ":5200",
		LogLevel:             "info",
		AllowedOrigins:       "http://localhost:3000",
		StreamIntervalMS:     1000,
		SweepIntervalMS:      5000,
		AutoStartClock:       true,
		PlayerSyncPath:       "/api/v1/public/profiles",
		PlayerSyncIntervalMS: 60_000,
		MetricsEnabled:       true,
	}
}

func (c *Config) StreamInterval() time.Duration {
	return time.Duration(c.StreamIntervalMS) * time.Millisecond
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

func (c *Config) PlayerSyncInterval() time.Duration {
	return time.Duration(c.PlayerSyncIntervalMS) * time.Millisecond
}

// R2Enabled reports whether result archiving has enough settings to run.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != "" && c.R2Bucket != ""
}
