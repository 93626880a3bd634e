package config

import "time"

// Config holds runtime settings for the CLI.
//
// Durations are kept as time.Duration here; the JSON file and the flags
// express them in milliseconds.
type Config struct {
	BaseURL          string
	APIVersion       string
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	RefreshThreshold time.Duration
	DatabasePath     string
	StorageSecret    string
	DeviceID         string
	LogLevel         string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = "http://localhost:3000"
	c.APIVersion = "v1"
	c.Timeout = 30 * time.Second
	c.MaxRetries = 3
	c.RetryDelay = time.Second
	c.RefreshThreshold = 5 * time.Minute
	c.DatabasePath = "client.db"
	c.StorageSecret = ""
	c.DeviceID = ""
	c.LogLevel = "warn"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
