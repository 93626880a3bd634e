package devserver

import (
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/flagx"
)

// Config holds runtime settings for the development server.
//
// Fields:
//   - Address: listen address.
//   - APIVersion: first path segment of every route.
//   - SecretKey: HMAC secret for signing access tokens (HS256). Test default only.
//   - AccessTokenTTL / RefreshTokenTTL: token lifetimes.
//   - LogLevel: slog level name.
type Config struct {
	Address         string
	APIVersion      string
	SecretKey       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	LogLevel        string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Address = ":3000"
	c.APIVersion = "v1"
	c.SecretKey = "secretKey"
	c.AccessTokenTTL = 15 * time.Minute
	c.RefreshTokenTTL = 7 * 24 * time.Hour
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// JsonConfig is the on-disk shape of Config. Durations are seconds.
type JsonConfig struct {
	Address            *string `json:"address"`
	APIVersion         *string `json:"apiVersion"`
	SecretKey          *string `json:"secretKey"`
	AccessTokenTTLSec  *int64  `json:"accessTokenTtlSec"`
	RefreshTokenTTLSec *int64  `json:"refreshTokenTtlSec"`
	LogLevel           *string `json:"logLevel"`
}

// parseJson overlays config with the JSON file named by -c/-config, if any.
// Panics if the file cannot be read or parsed.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.Address != nil {
		config.Address = *c.Address
	}
	if c.APIVersion != nil {
		config.APIVersion = *c.APIVersion
	}
	if c.SecretKey != nil {
		config.SecretKey = *c.SecretKey
	}
	if c.AccessTokenTTLSec != nil {
		config.AccessTokenTTL = time.Duration(*c.AccessTokenTTLSec) * time.Second
	}
	if c.RefreshTokenTTLSec != nil {
		config.RefreshTokenTTL = time.Duration(*c.RefreshTokenTTLSec) * time.Second
	}
	if c.LogLevel != nil {
		config.LogLevel = *c.LogLevel
	}
}

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   listen address (e.g. ":3000")
//	-s string   JWT HMAC secret key
//	-at int     access token lifetime, seconds
//	-rt int     refresh token lifetime, seconds
func parseFlags(config *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.Address, "a", config.Address, "address and port to run server")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	accessTTL := fs.Int64("at", int64(config.AccessTokenTTL.Seconds()), "access token lifetime (in seconds)")
	refreshTTL := fs.Int64("rt", int64(config.RefreshTokenTTL.Seconds()), "refresh token lifetime (in seconds)")

	if err := flagx.Parse(fs, os.Args[1:]); err != nil {
		panic(err)
	}

	config.AccessTokenTTL = time.Duration(*accessTTL) * time.Second
	config.RefreshTokenTTL = time.Duration(*refreshTTL) * time.Second
}
