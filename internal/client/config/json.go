package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// are integer milliseconds. Pointer fields distinguish "absent" from zero,
// so a file may set only some keys.
type JsonConfig struct {
	BaseURL            *string `json:"baseURL"`
	APIVersion         *string `json:"apiVersion"`
	TimeoutMs          *int64  `json:"timeoutMs"`
	MaxRetries         *int    `json:"maxRetries"`
	RetryDelayMs       *int64  `json:"retryDelayMs"`
	RefreshThresholdMs *int64  `json:"refreshThresholdMs"`
	DatabasePath       *string `json:"databasePath"`
	StorageSecret      *string `json:"storageSecret"`
	DeviceID           *string `json:"deviceId"`
	LogLevel           *string `json:"logLevel"`
}

// parseJson overlays Config with values loaded from a JSON file whose path
// is given with -c or -config. Without either flag nothing is loaded.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.BaseURL, jc.BaseURL)
	setString(&cfg.APIVersion, jc.APIVersion)
	setMillis(&cfg.Timeout, jc.TimeoutMs)
	if jc.MaxRetries != nil {
		cfg.MaxRetries = *jc.MaxRetries
	}
	setMillis(&cfg.RetryDelay, jc.RetryDelayMs)
	setMillis(&cfg.RefreshThreshold, jc.RefreshThresholdMs)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.StorageSecret, jc.StorageSecret)
	setString(&cfg.DeviceID, jc.DeviceID)
	setString(&cfg.LogLevel, jc.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setMillis(dst *time.Duration, v *int64) {
	if v != nil {
		*dst = time.Duration(*v) * time.Millisecond
	}
}
