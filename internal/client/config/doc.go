// Package config loads runtime configuration for the CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
// Durations are integer milliseconds; every key is optional:
//
//	{
//	  "baseURL": "http://localhost:3000",
//	  "apiVersion": "v1",
//	  "timeoutMs": 30000,
//	  "maxRetries": 3,
//	  "retryDelayMs": 1000,
//	  "refreshThresholdMs": 300000,
//	  "databasePath": "client.db",
//	  "storageSecret": "",
//	  "deviceId": "",
//	  "logLevel": "warn"
//	}
//
// This package does not read environment variables.
package config
