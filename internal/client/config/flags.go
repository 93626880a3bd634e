package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-u string   API base URL
//	-v string   API version path segment
//	-t int      request timeout in milliseconds
//	-r int      max retries for transient failures
//	-d int      base retry delay in milliseconds
//	-db string  path to the SQLite token database
//	-k string   secret used to encrypt stored tokens
//
// Arguments naming other flags are skipped.
func parseFlags(cfg *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.BaseURL, "u", cfg.BaseURL, "API base URL")
	fs.StringVar(&cfg.APIVersion, "v", cfg.APIVersion, "API version")
	timeout := fs.Int64("t", cfg.Timeout.Milliseconds(), "request timeout (ms)")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "max retries")
	retryDelay := fs.Int64("d", cfg.RetryDelay.Milliseconds(), "base retry delay (ms)")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "token database path")
	fs.StringVar(&cfg.StorageSecret, "k", cfg.StorageSecret, "token storage secret")

	if err := flagx.Parse(fs, os.Args[1:]); err != nil {
		panic(err)
	}

	cfg.Timeout = time.Duration(*timeout) * time.Millisecond
	cfg.RetryDelay = time.Duration(*retryDelay) * time.Millisecond
}
