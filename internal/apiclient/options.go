package apiclient

import (
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/logging"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Per-attempt timeouts
// still come from Config.Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSessionExpiredHook registers fn to run once each time a refresh fails
// and the stored tokens are cleared.
func WithSessionExpiredHook(fn func()) Option {
	return func(c *Client) { c.onExpired = fn }
}

// WithProactiveRefresh toggles refreshing a stale access token before the
// request is sent instead of waiting for the 401. Enabled by default.
func WithProactiveRefresh(enabled bool) Option {
	return func(c *Client) { c.proactive = enabled }
}

// WithDefaultHeader adds a header sent with every request.
func WithDefaultHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// RequestOption adjusts a single call.
type RequestOption func(*request)

// WithHeader sets a header on this request. Headers set here win over the
// defaults, including Authorization.
func WithHeader(key, value string) RequestOption {
	return func(r *request) { r.header.Set(key, value) }
}

func WithQuery(values url.Values) RequestOption {
	return func(r *request) {
		for k, vs := range values {
			for _, v := range vs {
				r.query.Add(k, v)
			}
		}
	}
}

// WithTimeout bounds each attempt of this request.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *request) { r.timeout = d }
}

func WithRetries(n int) RequestOption {
	return func(r *request) { r.retry.Retries = n }
}

func WithRetryDelay(d time.Duration) RequestOption {
	return func(r *request) { r.retry.RetryDelay = d }
}

func WithRetryCondition(fn func(status int, err error) bool) RequestOption {
	return func(r *request) { r.retry.RetryCondition = fn }
}

// WithoutRetry sends the request exactly once.
func WithoutRetry() RequestOption {
	return func(r *request) { r.retry.Retries = 0 }
}

// WithoutAuth sends the request anonymously: no Authorization header, no
// proactive refresh, and a 401 is returned as is. Used for login and the
// other endpoints that issue tokens.
func WithoutAuth() RequestOption {
	return func(r *request) { r.anonymous = true }
}
