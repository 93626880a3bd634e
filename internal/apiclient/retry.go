package apiclient

import (
	"context"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
)

// RetryConfig controls how one logical request is retried. Retries counts
// extra attempts, so at most Retries+1 requests are sent. The delay before
// attempt n+1 is RetryDelay * 2^n.
type RetryConfig struct {
	Retries    int
	RetryDelay time.Duration
	// RetryCondition decides whether a failed attempt is retried. status is
	// 0 and err is non-nil when no response was received.
	RetryCondition func(status int, err error) bool
}

// DefaultRetryCondition retries when no response arrived, on 5xx and on 429.
func DefaultRetryCondition(status int, err error) bool {
	if err != nil {
		return true
	}
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

func (rc RetryConfig) shouldRetry(o outcome) bool {
	cond := rc.RetryCondition
	if cond == nil {
		cond = DefaultRetryCondition
	}
	return cond(o.status, o.err)
}

func (rc RetryConfig) backoff() retry.Backoff {
	if rc.RetryDelay <= 0 {
		return retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	return retry.NewExponential(rc.RetryDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
