package apiclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/client/models"
	"github.com/dmitrijs2005/apiclient/internal/logging"
)

// exchangeFunc trades a refresh token for a new token pair.
type exchangeFunc func(ctx context.Context, refreshToken string) (*models.Tokens, error)

// coordinator makes sure at most one token refresh is in flight. Callers
// arriving while a refresh runs wait for its result instead of starting
// another one.
type coordinator struct {
	tokens    TokenStore
	exchange  exchangeFunc
	timeout   time.Duration
	onExpired func()
	logger    logging.Logger

	mu         sync.Mutex
	refreshing bool
	// waiters is non-empty only while refreshing is true. Each channel is
	// buffered and receives exactly one value.
	waiters []chan error
}

// refresh returns nil once the token pair was replaced, or the *Error that
// ended the session.
func (c *coordinator) refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan error, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return normalize(outcome{err: ctx.Err()})
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	// The exchange must not be cut short by the caller that happened to
	// trigger it: every waiter depends on the result.
	rctx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc = func() {}
	if c.timeout > 0 {
		rctx, cancel = context.WithTimeout(rctx, c.timeout)
	}
	defer cancel()

	err := c.run(rctx)
	if err != nil {
		c.logger.Warn(ctx, "token refresh failed, clearing session", "error", err)
		c.tokens.ClearTokens(rctx)
	} else {
		c.logger.Debug(ctx, "token refreshed")
	}

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	for _, w := range waiters {
		w <- err
	}

	if err != nil && c.onExpired != nil {
		c.onExpired()
	}

	return err
}

func (c *coordinator) run(ctx context.Context) error {
	rt := c.tokens.RefreshToken()
	if rt == "" {
		return &Error{Message: msgNoRefresh, StatusCode: http.StatusUnauthorized, Code: CodeUnauthorized}
	}

	t, err := c.exchange(ctx, rt)
	if err != nil {
		return err
	}

	if err := c.tokens.SetTokens(ctx, t.AccessToken, t.RefreshToken, t.ExpiresIn); err != nil {
		return NewStorageError(err)
	}
	return nil
}
