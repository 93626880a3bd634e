// Package tokens caches and persists the access/refresh token pair.
//
// A Store holds the in-memory triple (access token, refresh token, expiry)
// that every outbound request reads, and writes it through to a Storage
// backend. Reads never touch the backend. Writes are all-or-nothing: the
// in-memory triple changes only after the backend accepted all three values,
// and no reader can observe a half-updated triple.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/common"
	"github.com/dmitrijs2005/apiclient/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// DefaultRefreshThreshold is how long before expiry a token already counts
// as expired.
const DefaultRefreshThreshold = 5 * time.Minute

var (
	ErrPersistTokens = errors.New("failed to store authentication tokens")
	ErrNoAccessToken = errors.New("no access token")
)

// State is a snapshot of the token triple. Empty strings and the zero time
// stand for "absent".
type State struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

type Store struct {
	storage   Storage
	logger    logging.Logger
	threshold time.Duration
	now       func() time.Time

	// writeMu serializes SetTokens/ClearTokens so persisted and cached
	// values are updated in the same order.
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   State
}

type Option func(*Store)

func WithRefreshThreshold(d time.Duration) Option {
	return func(s *Store) { s.threshold = d }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage:   storage,
		logger:    logging.Nop(),
		threshold: DefaultRefreshThreshold,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initialize loads the persisted triple into memory. Storage failures are
// logged and leave the store unauthenticated.
func (s *Store) Initialize(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	values, err := s.storage.GetMany(ctx, common.AccessTokenKey, common.RefreshTokenKey, common.TokenExpiryKey)
	if err != nil {
		s.logger.Error(ctx, "failed to initialize tokens", "error", err)
		return
	}

	loaded := State{
		AccessToken:  values[common.AccessTokenKey],
		RefreshToken: values[common.RefreshTokenKey],
	}
	rawExpiry := values[common.TokenExpiryKey]

	if rawExpiry != "" {
		ms, err := strconv.ParseInt(rawExpiry, 10, 64)
		if err != nil {
			s.logger.Warn(ctx, "ignoring unparsable token expiry", "value", rawExpiry)
		} else {
			loaded.Expiry = time.UnixMilli(ms)
		}
	}

	if loaded.AccessToken != "" && loaded.Expiry.IsZero() {
		loaded.Expiry = s.fallbackExpiry(loaded.AccessToken)
	}

	s.mu.Lock()
	s.state = loaded
	s.mu.Unlock()
}

// SetTokens persists a new pair expiring expiresIn seconds from now and then
// swaps it into memory. When expiresIn is not positive, the access token's
// JWT "exp" claim is used instead.
func (s *Store) SetTokens(ctx context.Context, accessToken, refreshToken string, expiresIn int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var expiry time.Time
	if expiresIn > 0 {
		expiry = s.now().Add(time.Duration(expiresIn) * time.Second)
	} else {
		expiry = s.fallbackExpiry(accessToken)
	}

	err := s.storage.SetMany(ctx, map[string]string{
		common.AccessTokenKey:  accessToken,
		common.RefreshTokenKey: refreshToken,
		common.TokenExpiryKey:  strconv.FormatInt(expiry.UnixMilli(), 10),
	})
	if err != nil {
		s.logger.Error(ctx, "failed to store tokens", "error", err)
		return fmt.Errorf("%w: %w", ErrPersistTokens, err)
	}

	s.mu.Lock()
	s.state = State{AccessToken: accessToken, RefreshToken: refreshToken, Expiry: expiry}
	s.mu.Unlock()
	return nil
}

// ClearTokens removes the persisted triple and always empties the cache.
// Storage failures are logged, never returned: logging out must succeed.
func (s *Store) ClearTokens(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.storage.DeleteMany(ctx, common.AccessTokenKey, common.RefreshTokenKey, common.TokenExpiryKey); err != nil {
		s.logger.Error(ctx, "failed to clear tokens", "error", err)
	}

	s.mu.Lock()
	s.state = State{}
	s.mu.Unlock()
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.AccessToken
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RefreshToken
}

// Snapshot returns a consistent copy of the whole triple.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsTokenExpired reports whether the access token should be refreshed: there
// is no recorded expiry, or it falls within the refresh threshold.
func (s *Store) IsTokenExpired() bool {
	s.mu.RLock()
	expiry := s.state.Expiry
	s.mu.RUnlock()

	if expiry.IsZero() {
		return true
	}
	return !s.now().Before(expiry.Add(-s.threshold))
}

// Token implements oauth2.TokenSource over the cached pair.
func (s *Store) Token() (*oauth2.Token, error) {
	st := s.Snapshot()
	if st.AccessToken == "" {
		return nil, ErrNoAccessToken
	}
	return &oauth2.Token{
		AccessToken:  st.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: st.RefreshToken,
		Expiry:       st.Expiry,
	}, nil
}

var _ oauth2.TokenSource = (*Store)(nil)

// fallbackExpiry reads the unverified "exp" claim of a JWT access token. Tokens
// that are not JWTs, or carry no exp, are treated as already stale.
func (s *Store) fallbackExpiry(accessToken string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return s.now()
}
