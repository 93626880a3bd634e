package tokens

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStorage fails selected operations.
type failingStorage struct {
	*MemoryStorage
	getErr, setErr, deleteErr error
}

func (f *failingStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.MemoryStorage.Get(ctx, key)
}

func (f *failingStorage) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.MemoryStorage.GetMany(ctx, keys...)
}

func (f *failingStorage) SetMany(ctx context.Context, values map[string]string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.MemoryStorage.SetMany(ctx, values)
}

func (f *failingStorage) DeleteMany(ctx context.Context, keys ...string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryStorage.DeleteMany(ctx, keys...)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func signedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestSetTokens_RoundTrip(t *testing.T) {
	clock := newClock()
	mem := NewMemoryStorage()
	s := NewStore(mem, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.SetTokens(ctx, "A1", "R1", 900))

	assert.Equal(t, "A1", s.AccessToken())
	assert.Equal(t, "R1", s.RefreshToken())
	assert.Equal(t, clock.Now().Add(900*time.Second), s.Snapshot().Expiry)

	v, ok, _ := mem.Get(ctx, common.AccessTokenKey)
	assert.True(t, ok)
	assert.Equal(t, "A1", v)
	v, _, _ = mem.Get(ctx, common.TokenExpiryKey)
	assert.Equal(t, strconv.FormatInt(clock.Now().Add(900*time.Second).UnixMilli(), 10), v)
}

func TestSetTokens_PersistFailureKeepsPreviousState(t *testing.T) {
	fs := &failingStorage{MemoryStorage: NewMemoryStorage()}
	s := NewStore(fs)
	ctx := context.Background()

	require.NoError(t, s.SetTokens(ctx, "A1", "R1", 60))
	fs.setErr = errors.New("disk full")

	err := s.SetTokens(ctx, "A2", "R2", 60)
	require.ErrorIs(t, err, ErrPersistTokens)
	assert.Equal(t, "A1", s.AccessToken())
	assert.Equal(t, "R1", s.RefreshToken())
}

func TestSetTokens_ZeroExpiresInUsesJWTClaim(t *testing.T) {
	s := NewStore(NewMemoryStorage(), WithClock(newClock().Now))
	exp := time.Unix(1_900_000_000, 0)

	require.NoError(t, s.SetTokens(context.Background(), signedJWT(t, exp), "R", 0))
	assert.True(t, s.Snapshot().Expiry.Equal(exp))
}

func TestSetTokens_ZeroExpiresInOpaqueTokenIsStale(t *testing.T) {
	clock := newClock()
	s := NewStore(NewMemoryStorage(), WithClock(clock.Now))

	require.NoError(t, s.SetTokens(context.Background(), "opaque", "R", 0))
	assert.Equal(t, clock.Now(), s.Snapshot().Expiry)
	assert.True(t, s.IsTokenExpired())
}

func TestClearTokens_AlwaysResetsMemory(t *testing.T) {
	fs := &failingStorage{MemoryStorage: NewMemoryStorage()}
	s := NewStore(fs)
	ctx := context.Background()

	require.NoError(t, s.SetTokens(ctx, "A", "R", 60))
	fs.deleteErr = errors.New("locked")

	s.ClearTokens(ctx)

	assert.Empty(t, s.AccessToken())
	assert.Empty(t, s.RefreshToken())
	assert.True(t, s.Snapshot().Expiry.IsZero())
}

func TestClearTokens_RemovesPersistedValues(t *testing.T) {
	mem := NewMemoryStorage()
	s := NewStore(mem)
	ctx := context.Background()

	require.NoError(t, s.SetTokens(ctx, "A", "R", 60))
	s.ClearTokens(ctx)

	for _, k := range []string{common.AccessTokenKey, common.RefreshTokenKey, common.TokenExpiryKey} {
		_, ok, err := mem.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
}

func TestClearTokens_OnEmptyStore(t *testing.T) {
	s := NewStore(NewMemoryStorage())
	s.ClearTokens(context.Background())
	assert.Empty(t, s.AccessToken())
}

func TestIsTokenExpired(t *testing.T) {
	clock := newClock()
	s := NewStore(NewMemoryStorage(), WithClock(clock.Now), WithRefreshThreshold(5*time.Minute))
	ctx := context.Background()

	assert.True(t, s.IsTokenExpired(), "no expiry recorded")

	require.NoError(t, s.SetTokens(ctx, "A", "R", int64((10 * time.Minute).Seconds())))
	assert.False(t, s.IsTokenExpired(), "10 minutes left, threshold 5")

	clock.Advance(5*time.Minute - time.Millisecond)
	assert.False(t, s.IsTokenExpired(), "just before the threshold")

	clock.Advance(time.Millisecond)
	assert.True(t, s.IsTokenExpired(), "exactly at expiry - threshold")

	clock.Advance(time.Hour)
	assert.True(t, s.IsTokenExpired(), "past expiry")
}

func TestInitialize_LoadsPersistedTriple(t *testing.T) {
	clock := newClock()
	mem := NewMemoryStorage()
	ctx := context.Background()
	exp := clock.Now().Add(time.Hour)

	require.NoError(t, mem.SetMany(ctx, map[string]string{
		common.AccessTokenKey:  "A",
		common.RefreshTokenKey: "R",
		common.TokenExpiryKey:  strconv.FormatInt(exp.UnixMilli(), 10),
	}))

	s := NewStore(mem, WithClock(clock.Now))
	s.Initialize(ctx)

	st := s.Snapshot()
	assert.Equal(t, "A", st.AccessToken)
	assert.Equal(t, "R", st.RefreshToken)
	assert.Equal(t, exp.UnixMilli(), st.Expiry.UnixMilli())
	assert.False(t, s.IsTokenExpired())
}

func TestInitialize_EmptyStorageMeansUnauthenticated(t *testing.T) {
	s := NewStore(NewMemoryStorage())
	s.Initialize(context.Background())

	assert.Equal(t, State{}, s.Snapshot())
	assert.True(t, s.IsTokenExpired())
}

func TestInitialize_StorageErrorIsNotFatal(t *testing.T) {
	fs := &failingStorage{MemoryStorage: NewMemoryStorage(), getErr: errors.New("unreadable")}
	require.NoError(t, fs.SetMany(context.Background(), map[string]string{
		common.AccessTokenKey:  "A",
		common.RefreshTokenKey: "R",
	}))
	s := NewStore(fs)

	require.NotPanics(t, func() { s.Initialize(context.Background()) })
	assert.Empty(t, s.AccessToken())
}

func TestInitialize_MissingExpiryKeepsInvariant(t *testing.T) {
	clock := newClock()
	mem := NewMemoryStorage()
	ctx := context.Background()
	exp := time.Unix(1_900_000_000, 0)

	require.NoError(t, mem.SetMany(ctx, map[string]string{
		common.AccessTokenKey: signedJWT(t, exp),
		common.TokenExpiryKey: "garbage",
	}))

	s := NewStore(mem, WithClock(clock.Now))
	s.Initialize(ctx)

	assert.NotEmpty(t, s.AccessToken())
	assert.True(t, s.Snapshot().Expiry.Equal(exp))
}

func TestToken_OAuth2Source(t *testing.T) {
	s := NewStore(NewMemoryStorage())
	ctx := context.Background()

	_, err := s.Token()
	require.ErrorIs(t, err, ErrNoAccessToken)

	require.NoError(t, s.SetTokens(ctx, "A", "R", 3600))
	tok, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "A", tok.AccessToken)
	assert.Equal(t, "R", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.Type())
	assert.True(t, tok.Valid())
}

func TestStore_ConcurrentReadersSeeWholeTriples(t *testing.T) {
	s := NewStore(NewMemoryStorage())
	ctx := context.Background()
	require.NoError(t, s.SetTokens(ctx, "A0", "R0", 60))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			n := strconv.Itoa(i)
			_ = s.SetTokens(ctx, "A"+n, "R"+n, 60)
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
			st := s.Snapshot()
			require.Equal(t, st.AccessToken[1:], st.RefreshToken[1:])
		}
	}
}
