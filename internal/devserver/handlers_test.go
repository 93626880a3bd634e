package devserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/client/models"
	"github.com/dmitrijs2005/apiclient/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notification struct {
	kind, email, token string
}

type outbox struct {
	mu   sync.Mutex
	sent []notification
}

func (o *outbox) notify(kind, email, token string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, notification{kind, email, token})
}

func (o *outbox) last(kind string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].kind == kind {
			return o.sent[i].token
		}
	}
	return ""
}

func testConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	cfg.AccessTokenTTL = 10 * time.Minute
	cfg.RefreshTokenTTL = time.Hour
	return cfg
}

func newTestServer(t *testing.T) (*Server, *fakeClock, *outbox) {
	t.Helper()
	clock := newFakeClock()
	box := &outbox{}
	s := New(testConfig(), logging.Nop(), WithClock(clock.now), WithNotifier(box.notify))
	return s, clock, box
}

func call(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func envelope[T any](t *testing.T, rec *httptest.ResponseRecorder) models.Envelope[T] {
	t.Helper()
	var env models.Envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func register(t *testing.T, s *Server, email string) models.AuthResponse {
	t.Helper()
	rec := call(t, s, http.MethodPost, "/v1/auth/register", "", models.RegisterRequest{
		Email: email, Password: "password1", FirstName: "Ann", LastName: "Lee",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	env := envelope[models.AuthResponse](t, rec)
	require.True(t, env.Success)
	require.NotNil(t, env.Data)
	return *env.Data
}

func TestRegister(t *testing.T) {
	s, _, box := newTestServer(t)

	auth := register(t, s, "ann@example.com")
	assert.Equal(t, "ann@example.com", auth.User.Email)
	assert.NotEmpty(t, auth.Tokens.AccessToken)
	assert.NotEmpty(t, auth.Tokens.RefreshToken)
	assert.EqualValues(t, 600, auth.Tokens.ExpiresIn)
	assert.NotEmpty(t, box.last("verify-email"))

	rec := call(t, s, http.MethodPost, "/v1/auth/register", "", models.RegisterRequest{
		Email: "ann@example.com", Password: "password1", FirstName: "Ann", LastName: "Lee",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", envelope[struct{}](t, rec).Code)
}

func TestRegister_Validation(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := call(t, s, http.MethodPost, "/v1/auth/register", "", models.RegisterRequest{Email: "nope", Password: "short"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := envelope[struct{}](t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)
	assert.Equal(t, http.StatusBadRequest, env.StatusCode)

	var details map[string]string
	require.NoError(t, json.Unmarshal(env.Details, &details))
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")
	assert.Contains(t, details, "firstName")
	assert.Contains(t, details, "lastName")
}

func TestRegister_MalformedBody(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", envelope[struct{}](t, rec).Code)
}

func TestLogin(t *testing.T) {
	s, _, _ := newTestServer(t)
	register(t, s, "ann@example.com")

	rec := call(t, s, http.MethodPost, "/v1/auth/login", "", models.LoginRequest{Email: "ann@example.com", Password: "password1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, envelope[models.AuthResponse](t, rec).Data.Tokens.AccessToken)

	rec = call(t, s, http.MethodPost, "/v1/auth/login", "", models.LoginRequest{Email: "ann@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := envelope[struct{}](t, rec)
	assert.Equal(t, "UNAUTHORIZED", env.Code)
	assert.Equal(t, "invalid email or password", env.Message)
}

func TestProfile_RequiresAuth(t *testing.T) {
	s, clock, _ := newTestServer(t)
	auth := register(t, s, "ann@example.com")

	tests := []struct {
		name    string
		token   string
		advance time.Duration
		status  int
		message string
	}{
		{"missing", "", 0, http.StatusUnauthorized, "missing access token"},
		{"invalid", "garbage", 0, http.StatusUnauthorized, "invalid access token"},
		{"valid", auth.Tokens.AccessToken, 0, http.StatusOK, ""},
		{"expired", auth.Tokens.AccessToken, 11 * time.Minute, http.StatusUnauthorized, "access token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.advance(tt.advance)
			rec := call(t, s, http.MethodGet, "/v1/user/profile", tt.token, nil)
			assert.Equal(t, tt.status, rec.Code)
			env := envelope[models.User](t, rec)
			if tt.status == http.StatusOK {
				require.NotNil(t, env.Data)
				assert.Equal(t, auth.User.ID, env.Data.ID)
			} else {
				assert.Equal(t, tt.message, env.Message)
			}
		})
	}
}

func TestRefresh_Rotates(t *testing.T) {
	s, clock, _ := newTestServer(t)
	auth := register(t, s, "ann@example.com")

	rec := call(t, s, http.MethodPost, "/v1/auth/refresh", "", models.RefreshTokenRequest{RefreshToken: auth.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	next := envelope[models.AuthResponse](t, rec).Data.Tokens
	assert.NotEqual(t, auth.Tokens.RefreshToken, next.RefreshToken)

	rec = call(t, s, http.MethodPost, "/v1/auth/refresh", "", models.RefreshTokenRequest{RefreshToken: auth.Tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid refresh token", envelope[struct{}](t, rec).Message)

	clock.advance(2 * time.Hour)
	rec = call(t, s, http.MethodPost, "/v1/auth/refresh", "", models.RefreshTokenRequest{RefreshToken: next.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Refresh token expired", envelope[struct{}](t, rec).Message)
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	s, _, _ := newTestServer(t)
	auth := register(t, s, "ann@example.com")

	rec := call(t, s, http.MethodPost, "/v1/auth/logout", auth.Tokens.AccessToken, models.RefreshTokenRequest{RefreshToken: auth.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, s, http.MethodPost, "/v1/auth/refresh", "", models.RefreshTokenRequest{RefreshToken: auth.Tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPasswordReset(t *testing.T) {
	s, _, box := newTestServer(t)
	auth := register(t, s, "ann@example.com")

	rec := call(t, s, http.MethodPost, "/v1/auth/forgot-password", "", models.ForgotPasswordRequest{Email: "nobody@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, box.last("reset-password"))

	rec = call(t, s, http.MethodPost, "/v1/auth/forgot-password", "", models.ForgotPasswordRequest{Email: "ann@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	token := box.last("reset-password")
	require.NotEmpty(t, token)

	rec = call(t, s, http.MethodPost, "/v1/auth/reset-password", "", models.ResetPasswordRequest{Token: token, NewPassword: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, s, http.MethodPost, "/v1/auth/reset-password", "", models.ResetPasswordRequest{Token: token, NewPassword: "password2"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, s, http.MethodPost, "/v1/auth/reset-password", "", models.ResetPasswordRequest{Token: token, NewPassword: "password3"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, s, http.MethodPost, "/v1/auth/refresh", "", models.RefreshTokenRequest{RefreshToken: auth.Tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, s, http.MethodPost, "/v1/auth/login", "", models.LoginRequest{Email: "ann@example.com", Password: "password2"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyEmail(t *testing.T) {
	s, _, box := newTestServer(t)
	ann := register(t, s, "ann@example.com")
	annToken := box.last("verify-email")
	register(t, s, "bob@example.com")
	bobToken := box.last("verify-email")

	rec := call(t, s, http.MethodPost, "/v1/auth/verify-email", ann.Tokens.AccessToken, models.VerifyEmailRequest{Token: bobToken})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, s, http.MethodPost, "/v1/auth/verify-email", ann.Tokens.AccessToken, models.VerifyEmailRequest{Token: annToken})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, s, http.MethodGet, "/v1/user/profile", ann.Tokens.AccessToken, nil)
	assert.True(t, envelope[models.User](t, rec).Data.IsEmailVerified)
}

func TestAvatar_UploadAndFetch(t *testing.T) {
	s, _, _ := newTestServer(t)
	auth := register(t, s, "ann@example.com")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "me.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake image"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/user/avatar", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+auth.Tokens.AccessToken)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	uploaded := envelope[models.UploadAvatarResponse](t, rec).Data.Avatar
	assert.Equal(t, "/v1/avatars/"+uploaded.ID, uploaded.URL)

	rec = call(t, s, http.MethodGet, uploaded.URL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\x89PNG fake image", rec.Body.String())

	rec = call(t, s, http.MethodGet, "/v1/user/profile", auth.Tokens.AccessToken, nil)
	assert.Equal(t, uploaded.URL, envelope[models.User](t, rec).Data.Avatar)

	rec = call(t, s, http.MethodGet, "/v1/avatars/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvatar_MissingFile(t *testing.T) {
	s, _, _ := newTestServer(t)
	auth := register(t, s, "ann@example.com")

	rec := call(t, s, http.MethodPost, "/v1/user/avatar", auth.Tokens.AccessToken, map[string]string{"file": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", envelope[struct{}](t, rec).Code)
}

func TestUnknownRoute(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := call(t, s, http.MethodGet, "/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := envelope[struct{}](t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "NOT_FOUND", env.Code)

	rec = call(t, s, http.MethodGet, "/v2/auth/login", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", envelope[struct{}](t, rec).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/auth/login"},
		{http.MethodPut, "/v1/auth/refresh"},
		{http.MethodPost, "/v1/user/profile"},
		{http.MethodDelete, "/v1/avatars/abc"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := call(t, s, tc.method, tc.path, "", nil)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			env := envelope[struct{}](t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, "METHOD_NOT_ALLOWED", env.Code)
			assert.Equal(t, http.StatusMethodNotAllowed, env.StatusCode)
		})
	}
}

func TestRequestIDEchoed(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/avatars/x", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
