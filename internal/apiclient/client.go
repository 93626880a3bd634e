package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/client/models"
	"github.com/dmitrijs2005/apiclient/internal/common"
	"github.com/dmitrijs2005/apiclient/internal/logging"
	"github.com/google/uuid"
)

const (
	DefaultAPIVersion = "v1"
	DefaultTimeout    = 30 * time.Second
	DefaultUserAgent  = "DevTinder-Mobile/" + common.AppVersion

	refreshPath = "/auth/refresh"
)

// TokenStore is the part of the token store the client needs.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	IsTokenExpired() bool
	SetTokens(ctx context.Context, accessToken, refreshToken string, expiresIn int64) error
	ClearTokens(ctx context.Context)
}

type Config struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	DeviceID   string
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    http.Header
	timeout    time.Duration
	retry      RetryConfig
	tokens     TokenStore
	refresher  *coordinator
	proactive  bool
	onExpired  func()
	logger     logging.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// request describes one logical call. It may be sent several times.
type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	header      http.Header
	query       url.Values
	timeout     time.Duration
	retry       RetryConfig
	anonymous   bool
	onProgress  func(percent int)
}

// callState is shared by all attempts of one logical call.
type callState struct {
	requestID string
	// authRetried is set once a 401 on this call has been handled.
	authRetried bool
	// sentToken is the access token attached to the latest attempt.
	sentToken string
}

func New(cfg Config, tokens TokenStore, opts ...Option) *Client {
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(version, "/"),
		headers:    http.Header{},
		timeout:    timeout,
		retry:      RetryConfig{Retries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay},
		tokens:     tokens,
		proactive:  true,
		logger:     logging.Nop(),
		now:        time.Now,
		sleep:      sleepContext,
	}

	c.headers.Set("Accept", "application/json")
	c.headers.Set("User-Agent", DefaultUserAgent)
	c.headers.Set(common.AppVersionHeaderName, common.AppVersion)
	if cfg.DeviceID != "" {
		c.headers.Set(common.DeviceIDHeaderName, cfg.DeviceID)
	}

	for _, o := range opts {
		o(c)
	}

	c.refresher = &coordinator{
		tokens:    tokens,
		exchange:  c.exchangeRefreshToken,
		timeout:   c.timeout,
		onExpired: c.onExpired,
		logger:    c.logger,
	}

	return c
}

func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodGet, path, nil, out, opts)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPost, path, body, out, opts)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPut, path, body, out, opts)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPatch, path, body, out, opts)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodDelete, path, nil, out, opts)
}

func (c *Client) newRequest(method, path string) *request {
	return &request{
		method:  method,
		path:    path,
		header:  http.Header{},
		query:   url.Values{},
		timeout: c.timeout,
		retry:   c.retry,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, opts []RequestOption) error {
	r := c.newRequest(method, path)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Message: "failed to encode request body", Code: CodeUnknownError, Err: err}
		}
		r.body = b
		r.contentType = "application/json"
	}
	for _, o := range opts {
		o(r)
	}
	return c.execute(ctx, r, out)
}

func (c *Client) execute(ctx context.Context, r *request, out any) error {
	st := &callState{requestID: uuid.NewString()}

	if !r.anonymous {
		if err := c.refreshIfStale(ctx, st); err != nil {
			return err
		}
	}

	o, err := c.dispatch(ctx, r, st)
	if err != nil {
		return err
	}
	return decode(o, out)
}

func (c *Client) refreshIfStale(ctx context.Context, st *callState) error {
	if !c.proactive || c.tokens.AccessToken() == "" || c.tokens.RefreshToken() == "" {
		return nil
	}
	if !c.tokens.IsTokenExpired() {
		return nil
	}
	c.logger.Debug(ctx, "access token is stale, refreshing before request", "request_id", st.requestID)
	return c.refresher.refresh(ctx)
}

// dispatch runs one retry pass over r. A 401 on a call that was not yet
// refreshed hands over to the coordinator and, on success, starts a new pass.
func (c *Client) dispatch(ctx context.Context, r *request, st *callState) (outcome, error) {
	backoff := r.retry.backoff()

	for attempt := 0; ; attempt++ {
		o := c.send(ctx, r, st)
		if o.ok() {
			return o, nil
		}

		if o.err == nil && o.status == http.StatusUnauthorized && !r.anonymous && !st.authRetried {
			st.authRetried = true
			cur := c.tokens.AccessToken()
			switch {
			case st.sentToken != "" && cur == "":
				// A failed refresh already ended the session this token
				// belonged to.
				e := normalize(o)
				e.Code = CodeUnauthorized
				return o, e
			case st.sentToken == "" || cur == st.sentToken:
				if err := c.refresher.refresh(ctx); err != nil {
					return o, err
				}
			}
			// Otherwise another call already replaced the token.
			return c.dispatch(ctx, r, st)
		}

		if attempt >= r.retry.Retries || ctx.Err() != nil || !r.retry.shouldRetry(o) {
			return o, normalize(o)
		}

		delay, stop := backoff.Next()
		if stop {
			return o, normalize(o)
		}

		c.logger.Debug(ctx, "retrying request",
			"method", r.method, "path", r.path, "request_id", st.requestID,
			"attempt", attempt+1, "delay", delay, "status", o.status, "error", o.err)

		if err := c.sleep(ctx, delay); err != nil {
			return o, normalize(outcome{err: err})
		}
	}
}

// send performs one attempt.
func (c *Client) send(ctx context.Context, r *request, st *callState) outcome {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
		if r.onProgress != nil {
			body = newProgressReader(body, int64(len(r.body)), r.onProgress)
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.resolve(r.path, r.query), body)
	if err != nil {
		return outcome{err: err}
	}
	if r.body != nil {
		req.ContentLength = int64(len(r.body))
	}

	for k, vs := range c.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	for k, vs := range r.header {
		req.Header[k] = append([]string(nil), vs...)
	}

	st.sentToken = ""
	if !r.anonymous && req.Header.Get(common.AuthorizationHeaderName) == "" {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
			st.sentToken = token
		}
	}
	req.Header.Set(common.RequestTimestampHeaderName, strconv.FormatInt(c.now().UnixMilli(), 10))
	req.Header.Set(common.RequestIDHeaderName, st.requestID)

	c.logger.Debug(ctx, "api request", "method", r.method, "url", req.URL.String(), "request_id", st.requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug(ctx, "api request failed", "method", r.method, "url", req.URL.String(), "request_id", st.requestID, "error", err)
		return outcome{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return outcome{err: err}
	}

	c.logger.Debug(ctx, "api response", "method", r.method, "url", req.URL.String(), "request_id", st.requestID, "status", resp.StatusCode)

	return outcome{status: resp.StatusCode, header: resp.Header, body: data}
}

// resolve joins path onto the versioned base URL. Absolute URLs are used
// as given.
func (c *Client) resolve(path string, query url.Values) string {
	u := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		u = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) == 0 {
		return u
	}
	if strings.Contains(u, "?") {
		return u + "&" + query.Encode()
	}
	return u + "?" + query.Encode()
}

// decode stores the response body in out. *[]byte and *string receive the
// raw body, anything else is decoded as JSON.
func decode(o outcome, out any) error {
	if out == nil || len(o.body) == 0 {
		return nil
	}
	switch v := out.(type) {
	case *[]byte:
		*v = append((*v)[:0], o.body...)
		return nil
	case *string:
		*v = string(o.body)
		return nil
	}
	if err := json.Unmarshal(o.body, out); err != nil {
		return &Error{Message: "failed to decode response body", StatusCode: o.status, Code: CodeUnknownError, Err: err}
	}
	return nil
}

// exchangeRefreshToken calls the refresh endpoint directly, outside the
// request pipeline, so a failing refresh never triggers another one.
func (c *Client) exchangeRefreshToken(ctx context.Context, refreshToken string) (*models.Tokens, error) {
	r := c.newRequest(http.MethodPost, refreshPath)
	r.anonymous = true
	r.timeout = 0 // ctx already carries the refresh deadline
	body, err := json.Marshal(models.RefreshTokenRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, &Error{Message: msgRefreshError, StatusCode: http.StatusUnauthorized, Code: CodeUnauthorized, Err: err}
	}
	r.body = body
	r.contentType = "application/json"

	o := c.send(ctx, r, &callState{requestID: uuid.NewString()})
	if o.err != nil {
		return nil, normalize(o)
	}

	var env models.Envelope[models.AuthResponse]
	decodeErr := json.Unmarshal(o.body, &env)
	if decodeErr == nil && o.ok() && env.Success && env.Data != nil && env.Data.Tokens.AccessToken != "" {
		return &env.Data.Tokens, nil
	}

	status := env.StatusCode
	if status == 0 {
		status = o.status
	}
	if status < 400 {
		status = http.StatusUnauthorized
	}
	return nil, &Error{
		Message:    firstNonEmpty(env.Message, env.Error, msgRefreshError),
		StatusCode: status,
		Code:       CodeUnauthorized,
		Details:    decodeDetails(env.Details),
		Err:        decodeErr,
	}
}
