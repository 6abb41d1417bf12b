// Package apiclient issues authenticated requests against the marketplace
// API. It attaches the current access token and, when the server rejects
// it, performs one refresh exchange and re-issues the request once.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/kingrea/naqsh/internal/metrics"
	"github.com/kingrea/naqsh/internal/session"
)

const (
	// DefaultRefreshPath is the endpoint that mints a new access token.
	DefaultRefreshPath = "/api/auth/refresh"
	// RequestIDHeader correlates the original attempt with its retry.
	RequestIDHeader = "X-Request-ID"

	// DefaultRefreshTimeout bounds one refresh exchange.
	DefaultRefreshTimeout = 15 * time.Second

	maxRefreshBody = 64 << 10
	maxDrainBytes  = 4 << 10
)

// ErrNotAuthenticated is returned by clients built WithRequireAuth when no
// access token is held.
var ErrNotAuthenticated = errors.New("apiclient: no access token")

var errMalformedRefresh = errors.New("apiclient: refresh response carried no access_token")

// Logger records client activity. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Client wraps an http.Client with bearer-token attachment and the
// refresh-and-retry protocol.
type Client struct {
	baseURL     string
	store       session.Store
	httpClient  *http.Client
	refreshPath string
	logger      Logger
	metrics     *metrics.ClientMetrics
	limiter     *rate.Limiter
	requireAuth bool
	userAgent   string

	refreshTimeout time.Duration

	refreshes singleflight.Group
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records traffic into m.
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithRefreshPath overrides the refresh endpoint. Absolute URLs are used as-is.
func WithRefreshPath(path string) Option {
	return func(c *Client) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		if !strings.HasPrefix(path, "/") && !isAbsoluteURL(path) {
			path = "/" + path
		}
		c.refreshPath = path
	}
}

// WithRefreshTimeout bounds the refresh exchange independently of any
// caller's context. d <= 0 keeps DefaultRefreshTimeout.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithRateLimit throttles every round trip, refresh included. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRequireAuth makes Do fail with ErrNotAuthenticated instead of sending
// an anonymous request when no access token is held.
func WithRequireAuth() Option {
	return func(c *Client) {
		c.requireAuth = true
	}
}

// WithUserAgent sets the User-Agent header on requests that lack one.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = strings.TrimSpace(ua)
	}
}

// New builds a client for the API rooted at baseURL. store is the session
// the client reads tokens from and writes refreshed access tokens to.
func New(baseURL string, store session.Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.New("apiclient: session store is required")
	}
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("apiclient: base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL:     trimmed,
		store:       store,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		refreshPath: DefaultRefreshPath,
		logger:      nopLogger{},

		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Session returns the store the client reads credentials from.
func (c *Client) Session() session.Store {
	return c.store
}

// URL resolves an API path against the base URL.
func (c *Client) URL(path string) string {
	if isAbsoluteURL(path) {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// NewRequest builds a request for path relative to the base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: build %s %s: %w", method, path, err)
	}
	return req, nil
}

// Do sends req, attaching the current access token when one is held.
//
// A 401 or 422 answer triggers at most one refresh exchange. When the
// exchange yields a new access token it is stored before the request is
// re-issued once; that second response is returned whatever its status.
// When no refresh token is held, or the exchange fails, the original
// response is returned untouched. Transport failures of the request itself
// are returned as errors.
//
// A request body that cannot be replayed (no GetBody) is buffered once.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("apiclient: nil request")
	}
	if err := makeReplayable(req); err != nil {
		return nil, err
	}
	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	token := c.store.AccessToken()
	if token == "" {
		if c.requireAuth {
			return nil, ErrNotAuthenticated
		}
		return c.send(req, "", requestID)
	}

	resp, err := c.send(req, token, requestID)
	if err != nil {
		return nil, err
	}
	if !isAuthFailure(resp.StatusCode) {
		return resp, nil
	}
	c.logger.Printf("apiclient: %s %s rejected credential (%d) [%s]", req.Method, req.URL.Path, resp.StatusCode, requestID)

	fresh, ok := c.replacementToken(req.Context(), token)
	if !ok {
		return resp, nil
	}
	drain(resp)
	c.metrics.Retry()
	c.logger.Printf("apiclient: retrying %s %s with refreshed credential [%s]", req.Method, req.URL.Path, requestID)
	return c.send(req, fresh, requestID)
}

// replacementToken returns the access token to retry with. used is the
// token the failed attempt carried.
//
// Concurrent callers share one refresh exchange. The exchange runs detached
// from any single caller's context, bounded by refreshTimeout, and each
// caller only waits on it for as long as its own context allows.
func (c *Client) replacementToken(ctx context.Context, used string) (string, bool) {
	// Another caller may already have refreshed while this request was in flight.
	if current, ok := c.newerToken(used); ok {
		return current, true
	}
	refreshToken := c.store.RefreshToken()
	if refreshToken == "" {
		c.metrics.RefreshOutcome(metrics.RefreshNoToken)
		return "", false
	}
	flight := c.refreshes.DoChan(refreshToken, func() (any, error) {
		// A flight for this key may have finished between the check above and now.
		if current, ok := c.newerToken(used); ok {
			return current, nil
		}
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()
		return c.refresh(refreshCtx, refreshToken)
	})
	select {
	case <-ctx.Done():
		c.logger.Printf("apiclient: stopped waiting for refresh: %v", ctx.Err())
		return "", false
	case res := <-flight:
		if res.Err != nil {
			c.logger.Printf("apiclient: refresh failed: %v", res.Err)
			return "", false
		}
		if res.Shared {
			c.metrics.RefreshOutcome(metrics.RefreshShared)
		}
		return res.Val.(string), true
	}
}

// newerToken reports a stored access token that differs from used.
func (c *Client) newerToken(used string) (string, bool) {
	current := c.store.AccessToken()
	if current == "" || current == used {
		return "", false
	}
	c.metrics.RefreshOutcome(metrics.RefreshReused)
	return current, true
}

// refresh exchanges refreshToken for a new access token and stores it.
func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(c.refreshPath), nil)
	if err != nil {
		c.metrics.RefreshOutcome(metrics.RefreshError)
		return "", fmt.Errorf("apiclient: build refresh request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)
	req.Header.Set("Accept", "application/json")
	resp, err := c.roundTrip(req)
	if err != nil {
		c.metrics.RefreshOutcome(metrics.RefreshError)
		return "", fmt.Errorf("apiclient: refresh: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RefreshOutcome(metrics.RefreshRejected)
		return "", fmt.Errorf("apiclient: refresh rejected with status %d", resp.StatusCode)
	}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRefreshBody)).Decode(&payload); err != nil || payload.AccessToken == "" {
		c.metrics.RefreshOutcome(metrics.RefreshMalformed)
		return "", errMalformedRefresh
	}
	if err := c.store.SetAccessToken(payload.AccessToken); err != nil {
		// The in-memory token is already replaced; only persistence failed.
		c.logger.Printf("apiclient: persist refreshed token: %v", err)
	}
	c.metrics.RefreshOutcome(metrics.RefreshSuccess)
	c.logger.Printf("apiclient: access token refreshed")
	return payload.AccessToken, nil
}

// send issues one attempt of req carrying token ("" for anonymous).
func (c *Client) send(req *http.Request, token, requestID string) (*http.Response, error) {
	attempt := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("apiclient: rewind body: %w", err)
		}
		attempt.Body = body
	}
	attempt.Header.Set(RequestIDHeader, requestID)
	if c.userAgent != "" && attempt.Header.Get("User-Agent") == "" {
		attempt.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		attempt.Header.Set("Authorization", "Bearer "+token)
	}
	return c.roundTrip(attempt)
}

func (c *Client) roundTrip(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("apiclient: rate limit: %w", err)
		}
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.ObserveRequest(req.Method, 0, elapsed)
		return nil, err
	}
	c.metrics.ObserveRequest(req.Method, resp.StatusCode, elapsed)
	return resp, nil
}

// isAuthFailure reports the statuses the API uses for a missing, expired
// or stale access token.
func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusUnprocessableEntity
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("apiclient: buffer request body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	req.ContentLength = int64(len(data))
	return nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}
