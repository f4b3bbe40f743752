// Package transport executes authenticated JSON requests against the remote
// service. It injects the bearer token, refreshes it proactively and on 401,
// and retries transient failures with exponential backoff.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/roach88/fieldsync/internal/metrics"
	"github.com/roach88/fieldsync/internal/model"
)

// DefaultTimeout bounds every single HTTP attempt.
const DefaultTimeout = 30 * time.Second

// Paths that are sent without an Authorization header.
var noAuthPaths = map[string]bool{
	"/auth/login":    true,
	"/auth/register": true,
	"/auth/exists":   true,
	"/auth/refresh":  true,
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration // per attempt; 0 means DefaultTimeout
	Retry     RetryConfig
	RateLimit float64       // requests per second; 0 means unlimited
	TokenSkew time.Duration // refresh this long before exp
	UserAgent string
	DeviceID  string
}

// Response is a successful (2xx) reply.
type Response struct {
	Status int
	Data   json.RawMessage
}

// ID returns the server-assigned id from a create reply, read from "id" or
// "data.id". Returns "" if neither is present.
func (r *Response) ID() string {
	if r == nil || len(r.Data) == 0 {
		return ""
	}
	for _, path := range []string{"id", "data.id"} {
		if v := gjson.GetBytes(r.Data, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// Client is the TransportClient.
//
// Thread-safety: safe for concurrent use. Concurrent refreshes collapse into
// one request through a singleflight group.
type Client struct {
	baseURL   string
	http      *http.Client
	retry     RetryConfig
	limiter   *rate.Limiter
	skew      time.Duration
	userAgent string
	deviceID  string
	sessions  SessionStore
	refreshes singleflight.Group
	rec       metrics.Recorder
	log       zerolog.Logger
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout is kept.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Client) { c.rec = r }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithNow sets the clock used for token expiry checks.
func WithNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client. sessions supplies and persists the credential pair.
func New(cfg Config, sessions SessionStore, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "fieldsync/" + model.ClientVersion
	}

	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      &http.Client{Timeout: timeout},
		retry:     cfg.Retry,
		limiter:   rate.NewLimiter(limit, burst),
		skew:      cfg.TokenSkew,
		userAgent: userAgent,
		deviceID:  cfg.DeviceID,
		sessions:  sessions,
		rec:       metrics.NewNoOpCollector(),
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post sends a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put sends a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do sends one logical request: auth, retries and at most one reactive
// refresh are handled here.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if !requiresAuth(path) {
		return c.send(ctx, method, path, payload, "")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	resp, err := c.send(ctx, method, path, payload, token)
	if !errors.Is(err, ErrUnauthorized) {
		return resp, err
	}

	// One refresh, one retry. A second 401 is returned as is.
	c.log.Debug().Str("method", method).Str("path", path).Msg("401, refreshing token")
	fresh, rerr := c.refreshFrom(ctx, token)
	if rerr != nil {
		return nil, fmt.Errorf("%w (refresh: %w)", err, rerr)
	}
	return c.send(ctx, method, path, payload, fresh)
}

// accessToken returns a usable token, refreshing first if it is expired.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	sess, err := c.sessions.Load(ctx)
	if err != nil {
		return "", err
	}
	if sess.AccessToken == "" {
		return "", ErrUnauthorized
	}
	if !c.expired(sess.AccessToken) {
		return sess.AccessToken, nil
	}
	c.log.Debug().Msg("access token expired, refreshing")
	return c.refreshFrom(ctx, sess.AccessToken)
}

// send performs the request with retry on transient failures. A non-2xx
// final status is returned as *HTTPError.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*Response, error) {
	var last error
	retries := 0
	op := func() (*Response, error) {
		resp, err := c.attempt(ctx, method, path, payload, token)
		if err == nil {
			return resp, nil
		}
		last = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			if !c.retry.retryableStatus(httpErr.StatusCode) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if !retryableError(ctx, err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, delay time.Duration) {
		retries++
		c.rec.RecordRetry(method)
		c.log.Warn().
			Err(err).
			Str("method", method).
			Str("path", path).
			Int("attempt", retries).
			Dur("backoff", delay).
			Msg("retrying request")
	}

	resp, err := backoff.RetryNotifyWithData(op, c.retry.policy(ctx), notify)
	if err != nil && err != last {
		// The context ended while waiting between attempts.
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, err
}

// attempt sends exactly one HTTP request.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, token string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s %s: rate limit: %w", method, path, err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: build request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-ID", c.deviceID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.rec.RecordRequest(method, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.rec.RecordRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Method: method, Path: path, Body: data}
	}
	return &Response{Status: resp.StatusCode, Data: data}, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		return data, nil
	}
}

func requiresAuth(path string) bool {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return !noAuthPaths[path]
}
