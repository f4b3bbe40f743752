package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/roach88/fieldsync/internal/fakeremote"
	"github.com/roach88/fieldsync/internal/metrics"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/store"
)

type fixture struct {
	remote   *fakeremote.Server
	server   *httptest.Server
	sessions *DocumentSessionStore
	client   *Client
}

func fastRetry() RetryConfig {
	rc := DefaultRetryConfig()
	rc.InitialDelay = time.Millisecond
	rc.MaxDelay = 5 * time.Millisecond
	rc.Jitter = 0
	return rc
}

// retryCounter counts retries and discards everything else.
type retryCounter struct {
	metrics.NoOpCollector
	retries atomic.Int32
}

func (r *retryCounter) RecordRetry(string) { r.retries.Add(1) }

// gatedTransport holds the first /auth/refresh request until release is
// closed, signalling entered once it is held.
type gatedTransport struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedTransport() *gatedTransport {
	return &gatedTransport{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Path == "/auth/refresh" {
		held := false
		g.once.Do(func() { held = true })
		if held {
			close(g.entered)
			<-g.release
		}
	}
	return http.DefaultTransport.RoundTrip(req)
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	remote := fakeremote.New(fakeremote.WithUser("ana", "pw"))
	srv := httptest.NewServer(remote.Handler())
	t.Cleanup(srv.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sessions := NewDocumentSessionStore(st)
	client := New(Config{
		BaseURL:   srv.URL,
		Timeout:   2 * time.Second,
		Retry:     fastRetry(),
		TokenSkew: 5 * time.Second,
	}, sessions, opts...)

	return &fixture{remote: remote, server: srv, sessions: sessions, client: client}
}

func (f *fixture) login(t *testing.T) model.Session {
	t.Helper()
	sess, err := f.client.Login(context.Background(), "ana", "pw")
	require.NoError(t, err)
	return sess
}

func TestLogin_StoresSession(t *testing.T) {
	f := newFixture(t)
	sess := f.login(t)

	stored, err := f.sessions.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sess, stored)
	assert.Equal(t, "ana", stored.Username)
	assert.Empty(t, f.remote.Requests()[0].Authorization, "login is sent without a bearer token")
}

func TestLogin_BadCredentials(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.Login(context.Background(), "ana", "nope")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
}

func TestPost_InjectsBearerAndReturnsID(t *testing.T) {
	f := newFixture(t)
	sess := f.login(t)

	resp, err := f.client.Post(context.Background(), "/work-orders", map[string]string{"id": "wo-1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "srv-1", resp.ID())

	reqs := f.remote.Requests()
	assert.Equal(t, "Bearer "+sess.AccessToken, reqs[len(reqs)-1].Authorization)
}

func TestPost_WithoutSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.Post(context.Background(), "/work-orders", map[string]string{"id": "wo-1"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, f.remote.CountRequests("POST", "/work-orders"))
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.remote.FailNext("POST", "/movements", 500, 503)

	resp, err := f.client.Post(context.Background(), "/movements", map[string]string{"id": "m-1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, 3, f.remote.CountRequests("POST", "/movements"))
}

func TestRetry_Exhausted(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.remote.FailNext("POST", "/movements", 503, 503, 503, 503, 503)

	_, err := f.client.Post(context.Background(), "/movements", map[string]string{"id": "m-1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	assert.Equal(t, 4, f.remote.CountRequests("POST", "/movements"), "one attempt plus MaxRetries")
}

func TestRetry_NonRetryableReturnsImmediately(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.remote.FailNext("PUT", "/line-items", 400)

	_, err := f.client.Put(context.Background(), "/line-items/li-1", map[string]string{"id": "li-1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Equal(t, 1, f.remote.CountRequests("PUT", "/line-items/li-1"))
}

func TestRetry_NetworkError(t *testing.T) {
	rec := &retryCounter{}
	f := newFixture(t, WithRecorder(rec))
	f.login(t)
	f.remote.SetOffline(true)

	_, err := f.client.Post(context.Background(), "/points", map[string]string{"id": "p-1"})
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err), "network failures are not HTTP errors")
	assert.EqualValues(t, fastRetry().MaxRetries, rec.retries.Load(), "dropped connections are retried")
}

func TestRetry_LocalFailureIsFinal(t *testing.T) {
	rec := &retryCounter{}
	f := newFixture(t, WithRecorder(rec))
	f.login(t)

	_, err := f.client.Do(context.Background(), "BAD METHOD", "/work-orders", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build request")
	assert.Zero(t, rec.retries.Load())
}

func TestRetry_RateLimitWaitIsFinal(t *testing.T) {
	rec := &retryCounter{}
	f := newFixture(t, WithRecorder(rec))
	f.login(t)
	f.client.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	_, err := f.client.Post(context.Background(), "/points", map[string]string{"id": "p-1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = f.client.Post(ctx, "/points", map[string]string{"id": "p-2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Zero(t, rec.retries.Load())
	assert.Equal(t, 1, f.remote.CountRequests("POST", "/points"))
}

func TestReactiveRefresh_SingleRefreshPer401(t *testing.T) {
	f := newFixture(t)
	first := f.login(t)
	f.remote.FailNext("POST", "/work-orders", http.StatusUnauthorized)

	resp, err := f.client.Post(context.Background(), "/work-orders", map[string]string{"id": "wo-1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)

	assert.Equal(t, 1, f.remote.CountRequests("POST", "/auth/refresh"))
	assert.Equal(t, 2, f.remote.CountRequests("POST", "/work-orders"))

	sess, err := f.sessions.Load(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, sess.RefreshToken, "rotated refresh token is stored")
}

func TestReactiveRefresh_Second401IsReturned(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.remote.FailNext("POST", "/work-orders", http.StatusUnauthorized, http.StatusUnauthorized)

	_, err := f.client.Post(context.Background(), "/work-orders", map[string]string{"id": "wo-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, f.remote.CountRequests("POST", "/auth/refresh"), "no refresh loop")
	assert.Equal(t, 2, f.remote.CountRequests("POST", "/work-orders"))
}

func TestReactiveRefresh_FailureClearsSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.remote.RevokeRefreshTokens()
	f.remote.FailNext("POST", "/work-orders", http.StatusUnauthorized)

	_, err := f.client.Post(context.Background(), "/work-orders", map[string]string{"id": "wo-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.ErrorIs(t, err, ErrUnauthorized)

	sess, err := f.sessions.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, sess.Empty(), "forced logout")
}

func TestProactiveRefresh_ExpiredToken(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	expired, err := f.remote.IssueAccessToken("ana", -time.Minute)
	require.NoError(t, err)
	sess, err := f.sessions.Load(context.Background())
	require.NoError(t, err)
	sess.AccessToken = expired
	require.NoError(t, f.sessions.Save(context.Background(), sess))

	_, err = f.client.Post(context.Background(), "/vehicles", map[string]string{"id": "v-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.remote.CountRequests("POST", "/auth/refresh"))
	assert.Equal(t, 1, f.remote.CountRequests("POST", "/vehicles"), "refreshed before sending, no 401 round trip")
}

func TestRefresh_SingleFlight(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.client.Refresh(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		// Followers that missed the shared flight refresh with the rotated
		// token, which is still valid, so nobody fails.
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, f.remote.CountRequests("POST", "/auth/refresh"), callers)
}

func TestRefresh_ConcurrentExpiredCallersShareOneRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	expired, err := f.remote.IssueAccessToken("ana", -time.Minute)
	require.NoError(t, err)
	sess, err := f.sessions.Load(context.Background())
	require.NoError(t, err)
	sess.AccessToken = expired
	require.NoError(t, f.sessions.Save(context.Background(), sess))

	const callers = 6
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.client.Post(context.Background(), "/materials", map[string]string{"id": "mat"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Callers arriving after the shared refresh see a fresh stored token
	// and reuse it instead of refreshing again.
	assert.Equal(t, 1, f.remote.CountRequests("POST", "/auth/refresh"))
	assert.Equal(t, callers, f.remote.CountRequests("POST", "/materials"))
}

func TestRefresh_CancelledCallerDoesNotFailJoiners(t *testing.T) {
	gate := newGatedTransport()
	f := newFixture(t, WithHTTPClient(&http.Client{Transport: gate, Timeout: 2 * time.Second}))
	f.login(t)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() { firstErr <- f.client.Refresh(first) }()
	<-gate.entered

	joinErr := make(chan error, 1)
	go func() { joinErr <- f.client.Refresh(context.Background()) }()
	// Let the second caller join the held flight.
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(gate.release)
	assert.NoError(t, <-joinErr)
	assert.Equal(t, 1, f.remote.CountRequests("POST", "/auth/refresh"))

	sess, err := f.sessions.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, sess.Empty())
}

func TestLogout_LocalOnly(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	before := len(f.remote.Requests())

	require.NoError(t, f.client.Logout(context.Background()))
	assert.Len(t, f.remote.Requests(), before)

	sess, err := f.client.Session(context.Background())
	require.NoError(t, err)
	assert.True(t, sess.Empty())
}

func TestRegisterAndUserExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	exists, err := f.client.UserExists(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, f.client.Register(ctx, "bob", "pw"))

	exists, err = f.client.UserExists(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestContextCancelStopsRetry(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.client.retry.InitialDelay = time.Second
	f.client.retry.MaxDelay = time.Second
	f.remote.FailNext("POST", "/packages", 503, 503, 503, 503)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.client.Post(ctx, "/packages", map[string]string{"id": "p"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
