package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures retry behaviour for transient failures.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential delay (before jitter).
	MaxDelay time.Duration
	// Factor is the exponential multiplier.
	Factor float64
	// Jitter adds ±Jitter*delay randomness (0.0 to 1.0).
	Jitter float64
	// RetryableStatusCodes are HTTP statuses that are retried.
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the client's standard retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Factor:       2.0,
		Jitter:       0.1,
		RetryableStatusCodes: []int{
			http.StatusRequestTimeout,      // 408
			http.StatusTooManyRequests,     // 429
			http.StatusInternalServerError, // 500
			http.StatusBadGateway,          // 502
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout,      // 504
		},
	}
}

// exponential returns the unbounded delay schedule for rc.
func (rc RetryConfig) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.InitialDelay
	b.Multiplier = rc.Factor
	b.RandomizationFactor = rc.Jitter
	if rc.MaxDelay > 0 {
		b.MaxInterval = rc.MaxDelay
	}
	// MaxRetries bounds the loop, not elapsed time.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// policy returns the retry schedule for one logical request: at most
// MaxRetries delays, cut short when ctx is done.
func (rc RetryConfig) policy(ctx context.Context) backoff.BackOff {
	retries := rc.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(rc.exponential(), uint64(retries)), ctx)
}

func (rc RetryConfig) retryableStatus(code int) bool {
	return slices.Contains(rc.RetryableStatusCodes, code)
}

// retryableError reports whether a failed round trip may succeed on retry:
// timeouts, dropped or refused connections and truncated responses. Local
// failures such as a malformed request or a rate-limit wait that cannot fit
// the deadline are final.
func retryableError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
