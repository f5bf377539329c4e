package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/url"
	"time"
)

// transportPolicy governs retries of worker calls that failed below the
// HTTP layer. Any HTTP response, whatever its status, ends the loop;
// non-2xx handling belongs to the RetryController.
type transportPolicy struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func newTransportPolicy(maxAttempts int, maxBackoff time.Duration) transportPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	return transportPolicy{
		maxAttempts:    maxAttempts,
		initialBackoff: time.Second,
		maxBackoff:     maxBackoff,
	}
}

// backoff returns the wait before the next attempt: exponential from the
// initial backoff with ±25% jitter, capped.
func (p transportPolicy) backoff(attempt int) time.Duration {
	d := float64(p.initialBackoff)
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	if d > float64(p.maxBackoff) {
		d = float64(p.maxBackoff)
	}

	d += d * 0.25 * (rand.Float64()*2 - 1)
	if d < 0 {
		d = float64(p.initialBackoff)
	}
	return time.Duration(d)
}

// retryableTransport reports whether err is a connection-level failure
// worth another attempt. Decode errors and context cancellation are not.
// url.Error is checked before the generic net.Error timeout test because
// it satisfies net.Error itself with Timeout() false on dial failures.
func retryableTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	// http.Client wraps dial and I/O failures in url.Error
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
