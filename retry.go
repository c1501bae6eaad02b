package coursequiz

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// RetryPolicy bounds provider calls: every attempt gets Timeout, and
// transient failures are retried at most MaxRetries times with exponential
// backoff starting at InitialBackoff and capped at MaxBackoff.
type RetryPolicy struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy is used when a provider is built without one.
var DefaultRetryPolicy = RetryPolicy{
	Timeout:        60 * time.Second,
	MaxRetries:     3,
	InitialBackoff: time.Second,
	MaxBackoff:     10 * time.Second,
}

// Do runs fn until it succeeds, fails with a permanent error, or the retry
// budget is spent. The last error is returned unwrapped.
func (p RetryPolicy) Do(ctx context.Context, log *Logger, op string, fn func(ctx context.Context) error) error {
	backoff := p.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := p.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !isTransient(err) || attempt >= p.MaxRetries {
			return err
		}

		sleepFor := backoff
		if p.MaxBackoff > 0 && sleepFor > p.MaxBackoff {
			sleepFor = p.MaxBackoff
		}
		sleepFor = jitter(sleepFor)
		if log != nil {
			log.Warn("Provider call retrying",
				"op", op,
				"attempt", attempt+1,
				"max_retries", p.MaxRetries,
				"sleep", sleepFor.String(),
				"error", err.Error(),
			)
		}

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(attemptCtx)
}

// statusError carries the HTTP status of a failed provider response.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return http.StatusText(e.StatusCode) + ": " + e.Body
}

func isRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return isRetryableStatus(reqErr.HTTPStatusCode)
	}
	var se *statusError
	if errors.As(err, &se) {
		return isRetryableStatus(se.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := float64(base) * 0.2
	return time.Duration(float64(base) - delta + rand.Float64()*2*delta)
}
