package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"
)

// HTTPError is returned by the API clients for non-2xx upstream responses.
// The status code drives transient/permanent classification.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Body)
}

// Transient reports whether an error is worth retrying: a rate-limit or
// server-error status, a timeout, or a connection-level failure. Everything
// else is permanent.
func Transient(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 429, 500, 502, 503:
			return true
		}
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Executor wraps a unit of work with transient-failure detection and
// exponential backoff.
type Executor struct {
	sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor() *Executor {
	return &Executor{sleep: sleepContext}
}

// Run executes fn, retrying transient failures up to maxRetries additional
// times with a 2^n second backoff (2s, 4s, ...). Permanent errors and
// exhausted retries propagate immediately, naming the step.
func (e *Executor) Run(ctx context.Context, step string, maxRetries int, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !Transient(err) {
			return fmt.Errorf("step %s: %w", step, err)
		}

		if attempt >= maxRetries {
			return fmt.Errorf("step %s: retries exhausted after %d attempts: %w", step, attempt+1, err)
		}

		backoff := time.Duration(1<<uint(attempt+1)) * time.Second
		log.Printf("[Retry] step %s attempt %d failed: %v — retrying in %s", step, attempt+1, err, backoff)

		if serr := e.sleep(ctx, backoff); serr != nil {
			return fmt.Errorf("step %s: %w", step, serr)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
