package httpexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	defaultMaxAttempts    = 3
	defaultBaseDelay      = 1 * time.Second
	defaultAttemptTimeout = 30 * time.Second
)

// StatusError reports a non-2xx HTTP response from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// AttemptFunc issues a single HTTP attempt. The executor owns the response
// body and closes it.
type AttemptFunc func(ctx context.Context) (*http.Response, error)

// Executor wraps a request with bounded retry for transient failures.
//
// Backoff is linear (BaseDelay * attempt) rather than exponential: the
// executor sits on a UI-blocking path, so worst-case latency must stay
// bounded. A 502 or a network-level error is transient; any other non-2xx
// status is surfaced immediately.
type Executor struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration

	// OnRetry fires before each retry wait so callers can surface progress
	// ("service starting, attempt 2/3"). attempt is the upcoming attempt
	// number, 1-based.
	OnRetry func(attempt, maxAttempts int)

	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs an Executor with the given retry budget. Zero values fall
// back to defaults.
func New(maxAttempts int, baseDelay time.Duration) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &Executor{
		MaxAttempts:    maxAttempts,
		BaseDelay:      baseDelay,
		AttemptTimeout: defaultAttemptTimeout,
		sleep:          sleepCtx,
	}
}

// Do runs fn until it succeeds, fails permanently, or the attempt budget is
// exhausted. On success it returns the response body.
func (e *Executor) Do(ctx context.Context, fn AttemptFunc) ([]byte, error) {
	if e.sleep == nil {
		e.sleep = sleepCtx
	}
	var lastErr error
	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		body, err := e.attempt(ctx, fn)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !transient(err) {
			return nil, err
		}
		if attempt == e.MaxAttempts {
			break
		}
		if e.OnRetry != nil {
			e.OnRetry(attempt+1, e.MaxAttempts)
		}
		if err := e.sleep(ctx, e.BaseDelay*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("attempts exhausted after %d tries: %w", e.MaxAttempts, lastErr)
}

func (e *Executor) attempt(ctx context.Context, fn AttemptFunc) ([]byte, error) {
	attemptCtx := ctx
	cancel := func() {}
	if e.AttemptTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, e.AttemptTimeout)
	}
	defer cancel()

	resp, err := fn(attemptCtx)
	if err != nil {
		// A per-attempt timeout counts as transient unless the caller's own
		// context is done.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// transient reports whether err is expected to resolve with retry: a
// cold-start 502, a network-level failure, or an attempt timeout.
func transient(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// url.Error wraps transport failures that are not net.Error values
	// (connection refused surfaces as *net.OpError, covered above; EOF on a
	// dropped keep-alive is not).
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
