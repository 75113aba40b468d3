package httpexec

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestExecutor(maxAttempts int, baseDelay time.Duration) (*Executor, *[]time.Duration) {
	e := New(maxAttempts, baseDelay)
	slept := &[]time.Duration{}
	e.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return e, slept
}

func TestDoRetriesTransient502ThenSucceeds(t *testing.T) {
	e, slept := newTestExecutor(3, 100*time.Millisecond)

	var retries []int
	e.OnRetry = func(attempt, max int) { retries = append(retries, attempt) }

	calls := 0
	body, err := e.Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		if calls <= 2 {
			return respond(http.StatusBadGateway, "cold start"), nil
		}
		return respond(http.StatusOK, `{"ok":true}`), nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("wait %d: expected %v, got %v", i, d, (*slept)[i])
		}
	}
	if len(retries) != 2 || retries[0] != 2 || retries[1] != 3 {
		t.Fatalf("expected retry callbacks for attempts 2 and 3, got %v", retries)
	}
}

func TestDoSurfacesPermanentStatusImmediately(t *testing.T) {
	e, slept := newTestExecutor(3, 100*time.Millisecond)

	calls := 0
	_, err := e.Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return respond(http.StatusUnprocessableEntity, "bad request"), nil
	})
	if calls != 1 {
		t.Fatalf("expected a single attempt for a 4xx, got %d", calls)
	}
	if len(*slept) != 0 {
		t.Fatalf("expected no backoff waits, got %v", *slept)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected StatusError 422, got %v", err)
	}
	if statusErr.Body != "bad request" {
		t.Fatalf("expected body preserved, got %q", statusErr.Body)
	}
}

func TestDoExhaustsAttemptsAndSurfacesLastError(t *testing.T) {
	e, slept := newTestExecutor(3, 50*time.Millisecond)

	calls := 0
	_, err := e.Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return respond(http.StatusBadGateway, "still starting"), nil
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(*slept) != 2 {
		t.Fatalf("expected 2 waits, got %v", *slept)
	}
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadGateway {
		t.Fatalf("expected the last 502 to be surfaced, got %v", err)
	}
}

func TestDoRetriesNetworkError(t *testing.T) {
	e, _ := newTestExecutor(2, 10*time.Millisecond)

	calls := 0
	body, err := e.Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		if calls == 1 {
			return nil, io.ErrUnexpectedEOF
		}
		return respond(http.StatusOK, "ok"), nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if string(body) != "ok" || calls != 2 {
		t.Fatalf("expected recovery on attempt 2, got calls=%d body=%q err=%v", calls, body, err)
	}
}

func TestDoStopsWhenCallerContextCancelled(t *testing.T) {
	e := New(3, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := e.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		calls++
		cancel()
		return nil, context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retry after cancellation, got %d attempts", calls)
	}
}
