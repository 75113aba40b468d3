package jobs

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"medwriter-client/internal/api"
	"medwriter-client/internal/httpexec"
	"medwriter-client/internal/suggestions"
)

type fakeBackend struct {
	mu          sync.Mutex
	statusCalls int
	openCalls   int
	statusFn    func(call int) (*api.JobStatusResponse, error)
	openFn      func(call int) (io.ReadCloser, error)
}

func (b *fakeBackend) JobStatus(ctx context.Context, jobID string) (*api.JobStatusResponse, error) {
	b.mu.Lock()
	b.statusCalls++
	call := b.statusCalls
	b.mu.Unlock()
	if b.statusFn == nil {
		return nil, errors.New("no status configured")
	}
	return b.statusFn(call)
}

func (b *fakeBackend) OpenJobEvents(ctx context.Context, jobID string) (io.ReadCloser, error) {
	b.mu.Lock()
	b.openCalls++
	call := b.openCalls
	b.mu.Unlock()
	if b.openFn == nil {
		return nil, errors.New("no stream configured")
	}
	return b.openFn(call)
}

func (b *fakeBackend) counts() (status, open int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusCalls, b.openCalls
}

type collector struct {
	mu          sync.Mutex
	progress    []string
	suggestions []suggestions.Suggestion
	completes   int
	batches     [][]suggestions.Suggestion
	errs        []error
	terminal    chan struct{}
	once        sync.Once
}

func newCollector() *collector {
	return &collector{terminal: make(chan struct{})}
}

func (c *collector) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(processed, total int, message string) {
			c.mu.Lock()
			c.progress = append(c.progress, message)
			c.mu.Unlock()
		},
		OnSuggestion: func(s suggestions.Suggestion) {
			c.mu.Lock()
			c.suggestions = append(c.suggestions, s)
			c.mu.Unlock()
		},
		OnComplete: func(batch []suggestions.Suggestion) {
			c.mu.Lock()
			c.completes++
			c.batches = append(c.batches, batch)
			c.mu.Unlock()
			c.once.Do(func() { close(c.terminal) })
		},
		OnError: func(err error) {
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
			c.once.Do(func() { close(c.terminal) })
		},
	}
}

func (c *collector) waitTerminal(t *testing.T) {
	t.Helper()
	select {
	case <-c.terminal:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal callback")
	}
}

func fastOptions() Options {
	return Options{
		MaxStreamAttempts: 2,
		StreamBaseDelay:   time.Millisecond,
		PollInterval:      time.Millisecond,
		MaxPollAttempts:   5,
		StatusTimeout:     time.Second,
	}
}

func streamBody(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n\n") + "\n\n"))
}

func TestStreamDeliversNormalizedEvents(t *testing.T) {
	backend := &fakeBackend{
		openFn: func(call int) (io.ReadCloser, error) {
			return streamBody(
				`data: {"type":"heartbeat"}`,
				`data: {"type":"progress","processed":1,"total":4,"message":"section 1"}`,
				`data: {"type":"suggestion","suggestion":{"id":"s1","original_text":"patients","improved_text":"participants","confidence_score":0.8}}`,
				`data: {"type":"complete","result":{"result":{"suggestions":[{"id":"s1","original_text":"patients","improved_text":"participants","confidence_score":0.8}]}}}`,
			), nil
		},
	}
	col := newCollector()
	conn := newConnection("job-1", backend, col.callbacks(), fastOptions())
	conn.connect()
	col.waitTerminal(t)
	<-conn.Done()

	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.progress) != 1 || col.progress[0] != "section 1" {
		t.Fatalf("expected one progress callback, got %v", col.progress)
	}
	if len(col.suggestions) != 1 || col.suggestions[0].ID != "s1" {
		t.Fatalf("expected one suggestion callback, got %+v", col.suggestions)
	}
	if col.completes != 1 || len(col.batches[0]) != 1 {
		t.Fatalf("expected one complete with one suggestion, got %d/%v", col.completes, col.batches)
	}
	if conn.Status() != StatusCompleted {
		t.Fatalf("expected Completed, got %s", conn.Status())
	}
}

func TestTerminalEventFiresAtMostOnce(t *testing.T) {
	col := newCollector()
	conn := newConnection("job-1", &fakeBackend{}, col.callbacks(), fastOptions())

	// A stream completion followed by a late poll completion must not fire
	// OnComplete twice.
	complete := api.JobEvent{Type: api.EventComplete}
	conn.deliver(complete)
	conn.deliver(complete)
	conn.deliver(api.JobEvent{Type: api.EventError, Error: "late failure report"})

	col.mu.Lock()
	defer col.mu.Unlock()
	if col.completes != 1 {
		t.Fatalf("expected exactly one completion, got %d", col.completes)
	}
	if len(col.errs) != 0 {
		t.Fatalf("expected no error after completion, got %v", col.errs)
	}
}

func TestStreamFallsBackToPolling(t *testing.T) {
	backend := &fakeBackend{
		openFn: func(call int) (io.ReadCloser, error) {
			return nil, errors.New("stream unavailable")
		},
		statusFn: func(call int) (*api.JobStatusResponse, error) {
			if call == 1 {
				return &api.JobStatusResponse{Status: api.JobStatusProcessing, Processed: 2, Total: 4, Message: "halfway"}, nil
			}
			return &api.JobStatusResponse{
				Status: api.JobStatusCompleted,
				Result: []byte(`{"result":{"suggestions":[{"id":"s1","original_text":"a","improved_text":"b","confidence_score":0.4}]}}`),
			}, nil
		},
	}
	col := newCollector()
	conn := newConnection("job-1", backend, col.callbacks(), fastOptions())
	conn.connect()
	col.waitTerminal(t)
	<-conn.Done()

	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.progress) != 1 || col.progress[0] != "halfway" {
		t.Fatalf("expected poll progress normalized into callback, got %v", col.progress)
	}
	if col.completes != 1 || len(col.batches[0]) != 1 {
		t.Fatalf("expected completion from poll, got %d", col.completes)
	}
	if _, open := backend.counts(); open != 3 {
		t.Fatalf("expected MaxStreamAttempts+1 open attempts, got %d", open)
	}
}

func TestPoll404IsTerminalAndStopsHTTPCalls(t *testing.T) {
	backend := &fakeBackend{
		openFn: func(call int) (io.ReadCloser, error) {
			return nil, errors.New("stream unavailable")
		},
		statusFn: func(call int) (*api.JobStatusResponse, error) {
			return nil, api.ErrJobNotFound
		},
	}
	col := newCollector()
	conn := newConnection("job-gone", backend, col.callbacks(), fastOptions())
	conn.connect()
	col.waitTerminal(t)
	<-conn.Done()

	statusCalls, _ := backend.counts()
	if statusCalls != 1 {
		t.Fatalf("expected polling to stop after 404, got %d status calls", statusCalls)
	}
	if conn.Status() != StatusNotFound {
		t.Fatalf("expected NotFound, got %s", conn.Status())
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.errs) != 1 || !errors.Is(col.errs[0], api.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound surfaced once, got %v", col.errs)
	}

	// The budget was nowhere near exhausted; 404 alone ended polling.
	time.Sleep(20 * time.Millisecond)
	if calls, _ := backend.counts(); calls != 1 {
		t.Fatalf("expected no further HTTP calls, got %d", calls)
	}
}

func TestStreamOpen404IsNotFound(t *testing.T) {
	backend := &fakeBackend{
		openFn: func(call int) (io.ReadCloser, error) {
			return nil, api.ErrJobNotFound
		},
	}
	col := newCollector()
	conn := newConnection("job-gone", backend, col.callbacks(), fastOptions())
	conn.connect()
	col.waitTerminal(t)
	<-conn.Done()

	if conn.Status() != StatusNotFound {
		t.Fatalf("expected NotFound, got %s", conn.Status())
	}
	if _, open := backend.counts(); open != 1 {
		t.Fatalf("expected a single open attempt, got %d", open)
	}
}

func TestPollBudgetExhaustionSurfacesUnreachable(t *testing.T) {
	backend := &fakeBackend{
		openFn: func(call int) (io.ReadCloser, error) {
			return nil, errors.New("stream unavailable")
		},
		statusFn: func(call int) (*api.JobStatusResponse, error) {
			return nil, &httpexec.StatusError{Code: 503}
		},
	}
	col := newCollector()
	opts := fastOptions()
	conn := newConnection("job-1", backend, col.callbacks(), opts)
	conn.connect()
	col.waitTerminal(t)
	<-conn.Done()

	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.errs) != 1 || !errors.Is(col.errs[0], ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", col.errs)
	}
	statusCalls, _ := backend.counts()
	if statusCalls != opts.MaxPollAttempts {
		t.Fatalf("expected %d poll attempts, got %d", opts.MaxPollAttempts, statusCalls)
	}
}

func TestReconnectBackoffIsExponential(t *testing.T) {
	backend := &fakeBackend{
		openFn: func(call int) (io.ReadCloser, error) {
			return nil, errors.New("stream unavailable")
		},
		statusFn: func(call int) (*api.JobStatusResponse, error) {
			return &api.JobStatusResponse{Status: api.JobStatusCompleted}, nil
		},
	}
	col := newCollector()
	opts := fastOptions()
	opts.MaxStreamAttempts = 3
	opts.StreamBaseDelay = 10 * time.Millisecond
	conn := newConnection("job-1", backend, col.callbacks(), opts)

	var mu sync.Mutex
	var delays []time.Duration
	conn.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}
	conn.connect()
	col.waitTerminal(t)
	<-conn.Done()

	mu.Lock()
	defer mu.Unlock()
	// Three reconnect waits (10ms, 20ms, 40ms), then poll-interval waits.
	if len(delays) < 3 {
		t.Fatalf("expected at least 3 waits, got %v", delays)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	for i, d := range want {
		if delays[i] != d {
			t.Fatalf("wait %d: expected %v, got %v (all: %v)", i, d, delays[i], delays)
		}
	}
}

func TestCloseDuringBackoffFiresNoCallbacks(t *testing.T) {
	opened := make(chan struct{}, 1)
	backend := &fakeBackend{
		openFn: func(call int) (io.ReadCloser, error) {
			select {
			case opened <- struct{}{}:
			default:
			}
			return nil, errors.New("stream unavailable")
		},
	}
	col := newCollector()
	opts := fastOptions()
	opts.StreamBaseDelay = time.Hour
	conn := newConnection("job-1", backend, col.callbacks(), opts)
	conn.connect()

	<-opened
	conn.Close()
	<-conn.Done()

	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.errs) != 0 || col.completes != 0 {
		t.Fatalf("expected no callbacks after close, got errs=%v completes=%d", col.errs, col.completes)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	conn := newConnection("job-1", &fakeBackend{openFn: func(int) (io.ReadCloser, error) {
		return streamBody(`data: {"type":"heartbeat"}`), nil
	}}, Callbacks{}, fastOptions())
	conn.connect()
	conn.Close()
	conn.Close()
	conn.Close()
	<-conn.Done()
}
