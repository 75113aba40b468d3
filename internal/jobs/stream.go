package jobs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"medwriter-client/internal/api"
	"medwriter-client/internal/shared/logging"
	"medwriter-client/internal/shared/metrics"
	"medwriter-client/internal/suggestions"
)

// Status is a job connection's lifecycle state. Completed, Failed, and
// NotFound are terminal.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusStreaming    Status = "streaming"
	StatusPolling      Status = "polling"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusNotFound     Status = "not_found"
)

// ErrUnreachable is surfaced when both the stream retry budget and the poll
// budget are exhausted without a terminal job update.
var ErrUnreachable = errors.New("job unreachable")

// Backend is the slice of the API client a connection needs.
type Backend interface {
	JobStatus(ctx context.Context, jobID string) (*api.JobStatusResponse, error)
	OpenJobEvents(ctx context.Context, jobID string) (io.ReadCloser, error)
}

// Callbacks receive normalized job updates. Callers never observe transport
// differences: a poll response and a stream message produce identical
// callbacks. No callback fires after Close.
type Callbacks struct {
	OnProgress   func(processed, total int, message string)
	OnSuggestion func(s suggestions.Suggestion)
	OnComplete   func(batch []suggestions.Suggestion)
	OnError      func(err error)
}

// Options tunes reconnect and poll behavior. Zero values use defaults.
type Options struct {
	// MaxStreamAttempts bounds stream reconnects before falling back to
	// polling. Default 5.
	MaxStreamAttempts int
	// StreamBaseDelay seeds the exponential reconnect backoff
	// (base * 2^attempt). Default 1s.
	StreamBaseDelay time.Duration
	// PollInterval is the fixed delay between fallback polls. Default 5s.
	PollInterval time.Duration
	// MaxPollAttempts bounds fallback polling. Default 30.
	MaxPollAttempts int
	// StatusTimeout bounds one poll request. Default 10s.
	StatusTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxStreamAttempts <= 0 {
		o.MaxStreamAttempts = 5
	}
	if o.StreamBaseDelay <= 0 {
		o.StreamBaseDelay = 1 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.MaxPollAttempts <= 0 {
		o.MaxPollAttempts = 30
	}
	if o.StatusTimeout <= 0 {
		o.StatusTimeout = 10 * time.Second
	}
	return o
}

// Connection owns the real-time status channel for one background job. It
// prefers a persistent event stream, reconnecting with exponential backoff,
// and degrades to fixed-interval polling when the stream budget runs out.
type Connection struct {
	jobID   string
	backend Backend
	cb      Callbacks
	opts    Options

	ctx      context.Context
	cancel   context.CancelFunc
	closing  sync.Once
	onClosed func()

	sleep func(ctx context.Context, d time.Duration) error

	mu            sync.Mutex
	status        Status
	streamAttempt int
	pollAttempt   int
	closed        bool
	terminalFired bool
	done          chan struct{}
}

// newConnection constructs a connection without starting it. Connections
// are created through Registry.Track.
func newConnection(jobID string, backend Backend, cb Callbacks, opts Options) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		jobID:   jobID,
		backend: backend,
		cb:      cb,
		opts:    opts.withDefaults(),
		ctx:     ctx,
		cancel:  cancel,
		sleep:   sleepCtx,
		status:  StatusDisconnected,
		done:    make(chan struct{}),
	}
}

// JobID returns the job this connection tracks.
func (c *Connection) JobID() string { return c.jobID }

// Status returns the connection's current state.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Done is closed when the connection's run loop has exited.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Close tears the connection down: any in-flight transport handle or
// pending backoff wait is released and no callback fires afterward. Safe to
// call multiple times and from any state.
func (c *Connection) Close() {
	c.closing.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.cancel()
		if c.onClosed != nil {
			c.onClosed()
		}
	})
}

// connect starts the run loop.
func (c *Connection) connect() {
	go c.run()
}

func (c *Connection) run() {
	defer close(c.done)
	defer c.Close()

	for {
		if c.ctx.Err() != nil {
			return
		}
		c.setStatus(StatusConnecting)

		body, err := c.backend.OpenJobEvents(c.ctx, c.jobID)
		if err != nil {
			if errors.Is(err, api.ErrJobNotFound) {
				c.deliverTerminal(StatusNotFound, api.ErrJobNotFound)
				return
			}
			if c.ctx.Err() != nil {
				return
			}
			if !c.backoffStream() {
				c.pollJobStatus()
				return
			}
			continue
		}

		c.mu.Lock()
		c.status = StatusStreaming
		c.streamAttempt = 0
		c.mu.Unlock()

		terminal := c.readStream(body)
		body.Close()
		if terminal || c.ctx.Err() != nil {
			return
		}
		// Stream dropped without a terminal event: reconnect, or fall back
		// to polling once the budget is spent.
		if !c.backoffStream() {
			c.pollJobStatus()
			return
		}
	}
}

// backoffStream waits base * 2^attempt before the next reconnect. It
// returns false once the stream attempt budget is exhausted.
func (c *Connection) backoffStream() bool {
	c.mu.Lock()
	attempt := c.streamAttempt
	if attempt >= c.opts.MaxStreamAttempts {
		c.status = StatusFailed
		c.mu.Unlock()
		return false
	}
	c.streamAttempt++
	c.mu.Unlock()

	metrics.IncJobStreamReconnect()
	delay := c.opts.StreamBaseDelay * (1 << attempt)
	logging.Info("job stream reconnect", map[string]any{
		"job_id":   c.jobID,
		"attempt":  attempt + 1,
		"delay_ms": delay.Milliseconds(),
	})
	return c.sleep(c.ctx, delay) == nil
}

// readStream consumes the event stream until it ends. It returns true when
// a terminal event was delivered.
func (c *Connection) readStream(body io.Reader) bool {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
			continue
		}
		line = strings.TrimPrefix(line, "data: ")

		var ev api.JobEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			logging.Warn("job stream event discarded", map[string]any{
				"job_id": c.jobID,
				"error":  err.Error(),
			})
			continue
		}
		if c.deliver(ev) {
			return true
		}
	}
	return false
}

// pollJobStatus is the fallback channel: fixed-interval polls with an
// attempt budget independent of the streaming counter.
func (c *Connection) pollJobStatus() {
	c.setStatus(StatusPolling)
	metrics.IncJobPollFallback()
	logging.Info("job poll fallback", map[string]any{"job_id": c.jobID})

	for {
		c.mu.Lock()
		if c.pollAttempt >= c.opts.MaxPollAttempts {
			c.mu.Unlock()
			c.deliverTerminal(StatusFailed, fmt.Errorf("%w: poll budget exhausted for job %s", ErrUnreachable, c.jobID))
			return
		}
		c.pollAttempt++
		c.mu.Unlock()

		if c.sleep(c.ctx, c.opts.PollInterval) != nil {
			return
		}

		statusCtx, cancel := context.WithTimeout(c.ctx, c.opts.StatusTimeout)
		resp, err := c.backend.JobStatus(statusCtx, c.jobID)
		cancel()
		if err != nil {
			if errors.Is(err, api.ErrJobNotFound) {
				// Terminal: the job is gone, so polling forever would never
				// recover. Callers surface a "start a new analysis" action.
				c.deliverTerminal(StatusNotFound, api.ErrJobNotFound)
				return
			}
			if c.ctx.Err() != nil {
				return
			}
			// 5xx and network errors are transient; the attempt budget
			// bounds how long we keep trying.
			continue
		}
		if c.deliver(normalizePoll(resp)) {
			return
		}
	}
}

// normalizePoll maps a poll response onto the stream event vocabulary so
// callbacks never observe which transport produced an update.
func normalizePoll(resp *api.JobStatusResponse) api.JobEvent {
	switch resp.Status {
	case api.JobStatusCompleted:
		return api.JobEvent{Type: api.EventComplete, Result: resp.Result}
	case api.JobStatusFailed:
		return api.JobEvent{Type: api.EventError, Error: resp.Error}
	default:
		return api.JobEvent{
			Type:      api.EventProgress,
			Processed: resp.Processed,
			Total:     resp.Total,
			Message:   resp.Message,
		}
	}
}

// deliver dispatches one normalized event. It returns true for terminal
// events. A terminal event fires at most once even if both transports
// report completion, and nothing is delivered after Close.
func (c *Connection) deliver(ev api.JobEvent) bool {
	switch ev.Type {
	case api.EventHeartbeat:
		return false
	case api.EventProgress:
		if c.guard(false) && c.cb.OnProgress != nil {
			c.cb.OnProgress(ev.Processed, ev.Total, ev.Message)
		}
		return false
	case api.EventSuggestion:
		if ev.Suggestion == nil {
			return false
		}
		if c.guard(false) && c.cb.OnSuggestion != nil {
			c.cb.OnSuggestion(api.CanonicalSuggestion(*ev.Suggestion))
		}
		return false
	case api.EventComplete:
		batch, err := decodeResult(ev.Result)
		if err != nil {
			c.deliverTerminal(StatusFailed, err)
			return true
		}
		c.mu.Lock()
		ok := !c.closed && !c.terminalFired
		if ok {
			c.terminalFired = true
			c.status = StatusCompleted
		}
		c.mu.Unlock()
		if ok {
			metrics.IncAnalysisCompleted()
			if c.cb.OnComplete != nil {
				c.cb.OnComplete(batch)
			}
		}
		return true
	case api.EventError:
		msg := ev.Error
		if msg == "" {
			msg = "job failed"
		}
		c.deliverTerminal(StatusFailed, errors.New(msg))
		return true
	default:
		logging.Warn("unknown job event type", map[string]any{"job_id": c.jobID, "type": ev.Type})
		return false
	}
}

// deliverTerminal marks the terminal state and fires OnError exactly once.
func (c *Connection) deliverTerminal(status Status, err error) {
	c.mu.Lock()
	ok := !c.closed && !c.terminalFired
	if ok {
		c.terminalFired = true
		c.status = status
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	metrics.IncAnalysisFailed()
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

// guard reports whether callbacks may still fire.
func (c *Connection) guard(terminal bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && (!c.terminalFired || terminal)
}

func (c *Connection) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusCompleted && c.status != StatusFailed && c.status != StatusNotFound {
		c.status = s
	}
}

// decodeResult tolerates a completion without a payload: jobs whose
// suggestions all arrived as discrete stream events end with an empty
// result.
func decodeResult(raw json.RawMessage) ([]suggestions.Suggestion, error) {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return nil, nil
	}
	return api.DecodeSuggestions(raw)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
