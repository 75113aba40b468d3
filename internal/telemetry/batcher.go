package telemetry

import (
	"context"
	"sync"
	"time"

	"medwriter-client/internal/shared/logging"
	"medwriter-client/internal/shared/util"
)

const (
	defaultBatchSize = 10
	defaultTimeout   = 5 * time.Second
	sendTimeout      = 10 * time.Second
)

// Sender delivers one batch of events. A send is attempted exactly once;
// failed batches are dropped, never requeued, so events are delivered at
// most once.
type Sender interface {
	Send(ctx context.Context, events []Event) error
}

// Batcher queues privacy-safe events and flushes them when the batch fills
// or when a timeout elapses after the first unflushed event, whichever comes
// first.
type Batcher struct {
	sender     Sender
	tenantID   string
	userIDHash string
	size       int
	timeout    time.Duration
	now        func() time.Time

	mu     sync.Mutex
	queue  []Event
	timer  *time.Timer
	closed bool
}

// NewBatcher constructs a Batcher stamping tenantID and a hash of userID on
// every event. size and timeout fall back to defaults when non-positive.
func NewBatcher(sender Sender, tenantID, userID string, size int, timeout time.Duration) *Batcher {
	if size <= 0 {
		size = defaultBatchSize
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Batcher{
		sender:     sender,
		tenantID:   tenantID,
		userIDHash: util.HashUserKey(userID),
		size:       size,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Enqueue stamps common fields on the event and appends it to the queue.
// Reaching the batch size triggers an immediate flush.
func (b *Batcher) Enqueue(ev Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	ev.Timestamp = b.now().UTC()
	ev.TenantID = b.tenantID
	ev.UserIDHash = b.userIDHash
	b.queue = append(b.queue, ev)

	if len(b.queue) >= b.size {
		batch := b.takeLocked()
		b.mu.Unlock()
		b.send(batch)
		return
	}
	if len(b.queue) == 1 {
		b.timer = time.AfterFunc(b.timeout, b.Flush)
	}
	b.mu.Unlock()
}

// Flush sends any queued events in a single request.
func (b *Batcher) Flush() {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()
	b.send(batch)
}

// Close flushes remaining events and stops the batcher. Further enqueues
// are dropped.
func (b *Batcher) Close() {
	b.mu.Lock()
	b.closed = true
	batch := b.takeLocked()
	b.mu.Unlock()
	b.send(batch)
}

// takeLocked drains the queue and disarms the pending timer. Callers must
// hold b.mu.
func (b *Batcher) takeLocked() []Event {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.queue
	b.queue = nil
	return batch
}

// send delivers a batch once. Telemetry loss is acceptable; duplication is
// not, so failures drop the batch and only log.
func (b *Batcher) send(batch []Event) {
	if len(batch) == 0 || b.sender == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := b.sender.Send(ctx, batch); err != nil {
		logging.Warn("telemetry batch dropped", map[string]any{
			"events": len(batch),
			"error":  err.Error(),
		})
	}
}
