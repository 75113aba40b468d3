package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
	sent    chan struct{}
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(chan struct{}, 16)}
}

func (s *recordingSender) Send(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	batch := make([]Event, len(events))
	copy(batch, events)
	s.batches = append(s.batches, batch)
	select {
	case s.sent <- struct{}{}:
	default:
	}
	return nil
}

func (s *recordingSender) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func TestEnqueueFlushesAtBatchSize(t *testing.T) {
	sender := newRecordingSender()
	b := NewBatcher(sender, "tenant-1", "user-1", 10, time.Hour)

	for i := 0; i < 9; i++ {
		b.Enqueue(NewEvent(EventSuggestionShown, "req-1"))
	}
	if sender.batchCount() != 0 {
		t.Fatalf("expected no flush below batch size, got %d batches", sender.batchCount())
	}

	// The 10th event flushes immediately, without waiting for the timeout.
	b.Enqueue(NewEvent(EventSuggestionShown, "req-1"))
	if sender.batchCount() != 1 {
		t.Fatalf("expected immediate flush at batch size, got %d batches", sender.batchCount())
	}
	sender.mu.Lock()
	got := len(sender.batches[0])
	sender.mu.Unlock()
	if got != 10 {
		t.Fatalf("expected 10 events in batch, got %d", got)
	}
}

func TestTimeoutFlushesPartialBatch(t *testing.T) {
	sender := newRecordingSender()
	b := NewBatcher(sender, "tenant-1", "user-1", 10, 20*time.Millisecond)

	b.Enqueue(NewEvent(EventSuggestionShown, "req-1"))
	b.Enqueue(NewEvent(EventSuggestionAccepted, "req-1"))

	select {
	case <-sender.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("expected timeout flush")
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.batches) != 1 || len(sender.batches[0]) != 2 {
		t.Fatalf("expected one batch of 2 events, got %+v", sender.batches)
	}
}

func TestEnqueueStampsCommonFields(t *testing.T) {
	sender := newRecordingSender()
	b := NewBatcher(sender, "tenant-1", "user-1", 1, time.Hour)

	b.Enqueue(NewEvent(EventSuggestionShown, "req-1").WithSuggestion("s1", "clarity"))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	ev := sender.batches[0][0]
	if ev.TenantID != "tenant-1" {
		t.Fatalf("expected tenant stamped, got %q", ev.TenantID)
	}
	if ev.UserIDHash == "" || ev.UserIDHash == "user-1" {
		t.Fatalf("expected hashed user id, got %q", ev.UserIDHash)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("expected timestamp stamped")
	}
}

func TestWithContentHashesRawText(t *testing.T) {
	raw := "the study enrolled 40 patients"
	ev := NewEvent(EventSuggestionShown, "req-1").WithContent("originalText", raw)

	hash, ok := ev.ContentHashes["originalText"]
	if !ok {
		t.Fatal("expected originalText hash")
	}
	if hash == raw || strings.Contains(hash, "patients") {
		t.Fatalf("raw text leaked into event: %q", hash)
	}
	if len(hash) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", hash)
	}
}

func TestSendFailureDropsBatch(t *testing.T) {
	sender := newRecordingSender()
	sender.err = errors.New("sink unavailable")
	b := NewBatcher(sender, "tenant-1", "user-1", 2, time.Hour)

	b.Enqueue(NewEvent(EventSuggestionShown, "req-1"))
	b.Enqueue(NewEvent(EventSuggestionShown, "req-1"))

	// The failed batch must not be requeued.
	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()
	b.Flush()
	if sender.batchCount() != 0 {
		t.Fatalf("expected dropped batch to stay dropped, got %d batches", sender.batchCount())
	}
}

func TestCloseFlushesAndStops(t *testing.T) {
	sender := newRecordingSender()
	b := NewBatcher(sender, "tenant-1", "user-1", 10, time.Hour)

	b.Enqueue(NewEvent(EventSuggestionShown, "req-1"))
	b.Close()
	if sender.batchCount() != 1 {
		t.Fatalf("expected close to flush, got %d batches", sender.batchCount())
	}

	b.Enqueue(NewEvent(EventSuggestionShown, "req-1"))
	b.Flush()
	if sender.batchCount() != 1 {
		t.Fatalf("expected enqueue after close to be dropped, got %d batches", sender.batchCount())
	}
}
