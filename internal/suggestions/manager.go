package suggestions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"medwriter-client/internal/host"
	"medwriter-client/internal/shared/metrics"
	"medwriter-client/internal/shared/util"
	"medwriter-client/internal/telemetry"
	"medwriter-client/internal/undo"
)

// AcceptHighlightColor marks freshly applied edits in the document.
const AcceptHighlightColor = "#E2F0D9"

type tracked struct {
	Suggestion
	state      State
	shownAt    time.Time
	acceptedAt time.Time
}

// Manager owns the batch of suggestions produced by one analysis request
// and drives each through its state machine, emitting telemetry and host
// side effects at every transition.
type Manager struct {
	requestID  string
	doc        host.DocumentSurface
	undoStore  *undo.Store
	batcher    *telemetry.Batcher
	undoWindow time.Duration
	now        func() time.Time

	mu    sync.Mutex
	items map[string]*tracked
	order []string
}

// NewManager constructs a Manager for one request's suggestion batch.
func NewManager(requestID string, doc host.DocumentSurface, undoStore *undo.Store, batcher *telemetry.Batcher) *Manager {
	return &Manager{
		requestID:  requestID,
		doc:        doc,
		undoStore:  undoStore,
		batcher:    batcher,
		undoWindow: undo.DefaultWindow,
		now:        time.Now,
	}
}

// Show registers the suggestion as visible, stamping shownAt. Suggestions
// must be shown in the order the backend returned them; the manager
// preserves that order.
func (m *Manager) Show(s Suggestion) {
	m.mu.Lock()
	if _, exists := m.items[s.ID]; exists {
		m.mu.Unlock()
		return
	}
	if m.items == nil {
		m.items = make(map[string]*tracked)
	}
	m.items[s.ID] = &tracked{Suggestion: s, state: StateShown, shownAt: m.now()}
	m.order = append(m.order, s.ID)
	m.mu.Unlock()

	m.emit(telemetry.NewEvent(telemetry.EventSuggestionShown, m.requestID).
		WithSuggestion(s.ID, s.Category).
		WithContent("originalText", s.OriginalText).
		WithContent("improvedText", s.ImprovedText))
}

// Accept applies the improved text to the document, snapshots the replaced
// text for undo, and transitions Shown -> Accepted.
func (m *Manager) Accept(ctx context.Context, id string) error {
	m.mu.Lock()
	item, err := m.requireLocked(id, StateShown)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	docText, err := m.doc.GetFullDocumentText(ctx)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	start := strings.Index(docText, item.OriginalText)
	if start < 0 {
		return ErrOriginalTextMissing
	}
	end := start + len(item.OriginalText)
	if err := m.doc.ReplaceRange(ctx, start, end, item.ImprovedText); err != nil {
		return fmt.Errorf("apply suggestion: %w", err)
	}
	if err := m.doc.SetHighlight(ctx, AcceptHighlightColor); err != nil {
		return fmt.Errorf("highlight edit: %w", err)
	}

	now := m.now()
	m.undoStore.Put(id, item.OriginalText, start, start+len(item.ImprovedText), m.undoWindow)

	m.mu.Lock()
	item.state = StateAccepted
	item.acceptedAt = now
	shownAt := item.shownAt
	m.mu.Unlock()

	metrics.IncSuggestionAccepted()
	metrics.ObserveDecisionLatencyMs(float64(now.Sub(shownAt).Milliseconds()))
	m.emit(telemetry.NewEvent(telemetry.EventSuggestionAccepted, m.requestID).
		WithSuggestion(id, item.Category).
		WithContent("improvedText", item.ImprovedText).
		WithDuration(now.Sub(shownAt)))
	return nil
}

// Undo restores the text captured at accept time, provided the undo window
// is still open. The document is untouched when the window has closed.
func (m *Manager) Undo(ctx context.Context, id string) error {
	m.mu.Lock()
	item, err := m.requireLocked(id, StateAccepted)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	entry, ok := m.undoStore.Get(id)
	if !ok {
		return ErrUndoExpired
	}
	if err := m.doc.ReplaceRange(ctx, entry.RangeStart, entry.RangeEnd, entry.OriginalText); err != nil {
		return fmt.Errorf("restore original text: %w", err)
	}
	m.undoStore.Clear(id)

	now := m.now()
	m.mu.Lock()
	item.state = StateUndone
	acceptedAt := item.acceptedAt
	m.mu.Unlock()

	metrics.IncSuggestionUndone()
	m.emit(telemetry.NewEvent(telemetry.EventSuggestionUndone, m.requestID).
		WithSuggestion(id, item.Category).
		WithDuration(now.Sub(acceptedAt)))
	return nil
}

// Dismiss transitions Shown -> Dismissed without touching the document.
func (m *Manager) Dismiss(id string) error {
	m.mu.Lock()
	item, err := m.requireLocked(id, StateShown)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	now := m.now()
	item.state = StateDismissed
	shownAt := item.shownAt
	m.mu.Unlock()

	metrics.IncSuggestionDismissed()
	metrics.ObserveDecisionLatencyMs(float64(now.Sub(shownAt).Milliseconds()))
	m.emit(telemetry.NewEvent(telemetry.EventSuggestionDismissed, m.requestID).
		WithSuggestion(id, item.Category).
		WithDuration(now.Sub(shownAt)))
	return nil
}

// InsertAsComment records the suggestion and rationale as a host comment
// instead of applying it. When the host cannot produce a stable comment id,
// a content-derived anchor keeps the comment correlatable in telemetry.
func (m *Manager) InsertAsComment(ctx context.Context, id string) error {
	m.mu.Lock()
	item, err := m.requireLocked(id, StateShown)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	body := fmt.Sprintf("Suggestion: %s\n\nRationale: %s", item.ImprovedText, item.Rationale)
	commentID, err := m.doc.InsertComment(ctx, body)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	anchor := commentID
	if anchor == "" {
		anchor = "anchor:" + util.HashContent(item.OriginalText+"|"+m.requestID+"|"+id)
	}

	now := m.now()
	m.mu.Lock()
	item.state = StateInsertedAsComment
	shownAt := item.shownAt
	m.mu.Unlock()

	m.emit(telemetry.NewEvent(telemetry.EventSuggestionCommented, m.requestID).
		WithSuggestion(id, item.Category).
		WithCommentAnchor(anchor).
		WithDuration(now.Sub(shownAt)))
	return nil
}

// StateOf returns the lifecycle state for id.
func (m *Manager) StateOf(id string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return "", ErrUnknownSuggestion
	}
	return item.state, nil
}

// List returns the batch in the order it was shown.
func (m *Manager) List() []Suggestion {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Suggestion, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.items[id].Suggestion)
	}
	return out
}

// requireLocked looks up id and enforces the state machine guard. Callers
// must hold m.mu.
func (m *Manager) requireLocked(id string, want State) (*tracked, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, ErrUnknownSuggestion
	}
	if item.state != want {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, item.state)
	}
	return item, nil
}

func (m *Manager) emit(ev telemetry.Event) {
	if m.batcher != nil {
		m.batcher.Enqueue(ev)
	}
}
