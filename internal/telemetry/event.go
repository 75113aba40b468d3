package telemetry

import (
	"time"

	"medwriter-client/internal/shared/util"
)

// Event types emitted by the suggestion lifecycle and job tracking.
const (
	EventAnalysisRequested   = "analysis_requested"
	EventAnalysisQueued      = "analysis_queued"
	EventAnalysisFailed      = "analysis_failed"
	EventSuggestionShown     = "suggestion_shown"
	EventSuggestionAccepted  = "suggestion_accepted"
	EventSuggestionUndone    = "suggestion_undone"
	EventSuggestionDismissed = "suggestion_dismissed"
	EventSuggestionCommented = "suggestion_commented"
	EventJobCompleted        = "job_completed"
	EventJobFailed           = "job_failed"
)

// Event is a single privacy-safe telemetry record. Free text never appears
// here: use WithContent, which stores a one-way hash.
type Event struct {
	Type          string            `json:"eventType"`
	RequestID     string            `json:"requestId"`
	SuggestionID  string            `json:"suggestionId,omitempty"`
	JobID         string            `json:"jobId,omitempty"`
	Category      string            `json:"category,omitempty"`
	ContentHashes map[string]string `json:"contentHashes,omitempty"`
	CommentAnchor string            `json:"commentAnchor,omitempty"`
	DurationMs    int64             `json:"durationMs,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	TenantID      string            `json:"tenantId"`
	UserIDHash    string            `json:"userIdHash"`
}

// NewEvent constructs an event of the given type correlated to a request.
func NewEvent(eventType, requestID string) Event {
	return Event{Type: eventType, RequestID: requestID}
}

// WithSuggestion tags the event with a suggestion id and category.
func (e Event) WithSuggestion(id, category string) Event {
	e.SuggestionID = id
	e.Category = category
	return e
}

// WithJob tags the event with a job id.
func (e Event) WithJob(jobID string) Event {
	e.JobID = jobID
	return e
}

// WithContent hashes raw free text under name. The raw text itself is
// discarded.
func (e Event) WithContent(name, raw string) Event {
	if e.ContentHashes == nil {
		e.ContentHashes = make(map[string]string)
	}
	e.ContentHashes[name] = util.HashContent(raw)
	return e
}

// WithCommentAnchor records the identifier used to correlate an inserted
// comment: either the host's native comment id or a content-derived anchor.
func (e Event) WithCommentAnchor(anchor string) Event {
	e.CommentAnchor = anchor
	return e
}

// WithDuration records an elapsed time in milliseconds.
func (e Event) WithDuration(d time.Duration) Event {
	e.DurationMs = d.Milliseconds()
	return e
}
