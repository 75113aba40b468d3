package api

import "encoding/json"

// Wire-level job status values.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job event types carried on the /jobs/{id}/events stream. Poll responses
// are normalized into the same set before reaching callers.
const (
	EventProgress   = "progress"
	EventSuggestion = "suggestion"
	EventComplete   = "complete"
	EventError      = "error"
	EventHeartbeat  = "heartbeat"
)

// AnalyzeRequest is the POST /analyze payload.
type AnalyzeRequest struct {
	Text                string `json:"text"`
	Mode                string `json:"mode"`
	TherapeuticAreaHint string `json:"therapeutic_area_hint,omitempty"`
	RequestID           string `json:"request_id"`
}

// SuggestionPayload is the wire shape of one suggestion.
type SuggestionPayload struct {
	ID           string  `json:"id,omitempty"`
	OriginalText string  `json:"original_text"`
	ImprovedText string  `json:"improved_text"`
	Rationale    string  `json:"rationale,omitempty"`
	Confidence   float64 `json:"confidence_score"`
	Category     string  `json:"category,omitempty"`
}

// JobStatusResponse is the GET /jobs/{id}/status payload.
type JobStatusResponse struct {
	JobID     string          `json:"job_id"`
	Status    string          `json:"status"`
	Processed int             `json:"processed"`
	Total     int             `json:"total"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// JobEvent is one server-push message on the job event stream.
type JobEvent struct {
	Type       string             `json:"type"`
	Processed  int                `json:"processed,omitempty"`
	Total      int                `json:"total,omitempty"`
	Message    string             `json:"message,omitempty"`
	Suggestion *SuggestionPayload `json:"suggestion,omitempty"`
	Result     json.RawMessage    `json:"result,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// analyzeEnvelope is the raw POST /analyze response before shape
// normalization.
type analyzeEnvelope struct {
	Status    string `json:"status,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
