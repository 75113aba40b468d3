package main

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"medwriter-client/internal/api"
)

// rewriteRules are the canned terminology fixes the stub suggests, standing
// in for the real analysis model.
var rewriteRules = []struct {
	from, to, rationale string
}{
	{"patients", "participants", "Regulatory style prefers 'participants' for enrolled subjects."},
	{"side effects", "adverse events", "Use the ICH-aligned term for unfavorable medical occurrences."},
	{"drug", "study medication", "Refer to the investigational product as 'study medication'."},
	{"doctor", "investigator", "Site personnel should be referred to as investigators."},
}

// suggestFor produces one suggestion per sentence that matches a rewrite
// rule.
func suggestFor(text string) []api.SuggestionPayload {
	var out []api.SuggestionPayload
	for _, sentence := range splitSentences(text) {
		for _, rule := range rewriteRules {
			if !strings.Contains(sentence, rule.from) {
				continue
			}
			out = append(out, api.SuggestionPayload{
				ID:           uuid.NewString(),
				OriginalText: sentence,
				ImprovedText: strings.ReplaceAll(sentence, rule.from, rule.to),
				Rationale:    rule.rationale,
				Confidence:   0.82,
				Category:     "terminology",
			})
			break
		}
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '\n'
	}) {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// job is one simulated background analysis. Events are recorded so a late
// stream subscriber can replay everything emitted so far.
type job struct {
	id string

	mu          sync.Mutex
	status      string
	processed   int
	total       int
	message     string
	result      json.RawMessage
	history     []api.JobEvent
	subscribers []chan api.JobEvent
}

func (j *job) snapshot() api.JobStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	return api.JobStatusResponse{
		JobID:     j.id,
		Status:    j.status,
		Processed: j.processed,
		Total:     j.total,
		Message:   j.message,
		Result:    j.result,
	}
}

// subscribe registers a listener and returns the events already emitted.
func (j *job) subscribe() (<-chan api.JobEvent, []api.JobEvent) {
	ch := make(chan api.JobEvent, 16)
	j.mu.Lock()
	defer j.mu.Unlock()
	replay := append([]api.JobEvent(nil), j.history...)
	j.subscribers = append(j.subscribers, ch)
	return ch, replay
}

func (j *job) emit(ev api.JobEvent) {
	j.mu.Lock()
	j.history = append(j.history, ev)
	subs := append([]chan api.JobEvent(nil), j.subscribers...)
	j.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// jobStore keeps simulated jobs in a TTL cache so abandoned jobs age out
// and later lookups 404, exercising the client's NotFound path.
type jobStore struct {
	jobs *cache.Cache
}

func newJobStore() *jobStore {
	return &jobStore{jobs: cache.New(30*time.Minute, 10*time.Minute)}
}

func (s *jobStore) get(id string) (*job, bool) {
	v, ok := s.jobs.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*job), true
}

// start creates a job and simulates it: progress per sentence batch, one
// suggestion event per hit, then a complete event carrying the batch.
func (s *jobStore) start(text string) *job {
	j := &job{
		id:     uuid.NewString(),
		status: api.JobStatusQueued,
		total:  len(splitSentences(text)),
	}
	s.jobs.SetDefault(j.id, j)

	go func() {
		batch := suggestFor(text)
		sentences := splitSentences(text)
		for i := range sentences {
			time.Sleep(400 * time.Millisecond)
			j.mu.Lock()
			j.status = api.JobStatusProcessing
			j.processed = i + 1
			j.message = "analyzing"
			j.mu.Unlock()
			j.emit(api.JobEvent{
				Type:      api.EventProgress,
				Processed: i + 1,
				Total:     len(sentences),
				Message:   "analyzing",
			})
		}
		for i := range batch {
			j.emit(api.JobEvent{Type: api.EventSuggestion, Suggestion: &batch[i]})
		}

		result, _ := json.Marshal(map[string]any{
			"result": map[string]any{"suggestions": batch},
		})
		j.mu.Lock()
		j.status = api.JobStatusCompleted
		j.result = result
		j.mu.Unlock()
		j.emit(api.JobEvent{Type: api.EventComplete, Result: result})
	}()
	return j
}
