package analysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"medwriter-client/internal/api"
	"medwriter-client/internal/host"
	"medwriter-client/internal/jobs"
	"medwriter-client/internal/shared/config"
	"medwriter-client/internal/shared/logging"
	"medwriter-client/internal/shared/metrics"
	"medwriter-client/internal/suggestions"
	"medwriter-client/internal/telemetry"
	"medwriter-client/internal/undo"
)

// Submitter is the slice of the API client the orchestrator needs.
type Submitter interface {
	Analyze(ctx context.Context, req api.AnalyzeRequest) (*api.AnalyzeResult, error)
}

// Result is the outcome of one submission. Manager is always populated: for
// an immediate result it already holds the shown batch, for a queued job the
// suggestions arrive through Conn as the job progresses.
type Result struct {
	RequestID string
	JobID     string
	Manager   *suggestions.Manager
	Conn      *jobs.Connection
}

// Queued reports whether the analysis continues as a background job.
func (r *Result) Queued() bool { return r.JobID != "" }

// Orchestrator is the top-level entry point for analyses. It enforces the
// single-flight rule: one submission in flight at a time, rejected with
// ErrBusy otherwise. The flag clears on every exit path, including when a
// queued job is handed to the registry, so a new submission may start while
// a prior job still streams.
type Orchestrator struct {
	submitter Submitter
	registry  *jobs.Registry
	doc       host.DocumentSurface
	undoStore *undo.Store
	batcher   *telemetry.Batcher

	truncateLimit int
	chunkingOn    bool

	// OnProgress, when set, receives background job progress updates.
	OnProgress func(processed, total int, message string)
	// OnJobError, when set, receives terminal background job failures.
	OnJobError func(jobID string, err error)

	mu   sync.Mutex
	busy bool
}

// NewOrchestrator wires the orchestrator to its collaborators.
func NewOrchestrator(submitter Submitter, registry *jobs.Registry, doc host.DocumentSurface, undoStore *undo.Store, batcher *telemetry.Batcher, cfg config.Config) *Orchestrator {
	return &Orchestrator{
		submitter:     submitter,
		registry:      registry,
		doc:           doc,
		undoStore:     undoStore,
		batcher:       batcher,
		truncateLimit: cfg.TruncateLimit,
		chunkingOn:    cfg.ChunkingOn,
	}
}

// Submit runs one analysis: builds the request from the host document,
// submits it through the retrying executor, and routes the outcome. Busy
// submissions are rejected before any document read or network call.
func (o *Orchestrator) Submit(ctx context.Context, hint string) (*Result, error) {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		metrics.IncAnalysisBusy()
		return nil, ErrBusy
	}
	o.busy = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
	}()

	requestID := uuid.NewString()
	req, err := buildRequest(ctx, o.doc, requestID, hint, o.truncateLimit, o.chunkingOn)
	if err != nil {
		return nil, err
	}

	metrics.IncAnalysisStarted()
	o.emit(telemetry.NewEvent(telemetry.EventAnalysisRequested, requestID).
		WithContent("text", req.Text))
	logging.Info("analysis submitted", map[string]any{
		"request_id": requestID,
		"mode":       req.Mode,
		"text_len":   len(req.Text),
	})

	res, err := o.submitter.Analyze(ctx, req)
	if err != nil {
		metrics.IncAnalysisFailed()
		o.emit(telemetry.NewEvent(telemetry.EventAnalysisFailed, requestID))
		return nil, fmt.Errorf("submit analysis: %w", err)
	}

	mgr := suggestions.NewManager(requestID, o.doc, o.undoStore, o.batcher)
	out := &Result{RequestID: requestID, Manager: mgr}

	if res.Queued() {
		o.emit(telemetry.NewEvent(telemetry.EventAnalysisQueued, requestID).WithJob(res.JobID))
		logging.Info("analysis queued", map[string]any{"request_id": requestID, "job_id": res.JobID})
		out.JobID = res.JobID
		out.Conn = o.registry.Track(res.JobID, o.jobCallbacks(requestID, res.JobID, mgr))
		return out, nil
	}

	for _, s := range res.Suggestions {
		mgr.Show(s)
	}
	return out, nil
}

// jobCallbacks routes background job updates into the request's lifecycle
// manager. Suggestions are shown in arrival order.
func (o *Orchestrator) jobCallbacks(requestID, jobID string, mgr *suggestions.Manager) jobs.Callbacks {
	return jobs.Callbacks{
		OnProgress: func(processed, total int, message string) {
			if o.OnProgress != nil {
				o.OnProgress(processed, total, message)
			}
		},
		OnSuggestion: mgr.Show,
		OnComplete: func(batch []suggestions.Suggestion) {
			for _, s := range batch {
				mgr.Show(s)
			}
			o.emit(telemetry.NewEvent(telemetry.EventJobCompleted, requestID).WithJob(jobID))
		},
		OnError: func(err error) {
			logging.Error("background job failed", map[string]any{
				"request_id": requestID,
				"job_id":     jobID,
				"error":      err.Error(),
			})
			o.emit(telemetry.NewEvent(telemetry.EventJobFailed, requestID).WithJob(jobID))
			if o.OnJobError != nil {
				o.OnJobError(jobID, err)
			}
		},
	}
}

func (o *Orchestrator) emit(ev telemetry.Event) {
	if o.batcher != nil {
		o.batcher.Enqueue(ev)
	}
}
