package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"medwriter-client/internal/httpexec"
	"medwriter-client/internal/suggestions"
	"medwriter-client/internal/telemetry"
)

// ErrJobNotFound indicates the backend no longer knows the job id. This is
// terminal: callers must stop polling and offer a fresh submission instead.
var ErrJobNotFound = errors.New("job not found")

// AnalyzeResult is the decoded POST /analyze response: either an immediate
// suggestion batch or a queued job id.
type AnalyzeResult struct {
	RequestID   string
	JobID       string
	Suggestions []suggestions.Suggestion
}

// Queued reports whether the analysis continues as a background job.
func (r *AnalyzeResult) Queued() bool { return r.JobID != "" }

// Client talks to the analysis backend. The analyze path goes through the
// retrying executor; job status and event-stream calls are single attempts
// because their callers own the retry policy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	exec       *httpexec.Executor
}

// NewClient constructs a Client. exec may be nil, in which case a default
// executor is used.
func NewClient(baseURL string, exec *httpexec.Executor) *Client {
	if exec == nil {
		exec = httpexec.New(0, 0)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		exec:       exec,
	}
}

// Analyze submits an analysis request and decodes the response.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode analyze request: %w", err)
	}

	body, err := c.exec.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return nil, err
	}

	var envelope analyzeEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}
	requestID := envelope.RequestID
	if requestID == "" {
		requestID = req.RequestID
	}
	if envelope.Status == JobStatusQueued {
		if envelope.JobID == "" {
			return nil, errors.New("queued analyze response missing job_id")
		}
		return &AnalyzeResult{RequestID: requestID, JobID: envelope.JobID}, nil
	}

	batch, err := DecodeSuggestions(body)
	if err != nil {
		return nil, err
	}
	return &AnalyzeResult{RequestID: requestID, Suggestions: batch}, nil
}

// JobStatus fetches the current state of a background job. A 404 maps to
// ErrJobNotFound; any other non-2xx status surfaces as a StatusError.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatusResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrJobNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &httpexec.StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var status JobStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode job status: %w", err)
	}
	if status.JobID == "" {
		status.JobID = jobID
	}
	return &status, nil
}

// OpenJobEvents opens the persistent event stream for a job. The caller
// owns the returned body and must close it.
func (c *Client) OpenJobEvents(ctx context.Context, jobID string) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID+"/events", nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrJobNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &httpexec.StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, nil
}

// Send delivers one batch of telemetry events, satisfying
// telemetry.Sender. Exactly one attempt is made; the batcher drops the
// batch on failure.
func (c *Client) Send(ctx context.Context, events []telemetry.Event) error {
	payload, err := json.Marshal(map[string]any{"events": events})
	if err != nil {
		return fmt.Errorf("encode telemetry batch: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/telemetry", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &httpexec.StatusError{Code: resp.StatusCode}
	}
	return nil
}

var _ telemetry.Sender = (*Client)(nil)
