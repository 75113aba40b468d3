package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	analysesStartedTotal   atomic.Uint64
	analysesCompletedTotal atomic.Uint64
	analysesFailedTotal    atomic.Uint64
	analysesBusyTotal      atomic.Uint64

	jobStreamReconnectsTotal atomic.Uint64
	jobPollFallbacksTotal    atomic.Uint64

	suggestionsAcceptedTotal  atomic.Uint64
	suggestionsDismissedTotal atomic.Uint64
	suggestionsUndoneTotal    atomic.Uint64

	decisionLatency = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncAnalysisStarted increments the started counter.
func IncAnalysisStarted() { analysesStartedTotal.Add(1) }

// IncAnalysisCompleted increments the completed counter.
func IncAnalysisCompleted() { analysesCompletedTotal.Add(1) }

// IncAnalysisFailed increments the failed counter.
func IncAnalysisFailed() { analysesFailedTotal.Add(1) }

// IncAnalysisBusy counts submits rejected by the single-flight guard.
func IncAnalysisBusy() { analysesBusyTotal.Add(1) }

// IncJobStreamReconnect counts stream reconnect attempts.
func IncJobStreamReconnect() { jobStreamReconnectsTotal.Add(1) }

// IncJobPollFallback counts switches from streaming to polling.
func IncJobPollFallback() { jobPollFallbacksTotal.Add(1) }

// IncSuggestionAccepted increments the accepted counter.
func IncSuggestionAccepted() { suggestionsAcceptedTotal.Add(1) }

// IncSuggestionDismissed increments the dismissed counter.
func IncSuggestionDismissed() { suggestionsDismissedTotal.Add(1) }

// IncSuggestionUndone increments the undone counter.
func IncSuggestionUndone() { suggestionsUndoneTotal.Add(1) }

// ObserveDecisionLatencyMs records how long a suggestion stayed visible
// before the user acted on it.
func ObserveDecisionLatencyMs(value float64) {
	if value < 0 {
		value = 0
	}
	decisionLatency.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "analyses_started_total", "Total analyses submitted", analysesStartedTotal.Load())
	writeCounter(&buf, "analyses_completed_total", "Total analyses completed", analysesCompletedTotal.Load())
	writeCounter(&buf, "analyses_failed_total", "Total analyses failed", analysesFailedTotal.Load())
	writeCounter(&buf, "analyses_busy_total", "Total submits rejected while busy", analysesBusyTotal.Load())
	writeCounter(&buf, "job_stream_reconnects_total", "Total job stream reconnect attempts", jobStreamReconnectsTotal.Load())
	writeCounter(&buf, "job_poll_fallbacks_total", "Total stream-to-poll fallbacks", jobPollFallbacksTotal.Load())
	writeCounter(&buf, "suggestions_accepted_total", "Total suggestions accepted", suggestionsAcceptedTotal.Load())
	writeCounter(&buf, "suggestions_dismissed_total", "Total suggestions dismissed", suggestionsDismissedTotal.Load())
	writeCounter(&buf, "suggestions_undone_total", "Total accepted suggestions undone", suggestionsUndoneTotal.Load())
	writeHistogram(&buf, "suggestion_decision_latency_ms", "Time from shown to decision in milliseconds", decisionLatency.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
