// Command devserver is a local stand-in for the analysis backend: short
// texts get an immediate suggestion batch, longer ones become simulated
// background jobs observable over SSE or polling.
package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"medwriter-client/internal/api"
	"medwriter-client/internal/shared/logging"
	"medwriter-client/internal/shared/metrics"
)

// immediateLimit is the text size above which an analysis becomes a job.
const immediateLimit = 600

func main() {
	store := newJobStore()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/analyze", handleAnalyze(store))
	r.GET("/jobs/:id/status", handleJobStatus(store))
	r.GET("/jobs/:id/events", handleJobEvents(store))
	r.POST("/telemetry", handleTelemetry)
	r.GET("/metrics", metrics.Handler())

	addr := ":" + envOr("PORT", "8080")
	log.Printf("Starting dev analysis backend on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func handleAnalyze(store *jobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		requestID := req.RequestID
		if requestID == "" {
			requestID = uuid.NewString()
		}

		if len(req.Text) <= immediateLimit {
			batch := suggestFor(req.Text)
			logging.Info("immediate analysis", map[string]any{
				"request_id":  requestID,
				"mode":        req.Mode,
				"suggestions": len(batch),
			})
			c.JSON(http.StatusOK, gin.H{
				"request_id": requestID,
				"result":     gin.H{"suggestions": batch},
			})
			return
		}

		j := store.start(req.Text)
		logging.Info("analysis queued", map[string]any{
			"request_id": requestID,
			"job_id":     j.id,
			"mode":       req.Mode,
		})
		c.JSON(http.StatusAccepted, gin.H{
			"status":     api.JobStatusQueued,
			"job_id":     j.id,
			"request_id": requestID,
		})
	}
}

func handleJobStatus(store *jobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		j, ok := store.get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusOK, j.snapshot())
	}
}

func handleJobEvents(store *jobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		j, ok := store.get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		ch, replay := j.subscribe()
		for _, ev := range replay {
			if writeEvent(c, ev) || isTerminal(ev) {
				return
			}
		}

		heartbeat := time.NewTicker(5 * time.Second)
		defer heartbeat.Stop()
		for {
			select {
			case ev := <-ch:
				if writeEvent(c, ev) || isTerminal(ev) {
					return
				}
			case <-heartbeat.C:
				if writeEvent(c, api.JobEvent{Type: api.EventHeartbeat}) {
					return
				}
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

// writeEvent writes one SSE frame and reports whether the client went away.
func writeEvent(c *gin.Context, ev api.JobEvent) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		return true
	}
	if _, err := c.Writer.WriteString("data: " + string(payload) + "\n\n"); err != nil {
		return true
	}
	c.Writer.Flush()
	return false
}

func isTerminal(ev api.JobEvent) bool {
	return ev.Type == api.EventComplete || ev.Type == api.EventError
}

func handleTelemetry(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	var batch struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(body, &batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid telemetry batch"})
		return
	}
	logging.Info("telemetry batch received", map[string]any{"events": len(batch.Events)})
	c.Status(http.StatusAccepted)
}
