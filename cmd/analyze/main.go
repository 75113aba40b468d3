// Command analyze runs one analysis against the backend and prints the
// resulting suggestions. The document comes from a file argument or stdin.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"medwriter-client/internal/analysis"
	"medwriter-client/internal/api"
	"medwriter-client/internal/host"
	"medwriter-client/internal/httpexec"
	"medwriter-client/internal/jobs"
	"medwriter-client/internal/shared/config"
	"medwriter-client/internal/telemetry"
	"medwriter-client/internal/undo"
)

func main() {
	hint := flag.String("hint", "", "therapeutic area hint passed to the backend")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline for the analysis")
	flag.Parse()

	text, err := readDocument(flag.Arg(0))
	if err != nil {
		log.Fatalf("read document: %v", err)
	}

	cfg := config.Load()
	exec := httpexec.New(cfg.MaxAttempts, cfg.RetryBaseDelay)
	exec.AttemptTimeout = cfg.AttemptTimeout
	exec.OnRetry = func(attempt, max int) {
		fmt.Fprintf(os.Stderr, "service starting, attempt %d/%d\n", attempt, max)
	}

	client := api.NewClient(cfg.BackendURL, exec)
	batcher := telemetry.NewBatcher(client, cfg.TenantID, cfg.UserID, cfg.TelemetryBatchSize, cfg.TelemetryTimeout)
	defer batcher.Close()

	registry := jobs.NewRegistry(client, jobs.Options{})
	defer registry.CloseAll()

	doc := host.NewMemoryDocument(text)
	orch := analysis.NewOrchestrator(client, registry, doc, undo.NewStore(time.Now), batcher, cfg)
	orch.OnProgress = func(processed, total int, message string) {
		fmt.Fprintf(os.Stderr, "progress %d/%d %s\n", processed, total, message)
	}
	orch.OnJobError = func(jobID string, err error) {
		fmt.Fprintf(os.Stderr, "job %s failed: %v\n", jobID, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := orch.Submit(ctx, *hint)
	if err != nil {
		log.Fatalf("analyze: %v", err)
	}
	if res.Queued() {
		fmt.Fprintf(os.Stderr, "queued as job %s\n", res.JobID)
		select {
		case <-res.Conn.Done():
		case <-ctx.Done():
			log.Fatalf("analyze: %v", ctx.Err())
		}
		if status := res.Conn.Status(); status != jobs.StatusCompleted {
			log.Fatalf("job ended %s", status)
		}
	}

	printBatch(res)
}

func readDocument(path string) (string, error) {
	if path == "" || path == "-" {
		raw, err := io.ReadAll(os.Stdin)
		return string(raw), err
	}
	raw, err := os.ReadFile(path)
	return string(raw), err
}

func printBatch(res *analysis.Result) {
	batch := res.Manager.List()
	if len(batch) == 0 {
		fmt.Println("no suggestions")
		return
	}
	fmt.Printf("%d suggestions for request %s\n\n", len(batch), res.RequestID)
	for i, s := range batch {
		fmt.Printf("%d. [%s, %.0f%%] %q -> %q\n", i+1, s.Category, s.Confidence*100, s.OriginalText, s.ImprovedText)
		if s.Rationale != "" {
			fmt.Printf("   %s\n", s.Rationale)
		}
	}
}
