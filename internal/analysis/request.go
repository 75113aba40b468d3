package analysis

import (
	"context"
	"fmt"
	"strings"

	"medwriter-client/internal/api"
	"medwriter-client/internal/host"
)

// Analysis modes sent to the backend. A non-empty selection always wins;
// whole-document requests are truncated client-side unless chunking is
// enabled, in which case the full body ships and the backend splits it.
const (
	ModeSelection         = "selection"
	ModeDocumentTruncated = "document_truncated"
	ModeDocumentChunked   = "document_chunked"
)

// buildRequest shapes one analysis request from the host document state.
func buildRequest(ctx context.Context, doc host.DocumentSurface, requestID, hint string, truncateLimit int, chunkingOn bool) (api.AnalyzeRequest, error) {
	req := api.AnalyzeRequest{RequestID: requestID, TherapeuticAreaHint: hint}

	selection, err := doc.GetSelection(ctx)
	if err != nil {
		return req, fmt.Errorf("read selection: %w", err)
	}
	if strings.TrimSpace(selection) != "" {
		req.Text = selection
		req.Mode = ModeSelection
		return req, nil
	}

	text, err := doc.GetFullDocumentText(ctx)
	if err != nil {
		return req, fmt.Errorf("read document: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return req, ErrNothingToAnalyze
	}

	switch {
	case chunkingOn && len(text) > truncateLimit:
		req.Mode = ModeDocumentChunked
	case len(text) > truncateLimit:
		text = truncate(text, truncateLimit)
		req.Mode = ModeDocumentTruncated
	default:
		req.Mode = ModeDocumentTruncated
	}
	req.Text = text
	return req, nil
}

// truncate cuts text at limit bytes without splitting a UTF-8 sequence.
func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	return text[:cut]
}
