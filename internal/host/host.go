package host

import "context"

// DocumentSurface is the injected capability interface over the editing
// host. The core never talks to the host environment directly; everything
// goes through this narrow surface so it can be faked in tests.
type DocumentSurface interface {
	// GetSelection returns the currently selected text, which may be empty.
	GetSelection(ctx context.Context) (string, error)

	// GetFullDocumentText returns the whole document body.
	GetFullDocumentText(ctx context.Context) (string, error)

	// ReplaceSelection replaces the current selection with text.
	ReplaceSelection(ctx context.Context, text string) error

	// ReplaceRange replaces the characters in [start, end) with text.
	ReplaceRange(ctx context.Context, start, end int, text string) error

	// SetHighlight applies a highlight color to the most recent edit.
	SetHighlight(ctx context.Context, color string) error

	// InsertComment adds a comment to the document and returns its id. Some
	// hosts cannot produce a stable id; they return an empty string, which
	// is a handled condition, not an error.
	InsertComment(ctx context.Context, body string) (string, error)
}
