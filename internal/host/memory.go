package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Comment is a comment recorded against the in-memory document.
type Comment struct {
	ID   string
	Body string
}

// MemoryDocument implements DocumentSurface over an in-memory text buffer.
// It backs the CLI and the test suites.
type MemoryDocument struct {
	mu         sync.Mutex
	text       string
	selStart   int
	selEnd     int
	comments   []Comment
	highlight  string
	nextID     int
	noStableID bool
}

// NewMemoryDocument constructs a document containing text with an empty
// selection at the start.
func NewMemoryDocument(text string) *MemoryDocument {
	return &MemoryDocument{text: text}
}

// DisableCommentIDs makes InsertComment return empty ids, simulating hosts
// without stable comment identifiers.
func (d *MemoryDocument) DisableCommentIDs() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.noStableID = true
}

// Select sets the selection range.
func (d *MemoryDocument) Select(start, end int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if start < 0 || end > len(d.text) || start > end {
		return errors.New("selection out of range")
	}
	d.selStart, d.selEnd = start, end
	return nil
}

func (d *MemoryDocument) GetSelection(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text[d.selStart:d.selEnd], nil
}

func (d *MemoryDocument) GetFullDocumentText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text, nil
}

func (d *MemoryDocument) ReplaceSelection(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = d.text[:d.selStart] + text + d.text[d.selEnd:]
	d.selEnd = d.selStart + len(text)
	return nil
}

func (d *MemoryDocument) ReplaceRange(ctx context.Context, start, end int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if start < 0 || end > len(d.text) || start > end {
		return errors.New("range out of bounds")
	}
	d.text = d.text[:start] + text + d.text[end:]
	return nil
}

func (d *MemoryDocument) SetHighlight(ctx context.Context, color string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.highlight = color
	return nil
}

func (d *MemoryDocument) InsertComment(ctx context.Context, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := fmt.Sprintf("comment-%d", d.nextID)
	if d.noStableID {
		id = ""
	}
	d.comments = append(d.comments, Comment{ID: id, Body: body})
	return id, nil
}

// Text returns the current document body.
func (d *MemoryDocument) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Comments returns all recorded comments.
func (d *MemoryDocument) Comments() []Comment {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Comment, len(d.comments))
	copy(out, d.comments)
	return out
}

// Highlight returns the last applied highlight color.
func (d *MemoryDocument) Highlight() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.highlight
}

var _ DocumentSurface = (*MemoryDocument)(nil)
