package suggestions

import "errors"

var (
	// ErrUnknownSuggestion is returned for an id the manager never showed.
	ErrUnknownSuggestion = errors.New("unknown suggestion")

	// ErrInvalidTransition is returned when an action is attempted on a
	// suggestion that is not in a state the action accepts. The document is
	// left untouched so bugs in the UI layer surface immediately.
	ErrInvalidTransition = errors.New("invalid suggestion transition")

	// ErrUndoExpired is returned when the undo window has closed.
	ErrUndoExpired = errors.New("undo window expired")

	// ErrOriginalTextMissing is returned when the suggestion's original text
	// can no longer be located in the document.
	ErrOriginalTextMissing = errors.New("original text not found in document")
)
