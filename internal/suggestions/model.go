package suggestions

// Suggestion is one editable improvement proposed by the analysis backend.
type Suggestion struct {
	ID           string  `json:"id"`
	OriginalText string  `json:"originalText"`
	ImprovedText string  `json:"improvedText"`
	Rationale    string  `json:"rationale"`
	Confidence   float64 `json:"confidenceScore"`
	Category     string  `json:"category"`
}

// State is a suggestion's lifecycle state. All states other than Shown are
// terminal except Accepted, which can still transition to Undone inside the
// undo window.
type State string

const (
	StateShown             State = "shown"
	StateAccepted          State = "accepted"
	StateUndone            State = "undone"
	StateDismissed         State = "dismissed"
	StateInsertedAsComment State = "inserted_as_comment"
)
