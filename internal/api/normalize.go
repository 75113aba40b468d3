package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"medwriter-client/internal/suggestions"
)

// ErrUnrecognizedShape is returned when a suggestion payload matches none of
// the known response shapes.
var ErrUnrecognizedShape = errors.New("unrecognized suggestion payload shape")

// DecodeSuggestions decodes a result payload into canonical suggestions.
//
// The backend has shipped three response shapes over time:
//
//	{"result": {"suggestions": [...]}}
//	{"result": {"suggestions": {"raw": [...]}}}
//	{"basic_suggestions": {"suggestions": [...]}}
//
// All three are decoded here, at the boundary, into one canonical slice.
// Anything else is rejected rather than probed field by field.
func DecodeSuggestions(raw json.RawMessage) ([]suggestions.Suggestion, error) {
	if len(raw) == 0 {
		return nil, ErrUnrecognizedShape
	}
	var envelope struct {
		Result *struct {
			Suggestions json.RawMessage `json:"suggestions"`
		} `json:"result"`
		Basic *struct {
			Suggestions []SuggestionPayload `json:"suggestions"`
		} `json:"basic_suggestions"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode result payload: %w", err)
	}

	switch {
	case envelope.Result != nil && len(envelope.Result.Suggestions) > 0:
		return decodeSuggestionList(envelope.Result.Suggestions)
	case envelope.Basic != nil:
		return canonicalize(envelope.Basic.Suggestions), nil
	default:
		return nil, ErrUnrecognizedShape
	}
}

// decodeSuggestionList handles the two "result.suggestions" variants: a bare
// array, or an object wrapping the array under "raw".
func decodeSuggestionList(raw json.RawMessage) ([]suggestions.Suggestion, error) {
	var list []SuggestionPayload
	if err := json.Unmarshal(raw, &list); err == nil {
		return canonicalize(list), nil
	}
	var wrapped struct {
		Raw []SuggestionPayload `json:"raw"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Raw != nil {
		return canonicalize(wrapped.Raw), nil
	}
	return nil, ErrUnrecognizedShape
}

func canonicalize(list []SuggestionPayload) []suggestions.Suggestion {
	out := make([]suggestions.Suggestion, 0, len(list))
	for _, p := range list {
		out = append(out, CanonicalSuggestion(p))
	}
	return out
}

// CanonicalSuggestion maps a wire suggestion into the canonical model,
// generating an id when the backend omitted one and clamping confidence
// into [0,1].
func CanonicalSuggestion(p SuggestionPayload) suggestions.Suggestion {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	confidence := p.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return suggestions.Suggestion{
		ID:           id,
		OriginalText: p.OriginalText,
		ImprovedText: p.ImprovedText,
		Rationale:    p.Rationale,
		Confidence:   confidence,
		Category:     p.Category,
	}
}
