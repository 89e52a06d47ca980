// Package memory decides which user messages are worth remembering.
package memory

import (
	"strings"
	"unicode/utf8"

	"github.com/ent0n29/amical/internal/store"
)

const (
	// MinLength is the length a message must exceed to be remembered.
	MinLength = 50
	// MediumLength is the length above which a message is medium importance.
	MediumLength = 100
)

// highKeywords force high importance. Matching is case-sensitive.
var highKeywords = []string{"important", "remember"}

// Candidate is a memory the extractor proposes to store.
type Candidate struct {
	Fact       string
	Importance store.Importance
}

// Extract classifies the latest user message. ok is false when the message
// is too short to be remembered.
func Extract(message string) (Candidate, bool) {
	n := utf8.RuneCountInString(message)
	if n <= MinLength {
		return Candidate{}, false
	}
	return Candidate{
		Fact:       store.TruncateRunes(message, store.MaxFactLength),
		Importance: classify(message, n),
	}, true
}

func classify(message string, length int) store.Importance {
	for _, kw := range highKeywords {
		if strings.Contains(message, kw) {
			return store.ImportanceHigh
		}
	}
	if length > MediumLength {
		return store.ImportanceMedium
	}
	return store.ImportanceLow
}
