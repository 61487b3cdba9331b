// Package normalize provides deterministic scrubbing of volatile substrings
// from incident text, producing comparison-stable strings.
//
// Incident reports carry values that change between otherwise identical
// occurrences: timestamps, ticket codes, order numbers. Normalization
// replaces those with fixed placeholders so that two reports describing the
// same failure compare equal.
package normalize

import (
	"regexp"
	"strings"
	"sync"
)

// Placeholders substituted for volatile substrings. They are lower-cased
// together with the rest of the text at the end of the pass.
const (
	datePlaceholder = "[DATE]"
	timePlaceholder = "[TIME]"
	idPlaceholder   = "[ID]"
)

// Substitution patterns, applied in a fixed order. The order matters:
// slash/dash dates must be consumed before the time pattern can see a bare
// H:MM, and ticket codes before long-digit runs.
var (
	reISODate   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)             // 2025-10-18
	reDelimDate = regexp.MustCompile(`\b\d{1,2}[:/\-]\d{1,2}[:/\-]\d{2,4}\b`) // 10/18/2025, 18-10-25
	reClockTime = regexp.MustCompile(`\b\d{1,2}:\d{2}(:\d{2})?(\s?[AaPp][Mm])?\b`)
	reTicket    = regexp.MustCompile(`\b[A-Z]{2,}\d+\b`) // INC123, REQ456
	reLongNum   = regexp.MustCompile(`\b\d{5,}\b`)
	reHashNum   = regexp.MustCompile(`#\d+`)
	reMidNum    = regexp.MustCompile(`\s\d+\s`)
	reLeadNum   = regexp.MustCompile(`^\d+\s`)
	reTrailNum  = regexp.MustCompile(`\s\d+$`)
	reSpaces    = regexp.MustCompile(`\s+`)
)

// Normalize scrubs volatile substrings from text and folds case and
// whitespace. Empty input yields an empty string.
//
// The pass is applied exactly once, never to a fixpoint. Removing a
// standalone number can expose a new leading or trailing number that a
// second pass would also strip; that single-pass behavior is load-bearing
// because cached similarity scores are keyed by its exact output.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	s := reISODate.ReplaceAllString(text, datePlaceholder)
	s = reDelimDate.ReplaceAllString(s, datePlaceholder)
	s = reClockTime.ReplaceAllString(s, timePlaceholder)

	s = reTicket.ReplaceAllString(s, idPlaceholder)
	s = reLongNum.ReplaceAllString(s, idPlaceholder)
	s = reHashNum.ReplaceAllString(s, idPlaceholder)

	// Standalone numeric tokens. Matches do not overlap, so of two adjacent
	// standalone numbers only the first is stripped in this pass.
	s = reMidNum.ReplaceAllString(s, " ")
	s = reLeadNum.ReplaceAllString(s, "")
	s = reTrailNum.ReplaceAllString(s, "")

	s = reSpaces.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// Normalizer memoizes Normalize results by input text.
type Normalizer struct {
	mu    sync.Mutex
	cache map[string]string
}

// NewNormalizer creates a Normalizer with an empty cache.
func NewNormalizer() *Normalizer {
	return &Normalizer{cache: make(map[string]string)}
}

// Normalize returns the normalized form of text, computing and caching it
// on first use.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if cached, ok := n.cache[text]; ok {
		return cached
	}
	normalized := Normalize(text)
	n.cache[text] = normalized
	return normalized
}

// Len returns the number of cached entries.
func (n *Normalizer) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.cache)
}

// Clear drops all cached entries.
func (n *Normalizer) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cache = make(map[string]string)
}
