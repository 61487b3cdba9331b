package normalize

import (
	"strings"
	"sync"
)

// sentenceTerminators end a phrase. Normalized text is single-case and
// placeholder-scrubbed, so plain terminator scanning is sufficient; there
// are no abbreviations or decimal points left to confuse it.
const sentenceTerminators = ".!?"

// SplitPhrases splits normalized text into sentence-like phrases, keeping
// only phrases with at least two whitespace-delimited tokens. Empty input
// yields an empty slice.
func SplitPhrases(normalized string) []string {
	if normalized == "" {
		return nil
	}

	var phrases []string
	var b strings.Builder
	flush := func() {
		phrase := strings.TrimSpace(b.String())
		b.Reset()
		if len(strings.Fields(phrase)) >= 2 {
			phrases = append(phrases, phrase)
		}
	}

	for _, r := range normalized {
		b.WriteRune(r)
		if strings.ContainsRune(sentenceTerminators, r) {
			flush()
		}
	}
	flush()

	return phrases
}

// Segmenter memoizes SplitPhrases results by normalized-text key.
type Segmenter struct {
	mu    sync.Mutex
	cache map[string][]string
}

// NewSegmenter creates a Segmenter with an empty cache.
func NewSegmenter() *Segmenter {
	return &Segmenter{cache: make(map[string][]string)}
}

// Phrases returns the phrases of normalized text, computing and caching
// them on first use.
func (s *Segmenter) Phrases(normalized string) []string {
	if normalized == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[normalized]; ok {
		return cached
	}
	phrases := SplitPhrases(normalized)
	s.cache[normalized] = phrases
	return phrases
}

// Clear drops all cached entries.
func (s *Segmenter) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string][]string)
}
