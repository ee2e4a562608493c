package degrade

import "strings"

// Estimator maps text to an approximate token count. It must be monotonic in
// content length; the exact estimator is supplied by the caller.
type Estimator func(text string) int

// DefaultEstimator approximates four characters per token, never less than
// one token for non-empty text.
func DefaultEstimator(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// SplitWords splits text into chunks that each fit budgetTokens, breaking
// only at word boundaries. A single word larger than the budget becomes its
// own chunk (words are never split). Chunk order follows the original text;
// callers concatenate chunk outputs with a single separating space and no
// cross-chunk context is carried.
func SplitWords(text string, budgetTokens int, est Estimator) []string {
	if est == nil {
		est = DefaultEstimator
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var chunks []string
	var b strings.Builder
	for _, w := range words {
		if b.Len() == 0 {
			b.WriteString(w)
			continue
		}
		if est(b.String()+" "+w) > budgetTokens {
			chunks = append(chunks, b.String())
			b.Reset()
			b.WriteString(w)
			continue
		}
		b.WriteString(" ")
		b.WriteString(w)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
