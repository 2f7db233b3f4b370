package narrative

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// StopTerm is excluded from word statistics. Memory entries are prefixed
// with it.
const StopTerm = "user"

// WordCount is a word and the number of times it appeared.
type WordCount struct {
	Word  string
	Count int
}

// TopWords counts words longer than four characters across memory, skipping
// [StopTerm], and returns the n most frequent. Ties keep first-seen order.
// Words are lowercased and stripped of surrounding punctuation.
func TopWords(memory []string, n int) []WordCount {
	if n <= 0 {
		return nil
	}

	counts := make(map[string]int)
	var order []string
	for _, entry := range memory {
		for _, raw := range strings.Fields(strings.ToLower(entry)) {
			w := strings.TrimFunc(raw, unicode.IsPunct)
			if utf8.RuneCountInString(w) <= 4 || w == StopTerm {
				continue
			}
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}

	out := make([]WordCount, 0, len(order))
	for _, w := range order {
		out = append(out, WordCount{Word: w, Count: counts[w]})
	}
	slices.SortStableFunc(out, func(a, b WordCount) int { return b.Count - a.Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
