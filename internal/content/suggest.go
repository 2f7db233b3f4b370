package content

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	suggestPhoneticThreshold = 0.70
	suggestFuzzyThreshold    = 0.85
)

// SuggestPersona returns the persona key closest to a mistyped input.
//
// Candidates whose Double Metaphone codes overlap with the input are ranked
// by Jaro-Winkler similarity and accepted above 0.70. Without a phonetic
// candidate, pure Jaro-Winkler similarity above 0.85 is required. Both the
// persona key and its display name are compared.
func (s *Store) SuggestPersona(input string) (string, bool) {
	in := NormalizeKey(input)
	if in == "" {
		return "", false
	}
	inCodes := metaphoneCodes(in)

	type candidate struct {
		key      string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, p := range s.Personas() {
		for _, name := range []string{p.Key, strings.ToLower(p.Name)} {
			score := matchr.JaroWinkler(in, name, false)
			if overlaps(inCodes, metaphoneCodes(name)) {
				if score >= suggestPhoneticThreshold && (!best.phonetic || score > best.score) {
					best = candidate{key: p.Key, score: score, phonetic: true}
				}
			} else if !best.phonetic && score >= suggestFuzzyThreshold && score > best.score {
				best = candidate{key: p.Key, score: score}
			}
		}
	}
	return best.key, best.key != ""
}

func metaphoneCodes(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, alt := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if alt != "" {
		codes[alt] = struct{}{}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
