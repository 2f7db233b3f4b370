// Package mood classifies free-text player messages into a small set of
// discrete mood tags. The tag selects which companion artwork accompanies a
// chat response.
//
// Classification is a case-insensitive keyword scan evaluated in a fixed
// priority order; the first matching rule wins:
//
//  1. distress keywords  → [Comfort]
//  2. affection keywords → [Affection]
//  3. laughter markers   → [Amusement]
//  4. a question mark    → [Curiosity]
//  5. otherwise          → [Neutral]
//
// [Classify] is pure and safe for concurrent use.
package mood

import "strings"

// Tag is a discrete mood classification.
type Tag string

const (
	Comfort   Tag = "comfort"
	Affection Tag = "affection"
	Amusement Tag = "amusement"
	Curiosity Tag = "curiosity"
	Neutral   Tag = "neutral"
)

// All returns every mood tag in priority order, ending with [Neutral].
func All() []Tag {
	return []Tag{Comfort, Affection, Amusement, Curiosity, Neutral}
}

// IsValid reports whether t is a recognised mood tag.
func (t Tag) IsValid() bool {
	switch t {
	case Comfort, Affection, Amusement, Curiosity, Neutral:
		return true
	}
	return false
}

var (
	distressKeywords  = []string{"sad", "crying", "awful", "terrible", "bad day"}
	affectionKeywords = []string{"love you", "you're the best", "amazing", "wonderful"}
	laughterMarkers   = []string{"haha", "lol"}
)

// Classify returns the mood tag for text. personaName, when non-empty, adds
// the phrase "love you <name>" to the affection keywords.
func Classify(text, personaName string) Tag {
	msg := strings.ToLower(text)

	if containsAny(msg, distressKeywords) {
		return Comfort
	}
	if containsAny(msg, affectionKeywords) {
		return Affection
	}
	if personaName != "" && strings.Contains(msg, "love you "+strings.ToLower(personaName)) {
		return Affection
	}
	if containsAny(msg, laughterMarkers) {
		return Amusement
	}
	if strings.Contains(msg, "?") {
		return Curiosity
	}
	return Neutral
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
