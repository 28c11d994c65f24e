package reconcile

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

var (
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// normalizeText lowercases, strips punctuation and collapses whitespace so
// that formatter output and raw ASR text can be compared on content alone.
func normalizeText(text string) string {
	text = strings.ToLower(text)
	text = nonWordRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// textSimilarity returns a normalized similarity ratio in [0, 1] between
// two texts, computed as 1 - editDistance/maxLen over normalized forms.
func textSimilarity(a, b string) float64 {
	na := normalizeText(a)
	nb := normalizeText(b)
	if na == "" || nb == "" {
		return 0.0
	}
	la := len([]rune(na))
	lb := len([]rune(nb))
	longest := la
	if lb > longest {
		longest = lb
	}
	dist := levenshtein.ComputeDistance(na, nb)
	if dist > longest {
		dist = longest
	}
	return 1.0 - float64(dist)/float64(longest)
}
