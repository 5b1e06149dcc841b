// Package similarity provides the string-similarity scoring the resolver
// uses for concept-to-column matching. The scorer is an interface so the
// matching behavior (and its threshold) can be swapped without touching
// resolver logic.
package similarity

// Scorer reports how alike two already-normalized strings are, on a 0-100
// scale where 100 means identical.
type Scorer interface {
	Ratio(a, b string) float64
}

type levenshteinScorer struct{}

// NewLevenshteinScorer returns the default scorer: a normalized Levenshtein
// ratio, 100*(1 - distance/maxLen).
func NewLevenshteinScorer() Scorer {
	return levenshteinScorer{}
}

func (levenshteinScorer) Ratio(a, b string) float64 {
	if a == b {
		return 100
	}
	ra := []rune(a)
	rb := []rune(b)
	la := len(ra)
	lb := len(rb)
	if la == 0 || lb == 0 {
		return 0
	}
	dist := levenshtein(ra, rb)
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	return 100 * (1 - float64(dist)/float64(maxLen))
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
