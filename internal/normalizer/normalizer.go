// Package normalizer corrects query text before resolution: common typos in
// finance words and month names are fuzz-corrected, and multi-word entity
// tags spread across several tokens are merged back into one mention.
package normalizer

import (
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"sheetchat-backend/internal/similarity"
)

const correctionThreshold = 85.0

// Known finance and calendar words a misspelled token may be corrected to.
var knownWords = []string{
	"total", "gst", "tax", "cgst", "sgst", "igst", "net", "gross", "amount",
	"discount", "invoice", "transaction", "customer", "client", "branch",
	"region", "category", "payment", "breakdown", "trend", "chart", "graph",
	"summary", "upload", "uploaded",
	"january", "february", "march", "april", "may", "june", "july",
	"august", "september", "october", "november", "december",
}

// Normalizer rewrites query text token by token. Entity tags come from a
// provider so corrections always reflect the tags actually present in the
// store.
type Normalizer struct {
	scorer      similarity.Scorer
	entityTags  func() []string
	corrections map[string]string
}

// New builds a normalizer. entityTags may be nil when no tag source exists.
func New(scorer similarity.Scorer, entityTags func() []string) *Normalizer {
	return &Normalizer{
		scorer:     scorer,
		entityTags: entityTags,
		// Fixed spellings fuzzy matching would miss or get wrong.
		corrections: map[string]string{
			"amt":   "amount",
			"qty":   "quantity",
			"feb":   "february",
			"jan":   "january",
			"mar":   "march",
			"apr":   "april",
			"jun":   "june",
			"jul":   "july",
			"aug":   "august",
			"sep":   "september",
			"sept":  "september",
			"oct":   "october",
			"nov":   "november",
			"dec":   "december",
			"gsts":  "gst",
			"taxes": "tax",
		},
	}
}

// Normalize returns the corrected text plus a map of original token to the
// replacement applied, for the audit block.
func (n *Normalizer) Normalize(query string) (string, map[string]string) {
	corrections := map[string]string{}
	tokens := strings.Fields(query)
	out := make([]string, 0, len(tokens))

	var tags []string
	if n.entityTags != nil {
		tags = n.entityTags()
	}

	for i := 0; i < len(tokens); i++ {
		// A multi-word entity tag may arrive split across tokens; try the
		// longest phrase first so "acme retail north" beats "acme".
		if phrase, consumed := n.matchEntityPhrase(tokens[i:], tags); consumed > 0 {
			original := strings.Join(tokens[i:i+consumed], " ")
			if original != phrase {
				corrections[original] = phrase
			}
			out = append(out, phrase)
			i += consumed - 1
			continue
		}
		tok := tokens[i]
		fixed := n.correctToken(tok)
		if fixed != tok {
			corrections[tok] = fixed
		}
		out = append(out, fixed)
	}

	result := strings.Join(out, " ")
	if len(corrections) > 0 {
		log.Debug().Str("query", query).Interface("corrections", corrections).
			Msg("query normalized")
	}
	return result, corrections
}

func (n *Normalizer) correctToken(tok string) string {
	lower := strings.ToLower(tok)
	bare := strings.TrimFunc(lower, unicode.IsPunct)
	if bare == "" || hasDigit(bare) {
		return tok
	}
	if fixed, ok := n.corrections[bare]; ok {
		return fixed
	}
	// Already a known word, leave it alone.
	for _, w := range knownWords {
		if bare == w {
			return tok
		}
	}
	best := ""
	bestScore := 0.0
	for _, w := range knownWords {
		if s := n.scorer.Ratio(bare, w); s > bestScore {
			bestScore = s
			best = w
		}
	}
	if bestScore >= correctionThreshold {
		return best
	}
	return tok
}

// matchEntityPhrase tries to match the leading tokens against a known entity
// tag, allowing up to five words per tag. Returns the canonical tag and how
// many tokens it consumed.
func (n *Normalizer) matchEntityPhrase(tokens, tags []string) (string, int) {
	for _, tag := range tags {
		words := strings.Fields(strings.ToLower(tag))
		if len(words) < 2 || len(words) > 5 || len(words) > len(tokens) {
			continue
		}
		ok := true
		for j, w := range words {
			cand := strings.TrimFunc(strings.ToLower(tokens[j]), unicode.IsPunct)
			if n.scorer.Ratio(cand, w) < correctionThreshold {
				ok = false
				break
			}
		}
		if ok {
			return tag, len(words)
		}
	}
	return "", 0
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
