// Package resolver maps user vocabulary to canonical concepts and binds
// those concepts to the columns of the currently active dataset. It is a
// pure function over the query text and a schema snapshot; it never guesses
// below the similarity threshold and never binds a concept to more than one
// column.
package resolver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"sheetchat-backend/internal/model"
	"sheetchat-backend/internal/similarity"
	"sheetchat-backend/internal/vocab"
)

// DefaultThreshold is the similarity bar a column must clear to qualify as
// a binding for a detected concept.
const DefaultThreshold = 85.0

// Result classifies every detected concept into exactly one of resolved,
// unresolved or ambiguous, and carries the derived grouping columns.
type Result struct {
	// Resolved maps concept name to the single schema column it bound to.
	Resolved map[string]string
	// GroupBy lists resolved columns the query asked to aggregate by, in
	// order of mention.
	GroupBy []string
	// Unresolved lists concepts the user mentioned for which no column
	// cleared the threshold.
	Unresolved []string
	// Ambiguous lists concepts where two or more columns tied at the top
	// qualifying score.
	Ambiguous []string
	// AmbiguousDetails records the tied candidate columns per ambiguous
	// concept.
	AmbiguousDetails map[string][]string
	// Detected preserves the concepts in order of first mention.
	Detected []string
}

// NeedsClarification reports whether the query cannot proceed without the
// user picking a column.
func (r Result) NeedsClarification() bool {
	return len(r.Unresolved) > 0 || len(r.Ambiguous) > 0
}

// Resolver performs the three-stage term, concept, column resolution.
type Resolver struct {
	scorer        similarity.Scorer
	threshold     float64
	groupPatterns map[vocab.Concept][]*regexp.Regexp
	datePattern   *regexp.Regexp
}

// New builds a resolver around the given scorer with the default threshold.
func New(scorer similarity.Scorer) *Resolver {
	return NewWithThreshold(scorer, DefaultThreshold)
}

func NewWithThreshold(scorer similarity.Scorer, threshold float64) *Resolver {
	r := &Resolver{
		scorer:        scorer,
		threshold:     threshold,
		groupPatterns: make(map[vocab.Concept][]*regexp.Regexp, len(vocab.Groupable)),
		datePattern:   regexp.MustCompile(`\b(?:daily|day\s*wise|date\s*wise|per\s+day|by\s+date|by\s+day)\b`),
	}
	for _, c := range vocab.Groupable {
		for _, v := range vocab.Variants[c] {
			word := regexp.QuoteMeta(strings.ToLower(v))
			// "branch wise" and "branchwise" both have to match, so the
			// space inside a multi-word variant is optional.
			word = strings.ReplaceAll(word, ` `, `\s*`)
			r.groupPatterns[c] = append(r.groupPatterns[c],
				regexp.MustCompile(`\b(?:by|per|breakdown\s+by)\s+`+word+`\b`),
				regexp.MustCompile(`\b`+word+`\s*(?:wise|by)\b`),
			)
		}
	}
	return r
}

// Resolve runs the three stages against the live schema. An empty schema
// yields an empty result with nothing unresolved, signaling that there is no
// active dataset to run against.
func (r *Resolver) Resolve(query string, schema *model.SchemaSnapshot) Result {
	res := Result{
		Resolved:         map[string]string{},
		AmbiguousDetails: map[string][]string{},
	}
	if schema == nil || len(schema.ColumnNames) == 0 {
		return res
	}

	detected := r.detectConcepts(query)
	if len(detected) == 0 {
		return res
	}

	normCols := make([]string, len(schema.ColumnNames))
	for i, c := range schema.ColumnNames {
		normCols[i] = vocab.Normalize(c)
	}

	for _, concept := range detected {
		res.Detected = append(res.Detected, string(concept))
		r.bindColumn(concept, schema.ColumnNames, normCols, &res)
	}

	r.deriveGrouping(query, detected, &res)

	log.Debug().
		Str("query", query).
		Interface("resolved", res.Resolved).
		Strs("unresolved", res.Unresolved).
		Strs("ambiguous", res.Ambiguous).
		Strs("groupBy", res.GroupBy).
		Msg("column resolution complete")
	return res
}

// detectConcepts finds every concept whose variant occurs as a substring of
// the normalized query, ordered by earliest mention. Partial matches are
// intentional ("tax" fires inside "taxable").
func (r *Resolver) detectConcepts(query string) []vocab.Concept {
	norm := vocab.Normalize(query)
	type hit struct {
		concept vocab.Concept
		pos     int
		order   int
	}
	var hits []hit
	for i, concept := range vocab.All {
		best := -1
		for _, v := range vocab.Variants[concept] {
			nv := vocab.Normalize(v)
			if len([]rune(nv)) < 2 {
				continue
			}
			if pos := strings.Index(norm, nv); pos >= 0 && (best == -1 || pos < best) {
				best = pos
			}
		}
		if best >= 0 {
			hits = append(hits, hit{concept, best, i})
		}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].pos != hits[b].pos {
			return hits[a].pos < hits[b].pos
		}
		return hits[a].order < hits[b].order
	})
	out := make([]vocab.Concept, len(hits))
	for i, h := range hits {
		out[i] = h.concept
	}
	return out
}

// bindColumn scores every column against every variant of the concept. A
// single column at the top qualifying score resolves; a tie at the top is
// ambiguous; no qualifier is unresolved.
func (r *Resolver) bindColumn(concept vocab.Concept, cols, normCols []string, res *Result) {
	const eps = 1e-9
	best := 0.0
	var candidates []string
	for i, nc := range normCols {
		score := 0.0
		for _, v := range vocab.Variants[concept] {
			if s := r.scorer.Ratio(vocab.Normalize(v), nc); s > score {
				score = s
			}
		}
		if score < r.threshold {
			continue
		}
		switch {
		case score > best+eps:
			best = score
			candidates = []string{cols[i]}
		case score > best-eps:
			candidates = append(candidates, cols[i])
		}
	}
	name := string(concept)
	switch len(candidates) {
	case 0:
		res.Unresolved = append(res.Unresolved, name)
	case 1:
		res.Resolved[name] = candidates[0]
	default:
		res.Ambiguous = append(res.Ambiguous, name)
		res.AmbiguousDetails[name] = candidates
	}
}

// deriveGrouping scans the raw query for "by X", "per X", "X wise" phrasing
// around a resolved concept and appends that concept's column to GroupBy.
func (r *Resolver) deriveGrouping(query string, detected []vocab.Concept, res *Result) {
	lower := strings.ToLower(query)
	seen := map[string]bool{}
	for _, concept := range detected {
		col, ok := res.Resolved[string(concept)]
		if !ok || seen[col] {
			continue
		}
		matched := false
		for _, p := range r.groupPatterns[concept] {
			if p.MatchString(lower) {
				matched = true
				break
			}
		}
		if !matched && concept == vocab.Date && r.datePattern.MatchString(lower) {
			matched = true
		}
		if matched {
			res.GroupBy = append(res.GroupBy, col)
			seen[col] = true
		}
	}
}

// BuildClarification produces the user-facing question raised when the
// resolution has unresolved or ambiguous concepts. It always enumerates the
// live columns so the user can pick one.
func BuildClarification(res Result, schema *model.SchemaSnapshot) string {
	var b strings.Builder
	if len(res.Unresolved) > 0 {
		fmt.Fprintf(&b, "I could not find a matching column for: %s.",
			strings.Join(res.Unresolved, ", "))
	}
	for _, c := range res.Ambiguous {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "Several columns could mean %q: %s.",
			c, strings.Join(res.AmbiguousDetails[c], ", "))
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "The dataset has these columns: %s. Which one did you mean?",
		strings.Join(schema.ColumnNames, ", "))
	return b.String()
}

// AmountColumnForMetric picks the column to sum for the user's metric. An
// explicit metric hint wins; otherwise the first resolved amount concept in
// priority order. Empty when nothing resolved.
func AmountColumnForMetric(res Result, metricHint string) string {
	hint := vocab.Normalize(metricHint)
	pick := func(concepts ...vocab.Concept) string {
		for _, c := range concepts {
			if col, ok := res.Resolved[string(c)]; ok {
				return col
			}
		}
		return ""
	}
	if hint != "" {
		switch {
		case strings.Contains(hint, "gst") || strings.Contains(hint, "tax"):
			if col := pick(vocab.GSTAmount, vocab.CGSTAmount, vocab.SGSTAmount, vocab.IGSTAmount); col != "" {
				return col
			}
		case strings.Contains(hint, "discount"):
			if col := pick(vocab.Discount); col != "" {
				return col
			}
		case strings.Contains(hint, "net"):
			if col := pick(vocab.NetAmount); col != "" {
				return col
			}
		case strings.Contains(hint, "total") || strings.Contains(hint, "gross"):
			if col := pick(vocab.TotalAmount); col != "" {
				return col
			}
		}
	}
	return pick(vocab.AmountConcepts...)
}

// AmountColumnStrict returns the column bound to the hinted metric concept
// with no fallback to other amount columns. GST accepts its component
// columns since they are the same tax family.
func AmountColumnStrict(res Result, concept vocab.Concept) (string, bool) {
	family := []vocab.Concept{concept}
	if concept == vocab.GSTAmount {
		family = []vocab.Concept{vocab.GSTAmount, vocab.CGSTAmount, vocab.SGSTAmount, vocab.IGSTAmount}
	}
	for _, c := range family {
		if col, ok := res.Resolved[string(c)]; ok {
			return col, true
		}
	}
	return "", false
}

// MetricConcept maps a metric hint to the canonical amount concept it names,
// or empty when the hint is not metric-shaped. The orchestrator uses this
// for the metric-safety gate.
func MetricConcept(metricHint string) vocab.Concept {
	hint := vocab.Normalize(metricHint)
	switch {
	case hint == "":
		return ""
	case strings.Contains(hint, "cgst"):
		return vocab.CGSTAmount
	case strings.Contains(hint, "sgst"):
		return vocab.SGSTAmount
	case strings.Contains(hint, "igst"):
		return vocab.IGSTAmount
	case strings.Contains(hint, "gst") || strings.Contains(hint, "tax"):
		return vocab.GSTAmount
	case strings.Contains(hint, "discount"):
		return vocab.Discount
	case strings.Contains(hint, "net"):
		return vocab.NetAmount
	case strings.Contains(hint, "total") || strings.Contains(hint, "gross"):
		return vocab.TotalAmount
	default:
		return ""
	}
}

// BreakdownColumnForTerm binds a breakdown term coming from the intent
// extractor ("branch", "payment mode") to a resolved groupable column.
func BreakdownColumnForTerm(res Result, term string) string {
	nt := vocab.Normalize(term)
	if nt == "" {
		return ""
	}
	for _, c := range vocab.Groupable {
		for _, v := range vocab.Variants[c] {
			if vocab.Normalize(v) == nt {
				if col, ok := res.Resolved[string(c)]; ok {
					return col
				}
			}
		}
	}
	// The term may already be a raw column name echoed back.
	for _, col := range res.Resolved {
		if vocab.Normalize(col) == nt {
			return col
		}
	}
	return ""
}
