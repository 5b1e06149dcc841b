// Package router classifies a query into one handling mode and one
// retrieval channel. The rule list is ordered data so routing stays
// deterministic and testable in isolation from the orchestrator.
package router

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"sheetchat-backend/internal/dto"
)

// Query types, in routing priority order.
const (
	TypeSchema      = "schema_query"
	TypeExplanation = "explanation_query"
	TypeBreakdown   = "breakdown_query"
	TypeTrend       = "trend_query"
	TypeVague       = "vague_query"
	TypeData        = "data_query"
)

// Retrieval channels. Only explanation queries may use semantic search;
// every exact-aggregate path stays direct.
const (
	ChannelDirect         = "direct"
	ChannelSemanticSearch = "semantic_search"
)

var schemaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bhow\s+many\s+(?:rows|records|columns|fields|entries)\b`),
	regexp.MustCompile(`\b(?:rows|records|columns|fields)\s+(?:count|in|are\s+there)\b`),
	regexp.MustCompile(`\b(?:number|count)\s+of\s+(?:rows|records|columns|fields|entries)\b`),
	regexp.MustCompile(`\bwhat\s+(?:columns|fields|attributes)\b`),
	regexp.MustCompile(`\b(?:list|show)\s+(?:the\s+)?(?:columns|fields|attributes)\b`),
	regexp.MustCompile(`\bcolumn\s+names\b`),
	regexp.MustCompile(`\bschema\b`),
}

var vaguePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bshow\s+(?:me\s+)?(?:the\s+)?(?:data|everything|chart|graph)\b`),
	regexp.MustCompile(`\bwhat(?:'s|\s+is)\s+(?:in\s+)?(?:the\s+|this\s+)?(?:data|file|sheet)\b`),
	regexp.MustCompile(`\bgive\s+me\s+(?:a\s+)?(?:summary|overview|chart|graph)\b`),
	regexp.MustCompile(`\b(?:plot|draw|display)\s+(?:it|this|something|a\s+chart|a\s+graph)\b`),
	regexp.MustCompile(`\bany\s+insights?\b`),
}

var explanationIntents = map[string]bool{
	"explain":   true,
	"summarize": true,
	"insights":  true,
	"why":       true,
}

var (
	breakdownPhrase = regexp.MustCompile(`\b(?:by|per)\s+\w+|\bbreakdown\b|\bwise\b`)
	trendPhrase     = regexp.MustCompile(`\btrend\b|\bover\s+time\b`)
	whyWord         = regexp.MustCompile(`\bwhy\b`)
	displayWord     = regexp.MustCompile(`\b(?:show|display|see|view)\b`)
)

// Rule is one named predicate in the routing cascade.
type Rule struct {
	Name  string
	Type  string
	Match func(spec *dto.FilterSpec, text string) bool
}

// Rules is the ordered cascade, first match wins.
var Rules = []Rule{
	{
		Name: "schema phrasing",
		Type: TypeSchema,
		Match: func(_ *dto.FilterSpec, text string) bool {
			return MatchesSchema(text)
		},
	},
	{
		Name: "explanation intent",
		Type: TypeExplanation,
		Match: func(spec *dto.FilterSpec, text string) bool {
			if spec != nil && explanationIntents[spec.Intent] {
				return true
			}
			return whyWord.MatchString(text)
		},
	},
	{
		Name: "breakdown target",
		Type: TypeBreakdown,
		Match: func(spec *dto.FilterSpec, text string) bool {
			if spec != nil && spec.BreakdownBy != "" {
				return true
			}
			intent := ""
			if spec != nil {
				intent = spec.Intent
			}
			breakdownIntent := intent == "breakdown" || intent == "group" || intent == "compare"
			return breakdownIntent && breakdownPhrase.MatchString(text)
		},
	},
	{
		Name: "trend with date filter",
		Type: TypeTrend,
		Match: func(spec *dto.FilterSpec, text string) bool {
			if spec == nil || spec.DateFilter.IsZero() {
				return false
			}
			return spec.Intent == "trend" || trendPhrase.MatchString(text)
		},
	},
	{
		Name: "vague display phrasing",
		Type: TypeVague,
		Match: func(spec *dto.FilterSpec, text string) bool {
			for _, p := range vaguePatterns {
				if p.MatchString(text) {
					return true
				}
			}
			if spec == nil || !spec.DateFilter.IsZero() {
				return false
			}
			generic := spec.Intent == "" || spec.Intent == "other" || spec.Intent == "single_value"
			return generic && displayWord.MatchString(text)
		},
	},
}

// MatchesSchema reports whether the text alone is schema-shaped. The
// orchestrator uses this for its early short-circuit before resolution runs.
func MatchesSchema(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range schemaPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// ClassifyType walks the rule cascade and returns the first matching type,
// defaulting to a plain data query. The decision is logged with the rule
// that fired.
func ClassifyType(spec *dto.FilterSpec, text string) string {
	lower := strings.ToLower(text)
	for _, rule := range Rules {
		if rule.Match(spec, lower) {
			log.Debug().Str("rule", rule.Name).Str("type", rule.Type).Str("query", text).
				Msg("query classified")
			return rule.Type
		}
	}
	log.Debug().Str("rule", "default").Str("type", TypeData).Str("query", text).
		Msg("query classified")
	return TypeData
}

// ClassifyChannel returns semantic_search for explanation queries and
// direct for everything else.
func ClassifyChannel(queryType string) string {
	if queryType == TypeExplanation {
		return ChannelSemanticSearch
	}
	return ChannelDirect
}
