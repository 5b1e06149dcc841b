package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sheetchat-backend/internal/dto"
	"sheetchat-backend/internal/router"
)

func TestClassifyType(t *testing.T) {
	febRange := dto.DateFilter{From: "2026-02-01", To: "2026-02-28"}

	tests := []struct {
		name     string
		text     string
		spec     *dto.FilterSpec
		expected string
	}{
		{
			name:     "schema count phrasing",
			text:     "how many rows are there",
			spec:     &dto.FilterSpec{Intent: "other"},
			expected: router.TypeSchema,
		},
		{
			name:     "schema beats explanation intent",
			text:     "what columns does it have",
			spec:     &dto.FilterSpec{Intent: "explain"},
			expected: router.TypeSchema,
		},
		{
			name:     "explanation intent",
			text:     "summarize february for me",
			spec:     &dto.FilterSpec{Intent: "summarize", DateFilter: febRange},
			expected: router.TypeExplanation,
		},
		{
			name:     "why word without intent",
			text:     "why is gst so high this month",
			spec:     &dto.FilterSpec{Intent: "other"},
			expected: router.TypeExplanation,
		},
		{
			name:     "breakdown column set",
			text:     "gst split across offices",
			spec:     &dto.FilterSpec{Intent: "breakdown", BreakdownBy: "branch"},
			expected: router.TypeBreakdown,
		},
		{
			name:     "breakdown intent with by phrase",
			text:     "gst by branch for february",
			spec:     &dto.FilterSpec{Intent: "breakdown", DateFilter: febRange},
			expected: router.TypeBreakdown,
		},
		{
			name:     "trend needs a date filter",
			text:     "gst trend",
			spec:     &dto.FilterSpec{Intent: "trend"},
			expected: router.TypeData,
		},
		{
			name:     "trend with date filter",
			text:     "gst trend in february",
			spec:     &dto.FilterSpec{Intent: "trend", DateFilter: febRange},
			expected: router.TypeTrend,
		},
		{
			name:     "over time phrasing counts as trend",
			text:     "gst over time in february",
			spec:     &dto.FilterSpec{Intent: "single_value", DateFilter: febRange},
			expected: router.TypeTrend,
		},
		{
			name:     "vague show the data",
			text:     "show me the data",
			spec:     &dto.FilterSpec{Intent: "other"},
			expected: router.TypeVague,
		},
		{
			name:     "display word with date filter is not vague",
			text:     "show gst for february",
			spec:     &dto.FilterSpec{Intent: "single_value", DateFilter: febRange},
			expected: router.TypeData,
		},
		{
			name:     "plain aggregate defaults to data",
			text:     "total gst for february 2026",
			spec:     &dto.FilterSpec{Intent: "single_value", Metric: "gst", DateFilter: febRange},
			expected: router.TypeData,
		},
		{
			name:     "nil spec still routes on text",
			text:     "why did this happen",
			spec:     nil,
			expected: router.TypeExplanation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, router.ClassifyType(tt.spec, tt.text))
		})
	}
}

// Cosmetic rewording with the same extracted spec must land on the same type.
func TestClassifyType_Deterministic(t *testing.T) {
	spec := &dto.FilterSpec{
		Intent:     "breakdown",
		Metric:     "gst",
		DateFilter: dto.DateFilter{From: "2026-02-01", To: "2026-02-28"},
	}

	variants := []string{
		"gst by branch in february",
		"february gst per branch",
		"branch wise gst for february",
	}
	for _, text := range variants {
		assert.Equal(t, router.TypeBreakdown, router.ClassifyType(spec, text), text)
	}
}

func TestClassifyChannel(t *testing.T) {
	assert.Equal(t, router.ChannelSemanticSearch, router.ClassifyChannel(router.TypeExplanation))

	for _, qt := range []string{
		router.TypeSchema, router.TypeBreakdown, router.TypeTrend,
		router.TypeVague, router.TypeData,
	} {
		assert.Equal(t, router.ChannelDirect, router.ClassifyChannel(qt), qt)
	}
}

func TestMatchesSchema(t *testing.T) {
	assert.True(t, router.MatchesSchema("How many rows are there?"))
	assert.True(t, router.MatchesSchema("list the columns"))
	assert.False(t, router.MatchesSchema("total gst for february"))
}
