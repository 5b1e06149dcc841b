// Package chart gates whether an aggregate result is worth rendering as a
// chart. Any rule failure routes the caller to a table fallback; a partial
// or garbled chart is never emitted.
package chart

import (
	"time"

	"sheetchat-backend/internal/dto"
	"sheetchat-backend/internal/router"
	"sheetchat-backend/internal/util"
)

// Reasons surfaced to the caller when validation fails.
const (
	ReasonTooFewPoints  = "not enough data points to chart"
	ReasonBadXAxis      = "no usable x-axis column"
	ReasonBadYAxis      = "no numeric y-axis column"
	ReasonSingleDaySpan = "trend needs dates spanning more than one day"
)

// Validate checks a candidate chart series against the rules. The x slice
// holds labels (dates or categories), y the values; queryType tightens the
// rules for trend charts.
func Validate(x []string, y []float64, spec *dto.FilterSpec, queryType string) (bool, string) {
	if len(x) < 2 || len(y) < 2 {
		return false, ReasonTooFewPoints
	}
	nonMissingX := 0
	for _, v := range x {
		if v != "" && v != "Unknown" {
			nonMissingX++
		}
	}
	if nonMissingX < 2 {
		return false, ReasonBadXAxis
	}
	nonMissingY := 0
	for _, v := range y {
		if _, ok := util.ParseNumeric(v); ok {
			nonMissingY++
		}
	}
	if nonMissingY < 2 {
		return false, ReasonBadYAxis
	}
	if queryType == router.TypeTrend || (spec != nil && spec.ChartType == "line") {
		if !spansMultipleDays(x) {
			return false, ReasonSingleDaySpan
		}
	}
	return true, ""
}

// spansMultipleDays requires a date-like x axis covering more than one
// calendar day. Unparseable labels do not count toward the span.
func spansMultipleDays(x []string) bool {
	var first, last time.Time
	seen := 0
	for _, v := range x {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			continue
		}
		if seen == 0 {
			first, last = t, t
		} else {
			if t.Before(first) {
				first = t
			}
			if t.After(last) {
				last = t
			}
		}
		seen++
	}
	if seen < 2 {
		return false
	}
	return !first.Truncate(24 * time.Hour).Equal(last.Truncate(24 * time.Hour))
}
