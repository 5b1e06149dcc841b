package chart_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sheetchat-backend/internal/chart"
	"sheetchat-backend/internal/dto"
	"sheetchat-backend/internal/router"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		x         []string
		y         []float64
		spec      *dto.FilterSpec
		queryType string
		ok        bool
		reason    string
	}{
		{
			name:      "valid multi-day trend",
			x:         []string{"2026-02-01", "2026-02-02", "2026-02-03"},
			y:         []float64{1, 2, 3},
			queryType: router.TypeTrend,
			ok:        true,
		},
		{
			name:      "single point",
			x:         []string{"2026-02-01"},
			y:         []float64{1},
			queryType: router.TypeTrend,
			ok:        false,
			reason:    chart.ReasonTooFewPoints,
		},
		{
			name:      "all labels missing",
			x:         []string{"Unknown", ""},
			y:         []float64{1, 2},
			queryType: router.TypeData,
			ok:        false,
			reason:    chart.ReasonBadXAxis,
		},
		{
			name:      "trend within a single day",
			x:         []string{"2026-02-01", "2026-02-01"},
			y:         []float64{1, 2},
			queryType: router.TypeTrend,
			ok:        false,
			reason:    chart.ReasonSingleDaySpan,
		},
		{
			name:      "line chart spec enforces day span",
			x:         []string{"2026-02-01", "2026-02-01"},
			y:         []float64{1, 2},
			spec:      &dto.FilterSpec{ChartType: "line"},
			queryType: router.TypeVague,
			ok:        false,
			reason:    chart.ReasonSingleDaySpan,
		},
		{
			name:      "category bar chart needs no day span",
			x:         []string{"pune", "delhi"},
			y:         []float64{10, 5},
			spec:      &dto.FilterSpec{ChartType: "bar"},
			queryType: router.TypeBreakdown,
			ok:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := chart.Validate(tt.x, tt.y, tt.spec, tt.queryType)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}
