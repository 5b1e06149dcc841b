package similarity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sheetchat-backend/internal/similarity"
)

func TestLevenshteinRatio(t *testing.T) {
	s := similarity.NewLevenshteinScorer()

	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"identical", "gstamount", "gstamount", 100},
		{"empty left", "", "gst", 0},
		{"empty right", "gst", "", 0},
		{"one edit of eight", "february", "februry", 87.5},
		{"disjoint", "abc", "xyz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, s.Ratio(tt.a, tt.b), 0.01)
		})
	}
}

func TestLevenshteinRatio_Symmetric(t *testing.T) {
	s := similarity.NewLevenshteinScorer()
	assert.Equal(t, s.Ratio("branch", "branch1"), s.Ratio("branch1", "branch"))
}
