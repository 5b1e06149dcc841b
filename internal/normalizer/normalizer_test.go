package normalizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sheetchat-backend/internal/normalizer"
	"sheetchat-backend/internal/similarity"
)

func newNormalizer(tags ...string) *normalizer.Normalizer {
	provider := func() []string { return tags }
	return normalizer.New(similarity.NewLevenshteinScorer(), provider)
}

func TestNormalize_CorrectsTypos(t *testing.T) {
	n := newNormalizer()

	out, corrections := n.Normalize("total discont for februry")

	assert.Equal(t, "total discount for february", out)
	assert.Equal(t, map[string]string{
		"discont": "discount",
		"februry": "february",
	}, corrections)
}

func TestNormalize_FixedSpellings(t *testing.T) {
	n := newNormalizer()

	tests := []struct {
		input    string
		expected string
	}{
		{"gst amt for feb", "gst amount for february"},
		{"gsts in mar", "gst in march"},
		{"taxes for sept", "tax for september"},
	}
	for _, tt := range tests {
		out, _ := n.Normalize(tt.input)
		assert.Equal(t, tt.expected, out)
	}
}

func TestNormalize_LeavesCleanTextAlone(t *testing.T) {
	n := newNormalizer()

	out, corrections := n.Normalize("total gst by branch")

	assert.Equal(t, "total gst by branch", out)
	assert.Empty(t, corrections)
}

func TestNormalize_TokensWithDigitsUntouched(t *testing.T) {
	n := newNormalizer()

	out, corrections := n.Normalize("gst on 2026-02-10")

	assert.Equal(t, "gst on 2026-02-10", out)
	assert.Empty(t, corrections)
}

func TestNormalize_MergesEntityPhrase(t *testing.T) {
	n := newNormalizer("acme retail")

	out, corrections := n.Normalize("gst for acme retaill in february")

	assert.Equal(t, "gst for acme retail in february", out)
	assert.Equal(t, map[string]string{"acme retaill": "acme retail"}, corrections)
}

func TestNormalize_ExactEntityPhraseNoCorrection(t *testing.T) {
	n := newNormalizer("acme retail")

	out, corrections := n.Normalize("gst for acme retail")

	assert.Equal(t, "gst for acme retail", out)
	assert.Empty(t, corrections)
}

func TestNormalize_NilTagProvider(t *testing.T) {
	n := normalizer.New(similarity.NewLevenshteinScorer(), nil)

	out, corrections := n.Normalize("total gst")

	assert.Equal(t, "total gst", out)
	assert.Empty(t, corrections)
}
