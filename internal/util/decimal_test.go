package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetchat-backend/internal/util"
)

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected float64
		ok       bool
	}{
		{"float", 10.449, 10.449, true},
		{"int", 7, 7, true},
		{"plain string", "12.5", 12.5, true},
		{"thousands separators", "1,234.55", 1234.55, true},
		{"whitespace", "  42 ", 42, true},
		{"negative string", "-3.5", -3.5, true},
		{"text", "pune", 0, false},
		{"empty string", "", 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := util.ParseNumeric(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRound2_HalfUp(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"exact two places", 10.44, 10.44},
		{"half rounds up", 10.445, 10.45},
		{"just below half", 10.4449, 10.44},
		{"half rounds away from zero", -10.445, -10.45},
		{"integer untouched", 5, 5},
		{"binary float neighbor", 2.675, 2.68},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, util.Round2(tt.input))
		})
	}
}

func TestDecimalSum_ExactAccumulation(t *testing.T) {
	s := util.NewDecimalSum()

	require.True(t, s.Add("1,234.55"))
	require.True(t, s.Add(10.449))
	assert.False(t, s.Add("pune"))
	assert.False(t, s.Add(nil))

	assert.Equal(t, 2, s.Count())
	assert.Equal(t, 1245.00, s.Round2())
}

func TestDecimalSum_FloatRepeatsStayExact(t *testing.T) {
	s := util.NewDecimalSum()
	for i := 0; i < 10; i++ {
		require.True(t, s.Add(0.1))
	}
	assert.Equal(t, 1.00, s.Round2())
}
