package util

import (
	"math/big"
	"strconv"
	"strings"
)

// ParseNumeric coerces a row value to float64. Strings may carry thousands
// separators ("1,234.55"). Returns false when the value is not numeric.
func ParseNumeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// DecimalSum accumulates money values exactly. Inputs are converted via
// their decimal string form, so 10.449 contributes exactly 10.449 rather
// than its binary-float neighbor; the final rounding is half-up to 2 places.
type DecimalSum struct {
	sum *big.Rat
	n   int
}

func NewDecimalSum() *DecimalSum {
	return &DecimalSum{sum: new(big.Rat)}
}

// Add folds a row value into the sum. Returns false (and leaves the sum
// untouched) when the value is not numeric.
func (s *DecimalSum) Add(v interface{}) bool {
	r, ok := toRat(v)
	if !ok {
		return false
	}
	s.sum.Add(s.sum, r)
	s.n++
	return true
}

// Count reports how many numeric values were folded in.
func (s *DecimalSum) Count() int { return s.n }

// Round2 returns the accumulated total rounded half-up (away from zero) to
// 2 decimal places.
func (s *DecimalSum) Round2() float64 {
	return ratRound2(s.sum)
}

// Round2 rounds a single float half-up to 2 decimal places without binary
// drift.
func Round2(f float64) float64 {
	r, ok := toRat(f)
	if !ok {
		return 0
	}
	return ratRound2(r)
}

func toRat(v interface{}) (*big.Rat, bool) {
	var s string
	switch n := v.(type) {
	case nil:
		return nil, false
	case float64:
		s = strconv.FormatFloat(n, 'g', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(n), 'g', -1, 32)
	case int:
		return new(big.Rat).SetInt64(int64(n)), true
	case int64:
		return new(big.Rat).SetInt64(n), true
	case string:
		s = strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
	default:
		return nil, false
	}
	if s == "" {
		return nil, false
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, false
	}
	return r, true
}

func ratRound2(r *big.Rat) float64 {
	neg := r.Sign() < 0
	abs := new(big.Rat).Abs(r)

	// k = floor((2*num*100 + den) / (2*den)) gives half-up rounding of
	// abs*100 to the nearest integer.
	num := new(big.Int).Mul(abs.Num(), big.NewInt(200))
	num.Add(num, abs.Denom())
	den := new(big.Int).Mul(abs.Denom(), big.NewInt(2))
	k := new(big.Int).Quo(num, den)

	cents, _ := new(big.Rat).SetFrac(k, big.NewInt(100)).Float64()
	if neg {
		return -cents
	}
	return cents
}
