// Package analyst is the compute engine: exact totals, breakdowns, time
// series and comparisons over the rows handed to it. It performs nothing but
// arithmetic over its inputs; zero rows yields an explicit no-data result,
// never an estimate.
package analyst

import (
	"fmt"
	"sort"
	"strings"

	"sheetchat-backend/internal/aggcache"
	"sheetchat-backend/internal/util"
)

// UnknownBucket labels rows whose grouping value is blank or missing in a
// series; OtherBucket does the same for breakdowns.
const (
	UnknownBucket = "Unknown"
	OtherBucket   = "Other"
)

// SeriesPoint is one date bucket of a trend or comparison.
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// BreakdownItem is one category bucket of a grouped aggregate.
type BreakdownItem struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Count    int     `json:"count"`
}

// Data is everything the analyst may consume: the raw rows plus the totals
// precomputed by the cache layer.
type Data struct {
	Rows          []map[string]interface{}
	DailyTotals   map[string]float64
	MonthlyTotals map[string]float64
}

// Result carries every aggregate shape any intent can produce. Total is
// decimal-accurate, rounded half-up to 2 places.
type Result struct {
	Total       float64         `json:"total"`
	Count       int             `json:"count"`
	AmountKey   string          `json:"amountKey,omitempty"`
	Breakdown   []BreakdownItem `json:"breakdown,omitempty"`
	Series      []SeriesPoint   `json:"series,omitempty"`
	Compare     []SeriesPoint   `json:"compare,omitempty"`
	ColumnNames []string        `json:"columnNames,omitempty"`
	DateRange   [2]string       `json:"dateRange,omitempty"`
	Message     string          `json:"message,omitempty"`
	NoData      bool            `json:"noData,omitempty"`
}

// Analyze computes the aggregate the intent asks for. breakdownCol and
// amountCol may be empty; detection then falls back to the rows themselves.
func Analyze(intent string, data Data, breakdownCol, amountCol string) Result {
	if len(data.Rows) == 0 && len(data.DailyTotals) == 0 {
		return Result{NoData: true, Message: "No records found for the requested filters."}
	}

	amountKey := amountCol
	if amountKey == "" {
		amountKey = aggcache.FindAmountKey(data.Rows)
	}

	res := Result{AmountKey: amountKey, Count: len(data.Rows)}
	res.Total = sumColumn(data.Rows, amountKey)

	switch intent {
	case "breakdown", "group", "compare":
		res.Breakdown = breakdown(data.Rows, breakdownCol, amountKey)
		if intent == "compare" {
			res.Compare = series(data.Rows, data.DailyTotals, amountKey)
		}
	case "trend":
		res.Series = series(data.Rows, data.DailyTotals, amountKey)
	case "summarize", "explain", "insights":
		res.ColumnNames = columnNames(data.Rows)
		res.DateRange = dateSpan(data.Rows)
		res.Series = series(data.Rows, data.DailyTotals, amountKey)
		res.Message = summaryMessage(res)
	}
	return res
}

func sumColumn(rows []map[string]interface{}, amountKey string) float64 {
	if amountKey == "" {
		return 0
	}
	sum := util.NewDecimalSum()
	for _, row := range rows {
		if v, ok := row[amountKey]; ok {
			sum.Add(v)
		}
	}
	return sum.Round2()
}

// breakdown groups rows by the category column, blank values under "Other",
// sorted by category name ascending.
func breakdown(rows []map[string]interface{}, categoryCol, amountKey string) []BreakdownItem {
	if categoryCol == "" {
		categoryCol = findCategoryKey(rows)
	}
	if categoryCol == "" || amountKey == "" {
		return nil
	}
	sums := map[string]*util.DecimalSum{}
	counts := map[string]int{}
	for _, row := range rows {
		cat := OtherBucket
		if v, ok := row[categoryCol]; ok {
			if s := strings.TrimSpace(fmt.Sprintf("%v", v)); s != "" && s != "<nil>" {
				cat = s
			}
		}
		if sums[cat] == nil {
			sums[cat] = util.NewDecimalSum()
		}
		sums[cat].Add(row[amountKey])
		counts[cat]++
	}
	items := make([]BreakdownItem, 0, len(sums))
	for cat, s := range sums {
		items = append(items, BreakdownItem{Category: cat, Amount: s.Round2(), Count: counts[cat]})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Category < items[j].Category })
	return items
}

// series orders the precomputed daily totals ascending by date, with the
// Unknown bucket placed last. When no precomputed totals exist it builds
// them from the rows.
func series(rows []map[string]interface{}, daily map[string]float64, amountKey string) []SeriesPoint {
	if len(daily) == 0 {
		daily, _ = aggcache.ComputeTotals(rows, amountKey)
	}
	points := make([]SeriesPoint, 0, len(daily))
	for d, v := range daily {
		points = append(points, SeriesPoint{Date: d, Value: v})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Date == UnknownBucket {
			return false
		}
		if points[j].Date == UnknownBucket {
			return true
		}
		return points[i].Date < points[j].Date
	})
	return points
}

func findCategoryKey(rows []map[string]interface{}) string {
	categoryWords := []string{"category", "type", "branch", "region", "payment", "customer", "client", "state"}
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, w := range categoryWords {
			for _, k := range keys {
				if strings.Contains(strings.ToLower(k), w) {
					return k
				}
			}
		}
		break
	}
	return ""
}

func columnNames(rows []map[string]interface{}) []string {
	for _, row := range rows {
		names := make([]string, 0, len(row))
		for k := range row {
			names = append(names, k)
		}
		sort.Strings(names)
		return names
	}
	return nil
}

func dateSpan(rows []map[string]interface{}) [2]string {
	var span [2]string
	key := aggcache.FindDateKey(rows)
	if key == "" {
		return span
	}
	for _, row := range rows {
		s, ok := row[key].(string)
		if !ok || len(s) < 10 {
			continue
		}
		d := s[:10]
		if span[0] == "" || d < span[0] {
			span[0] = d
		}
		if span[1] == "" || d > span[1] {
			span[1] = d
		}
	}
	return span
}

func summaryMessage(res Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows", res.Count)
	if len(res.ColumnNames) > 0 {
		fmt.Fprintf(&b, " across columns: %s", strings.Join(res.ColumnNames, ", "))
	}
	if res.DateRange[0] != "" {
		fmt.Fprintf(&b, "; dates from %s to %s", res.DateRange[0], res.DateRange[1])
	}
	if res.AmountKey != "" {
		fmt.Fprintf(&b, "; total %s = %.2f", res.AmountKey, res.Total)
	}
	b.WriteByte('.')
	return b.String()
}
