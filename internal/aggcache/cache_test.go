package aggcache_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetchat-backend/internal/aggcache"
	"sheetchat-backend/internal/dto"
)

func keyFor(i int) aggcache.Key {
	return aggcache.Key{DateFrom: fmt.Sprintf("2026-02-%02d", i), Metric: "gst"}
}

func TestCache_GetAfterPut(t *testing.T) {
	c := aggcache.New(4)
	val := aggcache.Value{DailyTotals: map[string]float64{"2026-02-01": 10}}

	c.Put(keyFor(1), val)

	got, ok := c.Get(keyFor(1))
	require.True(t, ok)
	assert.Equal(t, val.DailyTotals, got.DailyTotals)

	_, ok = c.Get(keyFor(2))
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := aggcache.New(2)

	c.Put(keyFor(1), aggcache.Value{})
	c.Put(keyFor(2), aggcache.Value{})

	// Touch 1 so 2 becomes the eviction target.
	_, ok := c.Get(keyFor(1))
	require.True(t, ok)

	c.Put(keyFor(3), aggcache.Value{})

	_, ok = c.Get(keyFor(2))
	assert.False(t, ok)
	_, ok = c.Get(keyFor(1))
	assert.True(t, ok)
	_, ok = c.Get(keyFor(3))
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_CapacityNeverExceeded(t *testing.T) {
	c := aggcache.New(3)
	for i := 1; i <= 10; i++ {
		c.Put(keyFor(i), aggcache.Value{})
		assert.LessOrEqual(t, c.Len(), 3)
	}
	assert.Equal(t, 3, c.Len())
}

func TestCache_PutExistingUpdatesInPlace(t *testing.T) {
	c := aggcache.New(2)

	c.Put(keyFor(1), aggcache.Value{DailyTotals: map[string]float64{"a": 1}})
	c.Put(keyFor(1), aggcache.Value{DailyTotals: map[string]float64{"a": 2}})

	assert.Equal(t, 1, c.Len())
	got, ok := c.Get(keyFor(1))
	require.True(t, ok)
	assert.Equal(t, 2.0, got.DailyTotals["a"])
}

func TestBuildKey_SingleDateCollapses(t *testing.T) {
	single := &dto.FilterSpec{
		Metric:         "gst",
		DateFilter:     dto.DateFilter{Single: "2026-02-10"},
		DateFilterType: dto.DateFilterRowDate,
	}
	ranged := &dto.FilterSpec{
		Metric:         "gst",
		DateFilter:     dto.DateFilter{From: "2026-02-10", To: "2026-02-10"},
		DateFilterType: dto.DateFilterRowDate,
	}

	assert.Equal(t, aggcache.BuildKey(ranged), aggcache.BuildKey(single))
}

func TestBuildKey_DistinguishesFilterType(t *testing.T) {
	row := &dto.FilterSpec{Metric: "gst", DateFilterType: dto.DateFilterRowDate}
	upload := &dto.FilterSpec{Metric: "gst", DateFilterType: dto.DateFilterUploadDate}

	assert.NotEqual(t, aggcache.BuildKey(row), aggcache.BuildKey(upload))
}

func TestComputeTotals(t *testing.T) {
	rows := []map[string]interface{}{
		{"rowDate": "2026-02-01", "gst_amount": "1,234.55"},
		{"rowDate": "2026-02-01", "gst_amount": 10.449},
		{"rowDate": "2026-03-02", "gst_amount": 5.0},
		{"gst_amount": 7.0}, // no date
	}

	daily, monthly := aggcache.ComputeTotals(rows, "gst_amount")

	assert.Equal(t, 1245.00, daily["2026-02-01"])
	assert.Equal(t, 5.00, daily["2026-03-02"])
	assert.Equal(t, 7.00, daily["Unknown"])
	assert.Equal(t, 1245.00, monthly["2026-02"])
	assert.Equal(t, 5.00, monthly["2026-03"])
	assert.Equal(t, 7.00, monthly["Unknown"])
}

func TestFindAmountKey(t *testing.T) {
	rows := []map[string]interface{}{
		{"rowDate": "2026-02-01", "branch": "pune", "gst_amount": "12.5", "qty": 3.0},
	}
	assert.Equal(t, "gst_amount", aggcache.FindAmountKey(rows))

	// No amount-named column: first numeric non-date field wins.
	rows = []map[string]interface{}{
		{"rowDate": "2026-02-01", "branch": "pune", "qty": 3.0},
	}
	assert.Equal(t, "qty", aggcache.FindAmountKey(rows))

	assert.Equal(t, "", aggcache.FindAmountKey(nil))
}

func TestFindDateKey(t *testing.T) {
	rows := []map[string]interface{}{
		{"invoice_date": "2026-02-01", "rowDate": "2026-02-01", "gst": 1.0},
	}
	// Normalized date column wins over the raw one.
	assert.Equal(t, "rowDate", aggcache.FindDateKey(rows))
}
