// Package aggcache holds precomputed aggregates keyed by filter tuple so the
// pipeline computes each unique filter combination exactly once. The cache
// is the only mutable state shared between queries; get and put are
// serialized and eviction is strict least-recently-used.
package aggcache

import (
	"container/list"
	"sort"
	"strings"
	"sync"

	"sheetchat-backend/internal/dto"
	"sheetchat-backend/internal/util"
)

// DefaultCapacity bounds the cache when no explicit capacity is injected.
const DefaultCapacity = 128

// Key is the filter tuple aggregates are cached under. A single-date filter
// collapses to From == To before the key is built, so cosmetic differences
// in how a date was phrased share one entry.
type Key struct {
	DateFrom       string
	DateTo         string
	EntityTag      string
	Metric         string
	DateFilterType string
}

// BuildKey derives the cache key deterministically from a filter spec.
func BuildKey(spec *dto.FilterSpec) Key {
	from, to := spec.DateFilter.Bounds()
	return Key{
		DateFrom:       from,
		DateTo:         to,
		EntityTag:      spec.EntityTag,
		Metric:         spec.Metric,
		DateFilterType: spec.DateFilterType,
	}
}

// Value is the precomputed aggregate set for one filter tuple.
type Value struct {
	Rows          []map[string]interface{}
	DailyTotals   map[string]float64
	MonthlyTotals map[string]float64
}

type entry struct {
	key   Key
	value Value
}

// Cache is a capacity-bounded LRU map of filter tuples to aggregates.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[Key]*list.Element
	order    *list.List // front = most recently used
}

// New builds a cache with the given capacity; non-positive values fall back
// to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[Key]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the cached value and promotes the entry to most recently used.
func (c *Cache) Get(key Key) (Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return Value{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// Put stores the value, evicting the least-recently-used entry when full and
// the key is not already present.
func (c *Cache) Put(key Key, value Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = value
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
		}
	}
	c.items[key] = c.order.PushFront(&entry{key: key, value: value})
}

// Len reports the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// ComputeTotals builds the eager daily and monthly totals for a row set.
// Sums are decimal-accurate and rounded half-up to 2 places; rows with no
// usable date bucket under "Unknown".
func ComputeTotals(rows []map[string]interface{}, amountKey string) (daily, monthly map[string]float64) {
	dailySums := map[string]*util.DecimalSum{}
	monthlySums := map[string]*util.DecimalSum{}
	key := amountKey
	if key == "" {
		key = FindAmountKey(rows)
	}
	for _, row := range rows {
		v, ok := row[key]
		if !ok {
			continue
		}
		day := dateBucket(row)
		month := "Unknown"
		if day != "Unknown" && len(day) >= 7 {
			month = day[:7]
		}
		if dailySums[day] == nil {
			dailySums[day] = util.NewDecimalSum()
		}
		if monthlySums[month] == nil {
			monthlySums[month] = util.NewDecimalSum()
		}
		dailySums[day].Add(v)
		monthlySums[month].Add(v)
	}
	daily = make(map[string]float64, len(dailySums))
	for k, s := range dailySums {
		daily[k] = s.Round2()
	}
	monthly = make(map[string]float64, len(monthlySums))
	for k, s := range monthlySums {
		monthly[k] = s.Round2()
	}
	return daily, monthly
}

// FindAmountKey scans the rows for the first column whose name looks like an
// amount, falling back to the first numerically coercible field.
func FindAmountKey(rows []map[string]interface{}) string {
	amountWords := []string{"amount", "gst", "total", "value", "sum", "balance", "tax"}
	for _, row := range rows {
		keys := sortedKeys(row)
		for _, k := range keys {
			lk := strings.ToLower(k)
			for _, w := range amountWords {
				if strings.Contains(lk, w) {
					if _, ok := util.ParseNumeric(row[k]); ok {
						return k
					}
				}
			}
		}
		for _, k := range keys {
			if isDateKey(k) {
				continue
			}
			if _, ok := util.ParseNumeric(row[k]); ok {
				return k
			}
		}
		break
	}
	return ""
}

// FindDateKey returns the first date-like field name in the rows.
func FindDateKey(rows []map[string]interface{}) string {
	for _, row := range rows {
		for _, k := range sortedKeys(row) {
			if isDateKey(k) {
				return k
			}
		}
		break
	}
	return ""
}

func dateBucket(row map[string]interface{}) string {
	for _, k := range sortedKeys(row) {
		if !isDateKey(k) {
			continue
		}
		if s, ok := row[k].(string); ok && len(s) >= 10 {
			return s[:10]
		}
	}
	return "Unknown"
}

func isDateKey(k string) bool {
	lk := strings.ToLower(k)
	return strings.Contains(lk, "date") || lk == "day" || lk == "dt"
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	// rowDate first so the normalized date wins over raw date columns.
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i] == "rowDate" && keys[j] != "rowDate"
	})
	return keys
}

