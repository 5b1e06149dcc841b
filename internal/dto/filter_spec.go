package dto

// Date-filter semantics: whether the date filter applies to the in-row date
// column or to the upload date of the file.
const (
	DateFilterRowDate    = "row_date"
	DateFilterUploadDate = "upload_date"
)

// DateFilter is a single date, an inclusive range, or empty.
type DateFilter struct {
	Single string `json:"single,omitempty"` // YYYY-MM-DD
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

func (f DateFilter) IsZero() bool {
	return f.Single == "" && f.From == "" && f.To == ""
}

// Bounds collapses the filter to an inclusive [from, to] pair. A single date
// yields from == to; an empty filter yields empty strings.
func (f DateFilter) Bounds() (string, string) {
	if f.Single != "" {
		return f.Single, f.Single
	}
	return f.From, f.To
}

// FilterSpec is the normalized intent of one query. It is built fresh per
// query by the intent extractor, then mutated in place by the deterministic
// correction passes before routing.
type FilterSpec struct {
	Intent         string     `json:"intent"`
	Metric         string     `json:"metric,omitempty"`
	DateFilter     DateFilter `json:"dateFilter"`
	DateFilterType string     `json:"dateFilterType"` // row_date | upload_date
	EntityTag      string     `json:"entityTag,omitempty"`
	DatasetID      string     `json:"datasetId,omitempty"`
	BreakdownBy    string     `json:"breakdownBy,omitempty"` // resolved breakdown column
	NeedsChart     bool       `json:"needsChart"`
	ChartType      string     `json:"chartType,omitempty"` // line | bar
	ChartScope     string     `json:"chartScope,omitempty"`
	Confidence     float64    `json:"confidence"`
}
