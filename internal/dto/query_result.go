package dto

// ChartData is the renderable chart descriptor handed to the UI.
type ChartData struct {
	Type   string    `json:"type"` // line | bar
	X      []string  `json:"x"`
	Y      []float64 `json:"y"`
	XLabel string    `json:"xLabel"`
	YLabel string    `json:"yLabel"`
	Title  string    `json:"title,omitempty"`
}

type TableRow map[string]interface{}

// Audit echoes what the pipeline actually ran so callers can debug
// normalization without branching on which state terminated.
type Audit struct {
	OriginalQuery   string            `json:"originalQuery"`
	NormalizedQuery string            `json:"normalizedQuery"`
	Corrections     map[string]string `json:"corrections"`
}

// QueryResult is the single uniform result shape for every terminal state of
// the pipeline: answers, clarifications, guard failures and chart fallbacks
// all come back through it.
type QueryResult struct {
	Answer              string     `json:"answer"`
	QueryType           string     `json:"queryType,omitempty"`
	Chart               *ChartData `json:"chart,omitempty"`
	TableRows           []TableRow `json:"tableRows,omitempty"`
	ChartFallbackReason string     `json:"chartFallbackReason,omitempty"`
	IsClarification     bool       `json:"isClarification"`
	Audit               Audit      `json:"audit"`
}
