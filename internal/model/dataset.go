package model

// SchemaSnapshot describes the currently active (most recently uploaded)
// dataset. It is captured fresh from the row store at the start of every
// query and never mutated afterwards.
type SchemaSnapshot struct {
	DatasetID   string   `json:"datasetId"`
	UploadDate  string   `json:"uploadDate"` // YYYY-MM-DD
	Filename    string   `json:"filename"`
	EntityTag   string   `json:"entityTag,omitempty"`
	ColumnNames []string `json:"columnNames"`
	ColumnCount int      `json:"columnCount"`
	RowCount    int64    `json:"rowCount"`
	MinRowDate  string   `json:"minRowDate,omitempty"` // earliest rowDate observed, if any
	MaxRowDate  string   `json:"maxRowDate,omitempty"`
}

// RowDocument is one normalized row of an uploaded dataset. Fields holds the
// dynamic, per-upload columns; dates are ISO strings, amounts float64.
type RowDocument struct {
	DatasetID  string                 `json:"datasetId"`
	UploadDate string                 `json:"uploadDate"`
	EntityTag  string                 `json:"entityTag,omitempty"`
	RowDate    string                 `json:"rowDate,omitempty"` // YYYY-MM-DD
	Fields     map[string]interface{} `json:"fields"`
}

// Flatten merges the dynamic fields with the rowDate key the analyst groups
// by. Bookkeeping fields (dataset id, upload date, entity tag) are excluded
// so they never leak into totals.
func (r RowDocument) Flatten() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	if r.RowDate != "" {
		out["rowDate"] = r.RowDate
	}
	return out
}

// RowSnippet is one semantic-search hit used by the explanation channel.
type RowSnippet struct {
	DatasetID string  `json:"datasetId"`
	RowDate   string  `json:"rowDate,omitempty"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}
