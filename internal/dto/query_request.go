package dto

type QueryRequest struct {
	Query         string                `json:"query" binding:"required"`
	Clarification *ClarificationContext `json:"clarification,omitempty"`
}

// ClarificationContext lets the caller confirm a previously asked
// clarification so the same normalized query is never asked twice.
type ClarificationContext struct {
	NormalizedQuery string `json:"normalizedQuery"`
	Confirmed       bool   `json:"confirmed"`
}
