package repository

import (
	"context"

	"sheetchat-backend/internal/model"
)

// RowQuery is the filter set used to fetch rows from the store.
type RowQuery struct {
	DatasetID   string
	EntityTag   string
	UploadDate  string // YYYY-MM-DD, scopes by upload date instead of dataset id
	RowDateFrom string // inclusive
	RowDateTo   string // inclusive
	Limit       int
}

// DatasetRepository is the schema/row store the pipeline reads from. The
// active schema is always re-read fresh per query, never cached, so
// single-dataset authority stays correct after a new upload.
type DatasetRepository interface {
	// GetActiveSchema returns the snapshot for the most recently uploaded
	// dataset, or nil when nothing has been uploaded yet.
	GetActiveSchema(ctx context.Context) (*model.SchemaSnapshot, error)
	// FindRows fetches the rows matching the query filters.
	FindRows(ctx context.Context, q RowQuery) ([]model.RowDocument, error)
	// NearbyDates lists dates for which data does exist near an empty
	// result, for the no-data message.
	NearbyDates(ctx context.Context, datasetID, entityTag string, limit int) ([]string, error)
	// DistinctEntityTags lists the entity tags present in the store.
	DistinctEntityTags(ctx context.Context) ([]string, error)
}

// DatasetWriter is the ingestion-side interface for persisting uploads.
type DatasetWriter interface {
	CreateDataset(ctx context.Context, schema model.SchemaSnapshot) error
	InsertRows(ctx context.Context, rows []model.RowDocument) error
}

// SnippetFilter scopes a semantic search to the active dataset.
type SnippetFilter struct {
	DatasetID string
	EntityTag string
	Limit     int
}

// SemanticSearchRepository serves the explanation channel only. Results
// whose dataset id mismatches the filter must be discarded by the caller.
type SemanticSearchRepository interface {
	Search(ctx context.Context, text string, filter SnippetFilter) ([]model.RowSnippet, error)
}
