package elasticsearch

import (
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/operator"
	"github.com/rs/zerolog/log"

	"sheetchat-backend/config"
	"sheetchat-backend/internal/model"
	"sheetchat-backend/internal/repository"
)

type elasticSnippetRepository struct {
	esTypedClient *elasticsearch.TypedClient
	index         string
}

// NewSnippetRepository builds the semantic-search repository the explanation
// channel queries. Every other query type must stay on the direct path.
func NewSnippetRepository(cfg *config.Config) (repository.SemanticSearchRepository, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Transport: newTransport(),
	}

	typedClient, err := elasticsearch.NewTypedClient(esCfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create Typed Elasticsearch Client in Repository")
		return nil, err
	}

	return &elasticSnippetRepository{
		esTypedClient: typedClient,
		index:         cfg.Elasticsearch.RowIndex,
	}, nil
}

func (r *elasticSnippetRepository) Search(ctx context.Context, text string, filter repository.SnippetFilter) ([]model.RowSnippet, error) {
	queryParts := []types.Query{
		{
			QueryString: &types.QueryStringQuery{
				Query:  text,
				Fields: []string{"content", "entityTag"},
				DefaultOperator: &operator.Operator{
					Name: "OR",
				},
			},
		},
	}
	filterParts := []types.Query{}
	if filter.DatasetID != "" {
		filterParts = append(filterParts, types.Query{
			Term: map[string]types.TermQuery{
				"datasetId.keyword": {Value: filter.DatasetID},
			},
		})
	}
	if filter.EntityTag != "" {
		filterParts = append(filterParts, types.Query{
			Term: map[string]types.TermQuery{
				"entityTag.keyword": {Value: filter.EntityTag},
			},
		})
	}

	size := filter.Limit
	if size <= 0 {
		size = 5
	}

	req := &search.Request{
		Query: &types.Query{
			Bool: &types.BoolQuery{
				Must:   queryParts,
				Filter: filterParts,
			},
		},
		Size: &size,
	}

	res, err := r.esTypedClient.Search().
		Index(r.index).
		Request(req).
		Do(ctx)
	if err != nil {
		log.Error().Err(err).Str("query", text).Msg("Semantic search failed")
		return nil, err
	}

	snippets := make([]model.RowSnippet, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		var doc rowSearchDoc
		if err := json.Unmarshal(hit.Source_, &doc); err != nil {
			log.Warn().Err(err).Msg("Failed to unmarshal search hit")
			continue
		}
		score := 0.0
		if hit.Score_ != nil {
			score = float64(*hit.Score_)
		}
		// Hits from any other dataset are discarded so semantic results can
		// never cross dataset boundaries.
		if filter.DatasetID != "" && doc.DatasetID != filter.DatasetID {
			log.Warn().Str("hitDataset", doc.DatasetID).Str("activeDataset", filter.DatasetID).
				Msg("Discarding semantic hit from non-active dataset")
			continue
		}
		snippets = append(snippets, model.RowSnippet{
			DatasetID: doc.DatasetID,
			RowDate:   doc.RowDate,
			Text:      doc.Content,
			Score:     score,
		})
	}
	log.Debug().Int("hits", len(snippets)).Str("query", text).Msg("Semantic search complete")
	return snippets, nil
}
