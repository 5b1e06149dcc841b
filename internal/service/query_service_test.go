package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetchat-backend/config"
	"sheetchat-backend/internal/chart"
	"sheetchat-backend/internal/dto"
	"sheetchat-backend/internal/model"
	"sheetchat-backend/internal/repository"
	"sheetchat-backend/internal/router"
	"sheetchat-backend/internal/service"
	"sheetchat-backend/internal/store"
)

type fakeDatasetRepo struct {
	schema    *model.SchemaSnapshot
	rows      []model.RowDocument
	nearby    []string
	tags      []string
	findCalls int
	lastQuery repository.RowQuery
}

func (f *fakeDatasetRepo) GetActiveSchema(ctx context.Context) (*model.SchemaSnapshot, error) {
	return f.schema, nil
}

func (f *fakeDatasetRepo) FindRows(ctx context.Context, q repository.RowQuery) ([]model.RowDocument, error) {
	f.findCalls++
	f.lastQuery = q
	return f.rows, nil
}

func (f *fakeDatasetRepo) NearbyDates(ctx context.Context, datasetID, entityTag string, limit int) ([]string, error) {
	return f.nearby, nil
}

func (f *fakeDatasetRepo) DistinctEntityTags(ctx context.Context) ([]string, error) {
	return f.tags, nil
}

type fakeSearchRepo struct {
	snippets   []model.RowSnippet
	calls      int
	lastFilter repository.SnippetFilter
}

func (f *fakeSearchRepo) Search(ctx context.Context, text string, filter repository.SnippetFilter) ([]model.RowSnippet, error) {
	f.calls++
	f.lastFilter = filter
	return f.snippets, nil
}

type fakeIntent struct {
	spec  dto.FilterSpec
	calls int
}

func (f *fakeIntent) Extract(ctx context.Context, query string) (*dto.FilterSpec, error) {
	f.calls++
	spec := f.spec
	return &spec, nil
}

type fakeHistory struct {
	questions []string
	types     []string
}

func (f *fakeHistory) Record(ctx context.Context, question string, result *dto.QueryResult, entityTag string) error {
	f.questions = append(f.questions, question)
	f.types = append(f.types, result.QueryType)
	return nil
}

func (f *fakeHistory) Recent(ctx context.Context, limit int) ([]model.ChatRecord, error) {
	return nil, nil
}

func testSchema() *model.SchemaSnapshot {
	return &model.SchemaSnapshot{
		DatasetID:   "ds-1",
		UploadDate:  "2026-02-20",
		Filename:    "acme__feb.csv",
		ColumnNames: []string{"invoice_date", "branch", "gst_amount", "net_amount", "total_value"},
		ColumnCount: 5,
		RowCount:    4,
	}
}

func febRows() []model.RowDocument {
	return []model.RowDocument{
		{DatasetID: "ds-1", RowDate: "2026-02-01", Fields: map[string]interface{}{
			"invoice_date": "2026-02-01", "branch": "pune", "gst_amount": 10.0, "net_amount": 20.0,
		}},
		{DatasetID: "ds-1", RowDate: "2026-02-02", Fields: map[string]interface{}{
			"invoice_date": "2026-02-02", "branch": "delhi", "gst_amount": 10.0, "net_amount": 30.0,
		}},
	}
}

func newTestService(repo *fakeDatasetRepo, search *fakeSearchRepo, intent *fakeIntent, history service.HistoryService) service.QueryService {
	cfg := &config.Config{Query: config.QueryConfig{CacheCapacity: 8, RowFetchLimit: 100}}
	return service.NewQueryService(cfg, repo, search, store.NewInMemoryClarificationStore(), intent, history)
}

func TestRun_EmptyQueryPrompts(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema()}
	svc := newTestService(repo, &fakeSearchRepo{}, &fakeIntent{}, nil)

	res, err := svc.Run(context.Background(), dto.QueryRequest{Query: "   "})
	require.NoError(t, err)
	assert.Contains(t, res.Answer, "Please ask a question")
}

func TestRun_NoDatasetUploaded(t *testing.T) {
	repo := &fakeDatasetRepo{}
	svc := newTestService(repo, &fakeSearchRepo{}, &fakeIntent{}, nil)

	res, err := svc.Run(context.Background(), dto.QueryRequest{Query: "total gst"})
	require.NoError(t, err)
	assert.Contains(t, res.Answer, "No dataset has been uploaded")
}

func TestRun_SchemaShortCircuit(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema()}
	intent := &fakeIntent{}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, nil)

	res, err := svc.Run(context.Background(), dto.QueryRequest{Query: "how many rows are there"})
	require.NoError(t, err)

	assert.Equal(t, router.TypeSchema, res.QueryType)
	assert.Contains(t, res.Answer, "acme__feb.csv")
	assert.Contains(t, res.Answer, "gst_amount")
	assert.Zero(t, repo.findCalls)
	assert.Zero(t, intent.calls)
}

func TestRun_MonthYearExpandsToCalendarMonth(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), rows: febRows()}
	intent := &fakeIntent{spec: dto.FilterSpec{Intent: "single_value", Metric: "gst", Confidence: 0.9}}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, nil)

	res, err := svc.Run(context.Background(), dto.QueryRequest{Query: "total gst for february 2026"})
	require.NoError(t, err)

	assert.Equal(t, "2026-02-01", repo.lastQuery.RowDateFrom)
	assert.Equal(t, "2026-02-28", repo.lastQuery.RowDateTo)
	assert.Equal(t, "ds-1", repo.lastQuery.DatasetID)
	assert.Contains(t, res.Answer, "20.00")
	assert.Contains(t, res.Audit.Corrections["date_range"], "2026-02-28")
	require.Len(t, res.TableRows, 1)
	assert.Equal(t, 20.00, res.TableRows[0]["total"])
}

func TestRun_NextNDaysExpansion(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), rows: febRows()}
	intent := &fakeIntent{spec: dto.FilterSpec{Intent: "single_value", Metric: "gst", Confidence: 0.9}}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, nil)

	res, err := svc.Run(context.Background(), dto.QueryRequest{Query: "gst for next 5 days from 2026-02-10"})
	require.NoError(t, err)

	assert.Equal(t, "2026-02-10", repo.lastQuery.RowDateFrom)
	assert.Equal(t, "2026-02-14", repo.lastQuery.RowDateTo)
	assert.Contains(t, res.Audit.Corrections["date_range"], "next 5 days")
}

func TestRun_UploadPhrasingScopesByUploadDate(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), rows: febRows()}
	intent := &fakeIntent{spec: dto.FilterSpec{Intent: "single_value", Metric: "gst", Confidence: 0.9}}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, nil)

	res, err := svc.Run(context.Background(), dto.QueryRequest{Query: "total gst in the uploaded file"})
	require.NoError(t, err)

	// Upload-date scoping replaces dataset-id authority.
	assert.Equal(t, "", repo.lastQuery.DatasetID)
	assert.Equal(t, dto.DateFilterUploadDate, res.Audit.Corrections["date_filter_type"])
}

func TestRun_ClarifyOnceThenMetricSafety(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), rows: febRows()}
	intent := &fakeIntent{spec: dto.FilterSpec{Intent: "single_value", Metric: "discount", Confidence: 0.9}}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, nil)

	req := dto.QueryRequest{Query: "discount for last week"}

	first, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.IsClarification)
	assert.Contains(t, first.Answer, "discount")
	assert.Contains(t, first.Answer, "gst_amount")

	// The same normalized query is never clarified twice; the resubmission
	// proceeds and hits the metric-safety gate instead of substituting.
	second, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, second.IsClarification)
	assert.Contains(t, second.Answer, `no column for "discount"`)
	assert.Zero(t, repo.findCalls)
}

func TestRun_ConfirmedClarificationProceeds(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), rows: febRows()}
	intent := &fakeIntent{spec: dto.FilterSpec{Intent: "single_value", Metric: "gst", Confidence: 0.9}}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, nil)

	req := dto.QueryRequest{
		Query:         "discount for last week",
		Clarification: &dto.ClarificationContext{Confirmed: true},
	}
	res, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.IsClarification)
}

func TestRun_ConfidenceGateAsksOnce(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), rows: febRows()}
	intent := &fakeIntent{spec: dto.FilterSpec{Intent: "other", Metric: "gst", Confidence: 0.2}}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, nil)

	req := dto.QueryRequest{Query: "gst numbers maybe"}

	first, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.IsClarification)
	assert.Contains(t, first.Answer, `metric "gst"`)
	assert.Zero(t, repo.findCalls)

	second, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, second.IsClarification)
	assert.Equal(t, 1, repo.findCalls)
}

func TestRun_VagueQueryGetsDefaultsAndLineChart(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), rows: febRows()}
	intent := &fakeIntent{spec: dto.FilterSpec{Intent: "other", Confidence: 0.2}}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, nil)

	res, err := svc.Run(context.Background(), dto.QueryRequest{Query: "show me the data"})
	require.NoError(t, err)

	assert.Equal(t, router.TypeVague, res.QueryType)
	// No clarification for vague queries despite the low confidence.
	assert.False(t, res.IsClarification)
	assert.Contains(t, res.Answer, "net")
	require.NotNil(t, res.Chart)
	assert.Equal(t, "line", res.Chart.Type)
	assert.Len(t, res.Chart.X, 2)
	assert.Empty(t, res.TableRows)
}

func TestRun_ChartFallsBackToTable(t *testing.T) {
	// All rows on one day: the daily series has a single point, so the
	// requested chart is refused and a table comes back with the reason.
	rows := []model.RowDocument{
		{DatasetID: "ds-1", RowDate: "2026-02-01", Fields: map[string]interface{}{"net_amount": 20.0}},
		{DatasetID: "ds-1", RowDate: "2026-02-01", Fields: map[string]interface{}{"net_amount": 30.0}},
	}
	repo := &fakeDatasetRepo{schema: testSchema(), rows: rows}
	intent := &fakeIntent{spec: dto.FilterSpec{Intent: "other", Confidence: 0.2}}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, nil)

	res, err := svc.Run(context.Background(), dto.QueryRequest{Query: "show me the data"})
	require.NoError(t, err)

	assert.Nil(t, res.Chart)
	assert.Equal(t, chart.ReasonTooFewPoints, res.ChartFallbackReason)
	assert.NotEmpty(t, res.TableRows)
}

func TestRun_NoDataNamesNearbyDates(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), nearby: []string{"2026-03-01", "2026-03-02"}}
	intent := &fakeIntent{spec: dto.FilterSpec{Intent: "single_value", Metric: "gst", Confidence: 0.9}}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, nil)

	res, err := svc.Run(context.Background(), dto.QueryRequest{Query: "total gst for february 2026"})
	require.NoError(t, err)

	assert.Contains(t, res.Answer, "No records found")
	assert.Contains(t, res.Answer, "dates 2026-02-01 to 2026-02-28")
	assert.Contains(t, res.Answer, "Data does exist for: 2026-03-01")
}

func TestRun_BreakdownColumnMustExist(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), rows: febRows()}
	intent := &fakeIntent{spec: dto.FilterSpec{
		Intent: "breakdown", Metric: "gst", BreakdownBy: "warehouse", Confidence: 0.9,
	}}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, nil)

	res, err := svc.Run(context.Background(), dto.QueryRequest{Query: "total gst grouped"})
	require.NoError(t, err)

	assert.Contains(t, res.Answer, `by "warehouse"`)
	assert.Contains(t, res.Answer, "does not exist")
	assert.Zero(t, repo.findCalls)
}

func TestRun_BreakdownByBranch(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), rows: febRows()}
	intent := &fakeIntent{spec: dto.FilterSpec{
		Intent: "breakdown", Metric: "gst", BreakdownBy: "branch", Confidence: 0.9,
	}}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, nil)

	res, err := svc.Run(context.Background(), dto.QueryRequest{Query: "gst by branch for february 2026"})
	require.NoError(t, err)

	assert.Equal(t, router.TypeBreakdown, res.QueryType)
	assert.Contains(t, res.Answer, "Breakdown of gst by branch")
	assert.Contains(t, res.Answer, "pune")
	assert.Contains(t, res.Answer, "delhi")
	require.Len(t, res.TableRows, 2)
	assert.Equal(t, "delhi", res.TableRows[0]["category"])
}

func TestRun_ExplanationUsesSemanticSearch(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), rows: febRows()}
	search := &fakeSearchRepo{snippets: []model.RowSnippet{
		{DatasetID: "ds-1", RowDate: "2026-02-01", Text: "invoice_date: 2026-02-01; branch: pune"},
	}}
	intent := &fakeIntent{spec: dto.FilterSpec{Intent: "explain", Metric: "tax", Confidence: 0.9}}
	svc := newTestService(repo, search, intent, nil)

	res, err := svc.Run(context.Background(), dto.QueryRequest{Query: "why did tax increase in february 2026"})
	require.NoError(t, err)

	assert.Equal(t, router.TypeExplanation, res.QueryType)
	assert.Contains(t, res.Answer, "Related rows:")
	assert.Contains(t, res.Answer, "pune")
	assert.Equal(t, 1, search.calls)
	assert.Equal(t, "ds-1", search.lastFilter.DatasetID)
	assert.Equal(t, 5, search.lastFilter.Limit)
}

func TestRun_DirectChannelNeverSearches(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), rows: febRows()}
	search := &fakeSearchRepo{snippets: []model.RowSnippet{{Text: "should not appear"}}}
	intent := &fakeIntent{spec: dto.FilterSpec{Intent: "single_value", Metric: "gst", Confidence: 0.9}}
	svc := newTestService(repo, search, intent, nil)

	res, err := svc.Run(context.Background(), dto.QueryRequest{Query: "total gst for february 2026"})
	require.NoError(t, err)

	assert.Zero(t, search.calls)
	assert.NotContains(t, res.Answer, "should not appear")
}

func TestRun_RepeatQueryServedFromCache(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), rows: febRows()}
	intent := &fakeIntent{spec: dto.FilterSpec{Intent: "single_value", Metric: "gst", Confidence: 0.9}}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, nil)

	req := dto.QueryRequest{Query: "total gst for february 2026"}

	first, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.findCalls)
	assert.Equal(t, first.Answer, second.Answer)
}

func TestRun_HistoryRecorded(t *testing.T) {
	repo := &fakeDatasetRepo{schema: testSchema(), rows: febRows()}
	intent := &fakeIntent{spec: dto.FilterSpec{Intent: "single_value", Metric: "gst", Confidence: 0.9}}
	history := &fakeHistory{}
	svc := newTestService(repo, &fakeSearchRepo{}, intent, history)

	_, err := svc.Run(context.Background(), dto.QueryRequest{Query: "total gst for february 2026"})
	require.NoError(t, err)

	require.Len(t, history.questions, 1)
	assert.Equal(t, "total gst for february 2026", history.questions[0])
	assert.Equal(t, router.TypeData, history.types[0])
}
