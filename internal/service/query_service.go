package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"sheetchat-backend/config"
	"sheetchat-backend/internal/aggcache"
	"sheetchat-backend/internal/analyst"
	"sheetchat-backend/internal/chart"
	"sheetchat-backend/internal/dto"
	"sheetchat-backend/internal/model"
	"sheetchat-backend/internal/normalizer"
	"sheetchat-backend/internal/repository"
	"sheetchat-backend/internal/resolver"
	"sheetchat-backend/internal/router"
	"sheetchat-backend/internal/similarity"
	"sheetchat-backend/internal/store"
	"sheetchat-backend/internal/vocab"
)

const (
	clarificationConfidence = 0.4
	maxTableRows            = 200
	snippetLimit            = 5
	emptyQueryPrompt        = "Please ask a question about your data, for example: \"total GST for February 2026\" or \"net amount by branch\"."
)

// QueryService runs the full understanding pipeline for one question. Every
// terminal state, answer, clarification or guard failure, comes back as the
// same QueryResult shape.
type QueryService interface {
	Run(ctx context.Context, req dto.QueryRequest) (*dto.QueryResult, error)
	ActiveSchema(ctx context.Context) (*model.SchemaSnapshot, error)
}

type queryService struct {
	normalizer    *normalizer.Normalizer
	resolver      *resolver.Resolver
	intent        IntentExtractor
	datasets      repository.DatasetRepository
	search        repository.SemanticSearchRepository
	clarify       store.ClarificationStore
	history       HistoryService
	cache         *aggcache.Cache
	rowFetchLimit int
}

func NewQueryService(
	cfg *config.Config,
	datasets repository.DatasetRepository,
	search repository.SemanticSearchRepository,
	clarifications store.ClarificationStore,
	intent IntentExtractor,
	history HistoryService,
) QueryService {
	scorer := similarity.NewLevenshteinScorer()
	entityTags := func() []string {
		tagCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		tags, err := datasets.DistinctEntityTags(tagCtx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load entity tags for normalization")
			return nil
		}
		return tags
	}
	return &queryService{
		normalizer:    normalizer.New(scorer, entityTags),
		resolver:      resolver.New(scorer),
		intent:        intent,
		datasets:      datasets,
		search:        search,
		clarify:       clarifications,
		history:       history,
		cache:         aggcache.New(cfg.Query.CacheCapacity),
		rowFetchLimit: cfg.Query.RowFetchLimit,
	}
}

func (s *queryService) ActiveSchema(ctx context.Context) (*model.SchemaSnapshot, error) {
	return s.datasets.GetActiveSchema(ctx)
}

func (s *queryService) Run(ctx context.Context, req dto.QueryRequest) (*dto.QueryResult, error) {
	result := &dto.QueryResult{
		Audit: dto.Audit{OriginalQuery: req.Query, Corrections: map[string]string{}},
	}

	if strings.TrimSpace(req.Query) == "" {
		result.Answer = emptyQueryPrompt
		return result, nil
	}

	// 1. Normalize.
	normalized, corrections := s.normalizer.Normalize(req.Query)
	result.Audit.NormalizedQuery = normalized
	for k, v := range corrections {
		result.Audit.Corrections[k] = v
	}
	lower := strings.ToLower(normalized)

	confirmed := s.resolveConfirmation(ctx, req, normalized)

	// The schema is re-read fresh on every query so a new upload takes
	// authority immediately.
	schema, err := s.datasets.GetActiveSchema(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read active schema")
		result.Answer = "I could not reach the data store. Please try again."
		return result, nil
	}
	if schema == nil || len(schema.ColumnNames) == 0 {
		result.Answer = "No dataset has been uploaded yet. Upload a file first."
		return result, nil
	}

	// 2. Schema short-circuit: metadata-only questions never touch the
	// resolver or analyst.
	if router.MatchesSchema(lower) {
		result.QueryType = router.TypeSchema
		result.Answer = schemaAnswer(schema)
		s.record(ctx, req.Query, result, "")
		return result, nil
	}

	// 3. Resolve concepts against the live schema.
	res := s.resolver.Resolve(normalized, schema)

	// 4. Clarify gate: ask at most once per distinct normalized query.
	if res.NeedsClarification() && !confirmed {
		asked, _ := s.clarify.WasAsked(ctx, normalized)
		if !asked {
			_ = s.clarify.MarkAsked(ctx, normalized)
			result.IsClarification = true
			result.Answer = resolver.BuildClarification(res, schema)
			s.record(ctx, req.Query, result, "")
			return result, nil
		}
		// Resubmission of an already-clarified query proceeds with what
		// did resolve.
	}

	// 5. Intent extraction, merged with resolver output.
	spec, err := s.intent.Extract(ctx, normalized)
	if err != nil || spec == nil {
		log.Warn().Err(err).Msg("Intent extraction failed entirely, using empty spec")
		spec = &dto.FilterSpec{Intent: "other", DateFilterType: dto.DateFilterRowDate}
	}
	s.mergeResolution(spec, res)

	// 6. Deterministic corrections, fixed order.
	s.applyCorrections(lower, spec, result.Audit.Corrections)

	// 7. Classify.
	qtype := router.ClassifyType(spec, normalized)
	channel := router.ClassifyChannel(qtype)
	result.QueryType = qtype
	log.Info().Str("type", qtype).Str("channel", channel).Str("query", normalized).Msg("query routed")

	// 8. Single-dataset authority.
	if spec.DatasetID == "" && spec.DateFilterType != dto.DateFilterUploadDate {
		spec.DatasetID = schema.DatasetID
	}

	// 9. Metric-safety gate: a named metric whose column does not exist is
	// an explicit failure, never a substitution.
	metricConcept := resolver.MetricConcept(spec.Metric)
	var amountCol string
	if metricConcept != "" {
		col, ok := resolver.AmountColumnStrict(res, metricConcept)
		if !ok && qtype != router.TypeVague {
			result.Answer = fmt.Sprintf(
				"This dataset has no column for %q. Available columns: %s.",
				spec.Metric, strings.Join(schema.ColumnNames, ", "))
			s.record(ctx, req.Query, result, spec.EntityTag)
			return result, nil
		}
		amountCol = col
	} else {
		amountCol = resolver.AmountColumnForMetric(res, "")
	}

	// 10. Breakdown-column existence gate.
	if qtype == router.TypeBreakdown {
		if !columnExists(schema, spec.BreakdownBy) {
			result.Answer = fmt.Sprintf(
				"I cannot break the data down by %q; that column does not exist. Available columns: %s.",
				spec.BreakdownBy, strings.Join(schema.ColumnNames, ", "))
			s.record(ctx, req.Query, result, spec.EntityTag)
			return result, nil
		}
	}

	// 11. Confidence gate.
	if spec.Confidence < clarificationConfidence && qtype != router.TypeVague && !confirmed {
		asked, _ := s.clarify.WasAsked(ctx, normalized)
		if !asked {
			_ = s.clarify.MarkAsked(ctx, normalized)
			result.IsClarification = true
			result.Answer = confidenceClarification(spec)
			s.record(ctx, req.Query, result, spec.EntityTag)
			return result, nil
		}
	}

	// 12. Smart defaults for vague queries; no clarification is asked here.
	if qtype == router.TypeVague {
		s.applyVagueDefaults(lower, spec, res, &amountCol)
	}

	// 13. Fetch + cache.
	data, err := s.fetchData(ctx, spec, amountCol)
	if err != nil {
		result.Answer = "I could not fetch the data for this query. Please try again."
		return result, nil
	}

	// 14. Data-existence gate.
	if len(data.Rows) == 0 {
		result.Answer = s.noDataAnswer(ctx, spec)
		s.record(ctx, req.Query, result, spec.EntityTag)
		return result, nil
	}

	// 15. Compute.
	ares := analyst.Analyze(analystIntent(qtype, spec), data, spec.BreakdownBy, amountCol)
	if qtype == router.TypeBreakdown && len(ares.Breakdown) == 0 {
		result.Answer = fmt.Sprintf(
			"I could not compute a breakdown by %q for this data.", spec.BreakdownBy)
		s.record(ctx, req.Query, result, spec.EntityTag)
		return result, nil
	}

	result.Answer = s.composeAnswer(ctx, qtype, channel, normalized, spec, schema, ares)

	// 16. Chart decision: explicit request plus validation, else a table
	// with the stated reason.
	s.attachOutput(result, qtype, spec, ares, data)

	s.record(ctx, req.Query, result, spec.EntityTag)
	return result, nil
}

func (s *queryService) resolveConfirmation(ctx context.Context, req dto.QueryRequest, normalized string) bool {
	if req.Clarification != nil && req.Clarification.Confirmed {
		key := req.Clarification.NormalizedQuery
		if key == "" {
			key = normalized
		}
		_ = s.clarify.MarkConfirmed(ctx, key)
		if key == normalized {
			return true
		}
	}
	confirmed, _ := s.clarify.WasConfirmed(ctx, normalized)
	return confirmed
}

// mergeResolution folds resolver output into the extracted spec. Resolver
// columns always win over anything the extractor echoed.
func (s *queryService) mergeResolution(spec *dto.FilterSpec, res resolver.Result) {
	if spec.DateFilterType == "" {
		spec.DateFilterType = dto.DateFilterRowDate
	}
	if spec.BreakdownBy != "" {
		if col := resolver.BreakdownColumnForTerm(res, spec.BreakdownBy); col != "" {
			spec.BreakdownBy = col
		}
	}
	if spec.BreakdownBy == "" && len(res.GroupBy) > 0 {
		spec.BreakdownBy = res.GroupBy[0]
	}
}

var (
	nextNDaysRe  = regexp.MustCompile(`\bnext\s+(\d+)\s+days?\b(?:\s+from\s+(\S+(?:\s+\S+){0,2}))?`)
	monthYearRe  = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
	monthNumbers = map[string]time.Month{
		"january": time.January, "february": time.February, "march": time.March,
		"april": time.April, "may": time.May, "june": time.June, "july": time.July,
		"august": time.August, "september": time.September, "october": time.October,
		"november": time.November, "december": time.December,
	}
)

// applyCorrections mutates the spec with the deterministic passes: upload
// date forcing, next-N-days expansion, then bare month-year expansion.
func (s *queryService) applyCorrections(lower string, spec *dto.FilterSpec, audit map[string]string) {
	if uploadWords.MatchString(lower) && spec.DateFilterType != dto.DateFilterUploadDate {
		spec.DateFilterType = dto.DateFilterUploadDate
		audit["date_filter_type"] = dto.DateFilterUploadDate
	}

	if m := nextNDaysRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			start := ""
			if m[2] != "" {
				start = parseDateToken(m[2])
			}
			if start == "" {
				if from, _ := spec.DateFilter.Bounds(); from != "" {
					start = from
				} else {
					start = time.Now().UTC().Format("2006-01-02")
				}
			}
			if t, err := time.Parse("2006-01-02", start); err == nil {
				end := t.AddDate(0, 0, n-1).Format("2006-01-02")
				spec.DateFilter = dto.DateFilter{From: start, To: end}
				audit["date_range"] = fmt.Sprintf("next %d days -> [%s, %s]", n, start, end)
			}
		}
	}

	// A bare "Month Year" expands to the whole calendar month, but only
	// when nothing more specific is already present.
	explicitDay := isoDate.MatchString(lower) || dayMonthDate.MatchString(lower)
	hasRange := spec.DateFilter.From != "" && spec.DateFilter.To != "" && spec.DateFilter.From != spec.DateFilter.To
	if m := monthYearRe.FindStringSubmatch(lower); m != nil && !explicitDay && !hasRange {
		year, err := strconv.Atoi(m[2])
		if err == nil {
			month := monthNumbers[m[1]]
			first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
			last := first.AddDate(0, 1, -1)
			spec.DateFilter = dto.DateFilter{
				From: first.Format("2006-01-02"),
				To:   last.Format("2006-01-02"),
			}
			audit["date_range"] = fmt.Sprintf("%s %d -> [%s, %s]",
				m[1], year, spec.DateFilter.From, spec.DateFilter.To)
		}
	}
}

// applyVagueDefaults fills a vague query with safe defaults instead of
// clarifying: tax metric when tax words appear, net otherwise, all-time
// range, and chart framing when display wording is present.
func (s *queryService) applyVagueDefaults(lower string, spec *dto.FilterSpec, res resolver.Result, amountCol *string) {
	if spec.Metric == "" {
		if strings.Contains(lower, "gst") || strings.Contains(lower, "tax") {
			spec.Metric = "gst"
		} else {
			spec.Metric = "net"
		}
	}
	if col := resolver.AmountColumnForMetric(res, spec.Metric); col != "" {
		*amountCol = col
	}
	spec.DateFilter = dto.DateFilter{}
	if chartWords.MatchString(lower) || displayWordsVague.MatchString(lower) {
		spec.NeedsChart = true
		spec.ChartType = "line"
		spec.ChartScope = "trend"
	}
}

var displayWordsVague = regexp.MustCompile(`\bshow\b|\bdisplay\b|\bplot\b|\bdraw\b`)

// fetchData serves the filter tuple from the cache, fetching rows and
// precomputing daily and monthly totals once per unique combination.
func (s *queryService) fetchData(ctx context.Context, spec *dto.FilterSpec, amountCol string) (analyst.Data, error) {
	key := aggcache.BuildKey(spec)
	if v, hit := s.cache.Get(key); hit {
		log.Debug().Interface("key", key).Msg("aggregation cache hit")
		return analyst.Data{Rows: v.Rows, DailyTotals: v.DailyTotals, MonthlyTotals: v.MonthlyTotals}, nil
	}

	q := repository.RowQuery{
		EntityTag: spec.EntityTag,
		Limit:     s.rowFetchLimit,
	}
	from, to := spec.DateFilter.Bounds()
	if spec.DateFilterType == dto.DateFilterUploadDate {
		q.UploadDate = from
	} else {
		q.DatasetID = spec.DatasetID
		q.RowDateFrom = from
		q.RowDateTo = to
	}

	docs, err := s.datasets.FindRows(ctx, q)
	if err != nil {
		log.Error().Err(err).Msg("Row fetch failed")
		return analyst.Data{}, err
	}

	rows := make([]map[string]interface{}, len(docs))
	for i, d := range docs {
		rows[i] = d.Flatten()
	}
	daily, monthly := aggcache.ComputeTotals(rows, amountCol)
	s.cache.Put(key, aggcache.Value{Rows: rows, DailyTotals: daily, MonthlyTotals: monthly})
	return analyst.Data{Rows: rows, DailyTotals: daily, MonthlyTotals: monthly}, nil
}

func (s *queryService) noDataAnswer(ctx context.Context, spec *dto.FilterSpec) string {
	var parts []string
	if from, to := spec.DateFilter.Bounds(); from != "" {
		if from == to {
			parts = append(parts, fmt.Sprintf("date %s", from))
		} else {
			parts = append(parts, fmt.Sprintf("dates %s to %s", from, to))
		}
	}
	if spec.EntityTag != "" {
		parts = append(parts, fmt.Sprintf("client %q", spec.EntityTag))
	}
	if spec.Metric != "" {
		parts = append(parts, fmt.Sprintf("metric %q", spec.Metric))
	}
	msg := "No records found"
	if len(parts) > 0 {
		msg += " for " + strings.Join(parts, ", ")
	}
	msg += "."

	dates, err := s.datasets.NearbyDates(ctx, spec.DatasetID, spec.EntityTag, 10)
	if err == nil && len(dates) > 0 {
		msg += fmt.Sprintf(" Data does exist for: %s.", strings.Join(dates, ", "))
	}
	return msg
}

func analystIntent(qtype string, spec *dto.FilterSpec) string {
	switch qtype {
	case router.TypeBreakdown:
		if spec.Intent == "compare" {
			return "compare"
		}
		return "breakdown"
	case router.TypeTrend:
		return "trend"
	case router.TypeExplanation:
		if spec.Intent == "explain" || spec.Intent == "insights" {
			return spec.Intent
		}
		return "summarize"
	case router.TypeVague:
		if spec.NeedsChart {
			return "trend"
		}
		return "single_value"
	default:
		if spec.Intent != "" && spec.Intent != "other" {
			return spec.Intent
		}
		return "single_value"
	}
}

func (s *queryService) composeAnswer(ctx context.Context, qtype, channel, normalized string, spec *dto.FilterSpec, schema *model.SchemaSnapshot, ares analyst.Result) string {
	var b strings.Builder
	switch qtype {
	case router.TypeBreakdown:
		fmt.Fprintf(&b, "Breakdown of %s by %s:", metricLabel(spec, ares), spec.BreakdownBy)
		for _, item := range ares.Breakdown {
			fmt.Fprintf(&b, " %s = %.2f (%d rows);", item.Category, item.Amount, item.Count)
		}
	case router.TypeTrend:
		fmt.Fprintf(&b, "Trend of %s across %d days, total %.2f over %d rows.",
			metricLabel(spec, ares), len(ares.Series), ares.Total, ares.Count)
	case router.TypeExplanation:
		if ares.Message != "" {
			b.WriteString(ares.Message)
		} else {
			fmt.Fprintf(&b, "Summary: %d rows, total %s = %.2f.", ares.Count, metricLabel(spec, ares), ares.Total)
		}
		// The explanation channel is the only one allowed to use semantic
		// search; a failed search is silently dropped.
		if channel == router.ChannelSemanticSearch && s.search != nil {
			snippets, err := s.search.Search(ctx, normalized, repository.SnippetFilter{
				DatasetID: schema.DatasetID,
				Limit:     snippetLimit,
			})
			if err != nil {
				log.Warn().Err(err).Msg("Semantic search failed, answering without snippets")
			} else if len(snippets) > 0 {
				b.WriteString(" Related rows:")
				for _, sn := range snippets {
					fmt.Fprintf(&b, " [%s] %s", sn.RowDate, truncate(sn.Text, 120))
				}
			}
		}
	default:
		fmt.Fprintf(&b, "Total %s: %.2f across %d rows.", metricLabel(spec, ares), ares.Total, ares.Count)
	}
	return b.String()
}

// attachOutput renders the chart when it was asked for and survives
// validation, otherwise emits table rows with the fallback reason.
func (s *queryService) attachOutput(result *dto.QueryResult, qtype string, spec *dto.FilterSpec, ares analyst.Result, data analyst.Data) {
	x, y := chartSeries(qtype, ares)

	if spec.NeedsChart {
		ok, reason := chart.Validate(x, y, spec, qtype)
		if ok {
			chartType := spec.ChartType
			if chartType == "" {
				if qtype == router.TypeTrend || qtype == router.TypeVague {
					chartType = "line"
				} else {
					chartType = "bar"
				}
			}
			result.Chart = &dto.ChartData{
				Type:   chartType,
				X:      x,
				Y:      y,
				XLabel: xLabel(qtype, spec),
				YLabel: ares.AmountKey,
			}
			log.Debug().Str("chartType", chartType).Int("points", len(x)).Msg("chart rendered")
			return
		}
		log.Debug().Str("reason", reason).Msg("chart request fell back to table")
		result.ChartFallbackReason = reason
	}

	result.TableRows = tableRows(qtype, ares, data)
}

func chartSeries(qtype string, ares analyst.Result) ([]string, []float64) {
	if qtype == router.TypeBreakdown {
		x := make([]string, len(ares.Breakdown))
		y := make([]float64, len(ares.Breakdown))
		for i, item := range ares.Breakdown {
			x[i] = item.Category
			y[i] = item.Amount
		}
		return x, y
	}
	x := make([]string, len(ares.Series))
	y := make([]float64, len(ares.Series))
	for i, p := range ares.Series {
		x[i] = p.Date
		y[i] = p.Value
	}
	return x, y
}

func tableRows(qtype string, ares analyst.Result, data analyst.Data) []dto.TableRow {
	switch qtype {
	case router.TypeBreakdown:
		rows := make([]dto.TableRow, 0, len(ares.Breakdown))
		for _, item := range ares.Breakdown {
			rows = append(rows, dto.TableRow{"category": item.Category, "amount": item.Amount, "count": item.Count})
		}
		return rows
	case router.TypeTrend, router.TypeVague:
		rows := make([]dto.TableRow, 0, len(ares.Series))
		for _, p := range ares.Series {
			rows = append(rows, dto.TableRow{"date": p.Date, "value": p.Value})
		}
		return rows
	case router.TypeExplanation:
		limit := len(data.Rows)
		if limit > maxTableRows {
			limit = maxTableRows
		}
		rows := make([]dto.TableRow, 0, limit)
		for _, r := range data.Rows[:limit] {
			rows = append(rows, dto.TableRow(r))
		}
		return rows
	default:
		return []dto.TableRow{{"total": ares.Total, "count": ares.Count, "amountColumn": ares.AmountKey}}
	}
}

func xLabel(qtype string, spec *dto.FilterSpec) string {
	if qtype == router.TypeBreakdown {
		return spec.BreakdownBy
	}
	return "date"
}

func metricLabel(spec *dto.FilterSpec, ares analyst.Result) string {
	if spec.Metric != "" {
		return spec.Metric
	}
	if ares.AmountKey != "" {
		return ares.AmountKey
	}
	return "amount"
}

func schemaAnswer(schema *model.SchemaSnapshot) string {
	return fmt.Sprintf("The active dataset %q has %d rows and %d columns: %s.",
		schema.Filename, schema.RowCount, schema.ColumnCount,
		strings.Join(schema.ColumnNames, ", "))
}

func confidenceClarification(spec *dto.FilterSpec) string {
	var parts []string
	if spec.Metric != "" {
		parts = append(parts, fmt.Sprintf("metric %q", spec.Metric))
	}
	if from, to := spec.DateFilter.Bounds(); from != "" {
		if from == to {
			parts = append(parts, fmt.Sprintf("date %s", from))
		} else {
			parts = append(parts, fmt.Sprintf("dates %s to %s", from, to))
		}
	}
	if spec.EntityTag != "" {
		parts = append(parts, fmt.Sprintf("client %q", spec.EntityTag))
	}
	if len(parts) == 0 {
		return "I am not sure what you are asking for. Could you rephrase with a metric and a date?"
	}
	return fmt.Sprintf("Just to confirm, you want %s? Resubmit with confirmation to proceed.",
		strings.Join(parts, ", "))
}

func columnExists(schema *model.SchemaSnapshot, column string) bool {
	if column == "" {
		return false
	}
	target := vocab.Normalize(column)
	for _, c := range schema.ColumnNames {
		if vocab.Normalize(c) == target {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (s *queryService) record(ctx context.Context, question string, result *dto.QueryResult, entityTag string) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, question, result, entityTag); err != nil {
		log.Warn().Err(err).Msg("Failed to persist chat history entry")
	}
}
