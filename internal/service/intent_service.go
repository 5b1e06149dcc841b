package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog/log"

	"sheetchat-backend/config"
	"sheetchat-backend/internal/dto"
)

// IntentExtractor turns normalized query text into a filter spec. The
// returned spec carries loose hints only; resolver output always overrides
// any column names it echoes.
type IntentExtractor interface {
	Extract(ctx context.Context, query string) (*dto.FilterSpec, error)
}

type GeminiPart struct {
	Text string `json:"text"`
}
type GeminiContent struct {
	Parts []GeminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}
type GeminiRequestBody struct {
	Contents []GeminiContent `json:"contents"`
}
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}
type GeminiResponse struct {
	Candidates []GeminiCandidate `json:"candidates"`
}

// intentAnalysis is the JSON shape the model is asked to return.
type intentAnalysis struct {
	Intent         string  `json:"intent"`
	Metric         string  `json:"metric"`
	DateSingle     string  `json:"date_single"`
	DateFrom       string  `json:"date_from"`
	DateTo         string  `json:"date_to"`
	DateFilterType string  `json:"date_filter_type"`
	Entity         string  `json:"entity"`
	BreakdownBy    string  `json:"breakdown_by"`
	NeedsChart     bool    `json:"needs_chart"`
	ChartType      string  `json:"chart_type"`
	Confidence     float64 `json:"confidence"`
}

func (a intentAnalysis) toFilterSpec() *dto.FilterSpec {
	spec := &dto.FilterSpec{
		Intent: a.Intent,
		Metric: a.Metric,
		DateFilter: dto.DateFilter{
			Single: a.DateSingle,
			From:   a.DateFrom,
			To:     a.DateTo,
		},
		DateFilterType: a.DateFilterType,
		EntityTag:      a.Entity,
		BreakdownBy:    a.BreakdownBy,
		NeedsChart:     a.NeedsChart,
		ChartType:      a.ChartType,
		Confidence:     a.Confidence,
	}
	if spec.DateFilterType == "" {
		spec.DateFilterType = dto.DateFilterRowDate
	}
	return spec
}

type geminiIntentService struct {
	apiKey     string
	modelID    string
	httpClient *http.Client
}

// NewGeminiIntentService builds the LLM-backed extractor. An empty API key
// is allowed; Extract then fails fast and the caller falls back.
func NewGeminiIntentService(cfg *config.Config) IntentExtractor {
	return &geminiIntentService{
		apiKey: cfg.Intent.GeminiAPIKey,
		httpClient: &http.Client{
			Timeout: cfg.Intent.Timeout,
		},
		modelID: cfg.Intent.ModelID,
	}
}

func (s *geminiIntentService) Extract(ctx context.Context, query string) (*dto.FilterSpec, error) {
	if s.apiKey == "" {
		return nil, errors.New("gemini API key not configured")
	}
	log.Info().Str("query", query).Msg("Gemini intent service: analyzing query")

	requestBody := GeminiRequestBody{Contents: []GeminiContent{{
		Role:  "user",
		Parts: []GeminiPart{{Text: buildIntentPrompt(query)}},
	}}}
	bodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	respBodyBytes, err := s.callGeminiAPI(ctx, bodyBytes)
	if err != nil {
		return nil, err
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(respBodyBytes, &geminiResp); err != nil {
		log.Error().Err(err).Bytes("response_body", respBodyBytes).Msg("Failed to unmarshal Gemini API response")
		return nil, fmt.Errorf("failed to parse Gemini response: %w", err)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("received empty or invalid response structure from Gemini")
	}

	generatedText := geminiResp.Candidates[0].Content.Parts[0].Text
	cleanedJSON := cleanLLMJsonOutput(generatedText)
	if cleanedJSON == "" {
		log.Error().Str("raw_text", generatedText).Msg("Failed to extract valid JSON from Gemini response text")
		return nil, errors.New("LLM did not return valid JSON in its response")
	}

	var analysis intentAnalysis
	decoder := json.NewDecoder(strings.NewReader(cleanedJSON))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&analysis); err != nil {
		log.Error().Err(err).Str("cleaned_json", cleanedJSON).Msg("Failed to unmarshal cleaned JSON from Gemini response")
		return nil, fmt.Errorf("failed to parse structured analysis from LLM: %w", err)
	}

	log.Info().Interface("analysis", analysis).Msg("Gemini intent service: analysis complete")
	return analysis.toFilterSpec(), nil
}

func (s *geminiIntentService) callGeminiAPI(ctx context.Context, bodyBytes []byte) ([]byte, error) {
	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", s.modelID, s.apiKey)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Gemini HTTP request failed")
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status_code", resp.StatusCode).Bytes("response_body", respBodyBytes).Msg("Gemini API returned non-OK status")
		return nil, fmt.Errorf("gemini API error: status code %d", resp.StatusCode)
	}
	return respBodyBytes, nil
}

func cleanLLMJsonOutput(raw string) string {
	startIndex := strings.Index(raw, "{")
	if startIndex == -1 {
		return ""
	}
	endIndex := strings.LastIndex(raw, "}")
	if endIndex == -1 || endIndex < startIndex {
		return ""
	}
	potentialJSON := raw[startIndex : endIndex+1]
	var js map[string]interface{}
	if json.Unmarshal([]byte(potentialJSON), &js) == nil {
		return potentialJSON
	}
	log.Warn().Str("potential_json", potentialJSON).Msg("Could not validate potential JSON extracted from LLM response")
	return ""
}

func buildIntentPrompt(query string) string {
	return fmt.Sprintf(`
Analyze the user's natural language question about a tabular financial dataset and extract structured intent. Respond *ONLY* with a valid JSON object matching the specified format, without any introductory text or markdown formatting.

Desired JSON Output Format:
{
  "intent": ("single_value" | "breakdown" | "trend" | "compare" | "summarize" | "explain" | "other"),
  "metric": (string | null),            // the amount the user asks about, e.g. "gst", "net", "total", "discount"
  "date_single": (string | null),       // YYYY-MM-DD when the question names one day
  "date_from": (string | null),         // YYYY-MM-DD inclusive range start
  "date_to": (string | null),           // YYYY-MM-DD inclusive range end
  "date_filter_type": ("row_date" | "upload_date"),
  "entity": (string | null),            // client or company name mentioned
  "breakdown_by": (string | null),      // grouping term, e.g. "branch", "payment mode"
  "needs_chart": (true | false),
  "chart_type": ("line" | "bar" | null),
  "confidence": number                  // 0.0 to 1.0
}

Example for "total gst for acme corp on 2026-02-10":
{"intent": "single_value", "metric": "gst", "date_single": "2026-02-10", "date_from": null, "date_to": null, "date_filter_type": "row_date", "entity": "acme corp", "breakdown_by": null, "needs_chart": false, "chart_type": null, "confidence": 0.9}

User Query: "%s"

JSON Output:`, query)
}

var (
	trendWords     = regexp.MustCompile(`\btrend\b|\bover\s+time\b|\bdaily\b|\bmonth\s+by\s+month\b`)
	breakdownWords = regexp.MustCompile(`\bbreakdown\b|\b(?:by|per)\s+(\w+)\b|\b(\w+)\s*wise\b`)
	explainWords   = regexp.MustCompile(`\bwhy\b|\bexplain\b|\binsights?\b`)
	summarizeWords = regexp.MustCompile(`\bsummar(?:y|ize|ise)\b|\boverview\b`)
	compareWords   = regexp.MustCompile(`\bcompare\b|\bversus\b|\bvs\b`)
	totalWords     = regexp.MustCompile(`\btotal\b|\bsum\b|\bhow\s+much\b`)
	chartWords     = regexp.MustCompile(`\bchart\b|\bgraph\b|\bplot\b|\bvisuali[sz]e\b`)
	uploadWords    = regexp.MustCompile(`\bupload(?:ed)?\b|\bfile\s+date\b`)
	isoDate        = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	dayMonthDate   = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
	rangeSplit     = regexp.MustCompile(`\b(?:from|between)\b(.*?)\b(?:to|and|till|until)\b(.*)`)
	metricWords    = regexp.MustCompile(`\b(cgst|sgst|igst|gst|tax|discount|net|gross|total)\b`)
)

type heuristicIntentService struct{}

// NewHeuristicIntentService builds the deterministic local fallback used
// when the LLM call fails or is not configured. Same output shape, rule
// based, always available.
func NewHeuristicIntentService() IntentExtractor {
	return &heuristicIntentService{}
}

func (s *heuristicIntentService) Extract(ctx context.Context, query string) (*dto.FilterSpec, error) {
	lower := strings.ToLower(query)
	spec := &dto.FilterSpec{
		Intent:         "other",
		DateFilterType: dto.DateFilterRowDate,
		Confidence:     0.3,
	}

	switch {
	case explainWords.MatchString(lower):
		spec.Intent = "explain"
	case summarizeWords.MatchString(lower):
		spec.Intent = "summarize"
	case trendWords.MatchString(lower):
		spec.Intent = "trend"
	case compareWords.MatchString(lower):
		spec.Intent = "compare"
	case breakdownWords.MatchString(lower):
		spec.Intent = "breakdown"
	case totalWords.MatchString(lower):
		spec.Intent = "single_value"
	}
	if spec.Intent != "other" {
		spec.Confidence += 0.2
	}

	if m := metricWords.FindString(lower); m != "" {
		spec.Metric = m
		spec.Confidence += 0.2
	}

	if m := breakdownWords.FindStringSubmatch(lower); m != nil {
		if m[1] != "" {
			spec.BreakdownBy = m[1]
		} else if m[2] != "" {
			spec.BreakdownBy = m[2]
		}
	}

	s.extractDates(lower, spec)
	if !spec.DateFilter.IsZero() {
		spec.Confidence += 0.2
	}

	if uploadWords.MatchString(lower) {
		spec.DateFilterType = dto.DateFilterUploadDate
	}

	if chartWords.MatchString(lower) {
		spec.NeedsChart = true
		if spec.Intent == "trend" {
			spec.ChartType = "line"
		} else {
			spec.ChartType = "bar"
		}
	}

	if spec.Confidence > 0.95 {
		spec.Confidence = 0.95
	}
	log.Debug().Str("query", query).Interface("spec", spec).Msg("Heuristic intent extraction complete")
	return spec, nil
}

func (s *heuristicIntentService) extractDates(lower string, spec *dto.FilterSpec) {
	if m := rangeSplit.FindStringSubmatch(lower); m != nil {
		from := parseDateToken(m[1])
		to := parseDateToken(m[2])
		if from != "" && to != "" {
			spec.DateFilter.From = from
			spec.DateFilter.To = to
			return
		}
	}
	isoDates := isoDate.FindAllString(lower, -1)
	if len(isoDates) >= 2 {
		spec.DateFilter.From = isoDates[0]
		spec.DateFilter.To = isoDates[1]
		return
	}
	if len(isoDates) == 1 {
		spec.DateFilter.Single = isoDates[0]
		return
	}
	if m := dayMonthDate.FindStringSubmatch(lower); m != nil {
		if d := parseDateToken(m[0]); d != "" {
			spec.DateFilter.Single = d
		}
	}
}

// parseDateToken scans a text fragment for something dateparse understands.
func parseDateToken(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if m := isoDate.FindString(fragment); m != "" {
		return m
	}
	if m := dayMonthDate.FindString(fragment); m != "" {
		if t, err := dateparse.ParseAny(m); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if t, err := dateparse.ParseAny(fragment); err == nil {
		return t.Format("2006-01-02")
	}
	return ""
}

type fallbackIntentService struct {
	primary  IntentExtractor
	fallback IntentExtractor
}

// NewIntentService chains the Gemini extractor with the local heuristic so
// intent extraction never blocks the pipeline on an external failure.
func NewIntentService(cfg *config.Config) IntentExtractor {
	return &fallbackIntentService{
		primary:  NewGeminiIntentService(cfg),
		fallback: NewHeuristicIntentService(),
	}
}

func (s *fallbackIntentService) Extract(ctx context.Context, query string) (*dto.FilterSpec, error) {
	spec, err := s.primary.Extract(ctx, query)
	if err == nil && spec != nil {
		return spec, nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("LLM intent extraction failed, using heuristic fallback")
	}
	return s.fallback.Extract(ctx, query)
}
