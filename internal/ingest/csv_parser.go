// Package ingest parses uploaded CSV files into normalized row documents:
// column names are canonicalized, date values reduced to YYYY-MM-DD and
// amount strings coerced to numbers where possible.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"sheetchat-backend/internal/model"
)

type CSVParser interface {
	ParseFile(path string) (*model.SchemaSnapshot, []model.RowDocument, error)
}

type csvParser struct{}

func NewCSVParser() CSVParser {
	return &csvParser{}
}

// ParseFile reads one CSV upload and produces the dataset snapshot plus its
// row documents. The first row is the header; ragged rows are skipped.
func (p *csvParser) ParseFile(path string) (*model.SchemaSnapshot, []model.RowDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open upload %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	columns := normalizeColumns(header)
	dateCol := detectDateColumn(columns)

	snapshot := &model.SchemaSnapshot{
		DatasetID:   uuid.NewString(),
		UploadDate:  time.Now().UTC().Format("2006-01-02"),
		Filename:    filepath.Base(path),
		EntityTag:   entityTagFromFilename(path),
		ColumnNames: columns,
		ColumnCount: len(columns),
	}

	rows := make([]model.RowDocument, 0, 256)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping malformed CSV record")
			continue
		}
		if len(record) != len(columns) {
			log.Debug().Int("fields", len(record)).Int("columns", len(columns)).
				Msg("Skipping ragged CSV record")
			continue
		}

		fields := make(map[string]interface{}, len(columns))
		rowDate := ""
		for i, col := range columns {
			raw := strings.TrimSpace(record[i])
			if raw == "" {
				continue
			}
			if col == dateCol {
				if d, ok := normalizeDate(raw); ok {
					rowDate = d
					fields[col] = d
					continue
				}
			}
			fields[col] = coerceValue(raw)
		}
		if len(fields) == 0 {
			continue
		}

		rows = append(rows, model.RowDocument{
			DatasetID:  snapshot.DatasetID,
			UploadDate: snapshot.UploadDate,
			EntityTag:  snapshot.EntityTag,
			RowDate:    rowDate,
			Fields:     fields,
		})
		if rowDate != "" {
			if snapshot.MinRowDate == "" || rowDate < snapshot.MinRowDate {
				snapshot.MinRowDate = rowDate
			}
			if snapshot.MaxRowDate == "" || rowDate > snapshot.MaxRowDate {
				snapshot.MaxRowDate = rowDate
			}
		}
	}
	snapshot.RowCount = int64(len(rows))

	log.Info().
		Str("file", snapshot.Filename).
		Str("dataset", snapshot.DatasetID).
		Int64("rows", snapshot.RowCount).
		Strs("columns", columns).
		Msg("Parsed CSV upload")
	return snapshot, rows, nil
}

// normalizeColumns canonicalizes header names (lowercase, underscores) and
// deduplicates repeats with _1, _2 suffixes.
func normalizeColumns(header []string) []string {
	seen := map[string]int{}
	out := make([]string, len(header))
	for i, h := range header {
		name := normalizeColumnName(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n)
		} else {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}

func normalizeColumnName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastUnderscore := true
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// detectDateColumn picks the column whose name is date-like; the first such
// column wins.
func detectDateColumn(columns []string) string {
	for _, c := range columns {
		if strings.Contains(c, "date") || c == "day" || c == "dt" {
			return c
		}
	}
	return ""
}

// normalizeDate parses any common date spelling down to YYYY-MM-DD.
func normalizeDate(raw string) (string, bool) {
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// coerceValue turns numeric-looking strings (including comma-separated
// thousands) into float64 and leaves everything else as text.
func coerceValue(raw string) interface{} {
	cleaned := strings.ReplaceAll(raw, ",", "")
	if cleaned == "" {
		return raw
	}
	if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return f
	}
	return raw
}

// entityTagFromFilename extracts the client tag encoded ahead of a double
// underscore in the upload name, e.g. "acme_corp__sales_feb.csv".
func entityTagFromFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if idx := strings.Index(base, "__"); idx > 0 {
		return strings.ReplaceAll(base[:idx], "_", " ")
	}
	return ""
}
