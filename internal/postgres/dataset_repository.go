package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"sheetchat-backend/internal/model"
	"sheetchat-backend/internal/repository"
)

type pgDatasetRepository struct {
	pool *pgxpool.Pool
}

func NewDatasetRepository(pool *pgxpool.Pool) (repository.DatasetRepository, error) {
	if pool == nil {
		return nil, errors.New("postgres connection pool is required for DatasetRepository")
	}
	return &pgDatasetRepository{pool: pool}, nil
}

// GetActiveSchema returns the most recently uploaded dataset. Nil with no
// error when nothing has been uploaded yet.
func (r *pgDatasetRepository) GetActiveSchema(ctx context.Context) (*model.SchemaSnapshot, error) {
	sql := fmt.Sprintf(`
		SELECT dataset_id, upload_date::text, filename,
		       COALESCE(entity_tag, ''), column_names, row_count,
		       COALESCE(min_row_date::text, ''), COALESCE(max_row_date::text, '')
		FROM %s ORDER BY upload_date DESC, created_at DESC LIMIT 1`, datasetsTableName)

	var snap model.SchemaSnapshot
	var colsJSON []byte
	err := r.pool.QueryRow(ctx, sql).Scan(
		&snap.DatasetID, &snap.UploadDate, &snap.Filename,
		&snap.EntityTag, &colsJSON, &snap.RowCount,
		&snap.MinRowDate, &snap.MaxRowDate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read active schema")
		return nil, fmt.Errorf("active schema query failed: %w", err)
	}
	if err := json.Unmarshal(colsJSON, &snap.ColumnNames); err != nil {
		return nil, fmt.Errorf("failed to unmarshal column names: %w", err)
	}
	snap.ColumnCount = len(snap.ColumnNames)
	// Dates come back as full timestamps in some drivers; keep day part.
	snap.UploadDate = dayPart(snap.UploadDate)
	snap.MinRowDate = dayPart(snap.MinRowDate)
	snap.MaxRowDate = dayPart(snap.MaxRowDate)
	return &snap, nil
}

func (r *pgDatasetRepository) FindRows(ctx context.Context, q repository.RowQuery) ([]model.RowDocument, error) {
	whereClauses := []string{"1=1"}
	args := []interface{}{}
	argCounter := 1

	add := func(clause string, value interface{}) {
		whereClauses = append(whereClauses, fmt.Sprintf(clause, argCounter))
		args = append(args, value)
		argCounter++
	}

	if q.DatasetID != "" {
		add("dataset_id = $%d", q.DatasetID)
	}
	if q.EntityTag != "" {
		add("entity_tag = $%d", q.EntityTag)
	}
	if q.UploadDate != "" {
		add("upload_date = $%d::date", q.UploadDate)
	}
	if q.RowDateFrom != "" {
		add("row_date >= $%d::date", q.RowDateFrom)
	}
	if q.RowDateTo != "" {
		add("row_date <= $%d::date", q.RowDateTo)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 5000
	}
	sql := fmt.Sprintf(`
		SELECT dataset_id, upload_date::text, COALESCE(entity_tag, ''),
		       COALESCE(row_date::text, ''), fields
		FROM %s WHERE %s ORDER BY row_date ASC NULLS LAST, id ASC LIMIT $%d`,
		rowsTableName, strings.Join(whereClauses, " AND "), argCounter)
	args = append(args, limit)

	log.Debug().Str("query", sql).Interface("args", args).Msg("Executing row fetch")

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to execute row fetch")
		return nil, fmt.Errorf("row query failed: %w", err)
	}
	defer rows.Close()

	out := make([]model.RowDocument, 0)
	for rows.Next() {
		var doc model.RowDocument
		var fieldsJSON []byte
		if err := rows.Scan(&doc.DatasetID, &doc.UploadDate, &doc.EntityTag, &doc.RowDate, &fieldsJSON); err != nil {
			log.Error().Err(err).Msg("Failed to scan row document")
			continue
		}
		if err := json.Unmarshal(fieldsJSON, &doc.Fields); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal row fields")
			continue
		}
		doc.UploadDate = dayPart(doc.UploadDate)
		doc.RowDate = dayPart(doc.RowDate)
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating row results: %w", err)
	}
	return out, nil
}

func (r *pgDatasetRepository) NearbyDates(ctx context.Context, datasetID, entityTag string, limit int) ([]string, error) {
	whereClauses := []string{"row_date IS NOT NULL"}
	args := []interface{}{}
	argCounter := 1
	if datasetID != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("dataset_id = $%d", argCounter))
		args = append(args, datasetID)
		argCounter++
	}
	if entityTag != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("entity_tag = $%d", argCounter))
		args = append(args, entityTag)
		argCounter++
	}
	if limit <= 0 {
		limit = 10
	}
	sql := fmt.Sprintf(`
		SELECT DISTINCT row_date::text FROM %s
		WHERE %s ORDER BY row_date::text ASC LIMIT $%d`,
		rowsTableName, strings.Join(whereClauses, " AND "), argCounter)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query nearby dates")
		return nil, fmt.Errorf("nearby dates query failed: %w", err)
	}
	defer rows.Close()

	dates := make([]string, 0, limit)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			continue
		}
		dates = append(dates, dayPart(d))
	}
	return dates, rows.Err()
}

func (r *pgDatasetRepository) DistinctEntityTags(ctx context.Context) ([]string, error) {
	sql := fmt.Sprintf(`SELECT DISTINCT entity_tag FROM %s WHERE entity_tag IS NOT NULL ORDER BY entity_tag`, datasetsTableName)
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query distinct entity tags")
		return nil, fmt.Errorf("entity tag query failed: %w", err)
	}
	defer rows.Close()

	tags := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			continue
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func dayPart(s string) string {
	if len(s) >= 10 {
		if _, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return s[:10]
		}
	}
	return s
}
