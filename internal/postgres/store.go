package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"sheetchat-backend/config"
	"sheetchat-backend/internal/model"
	"sheetchat-backend/internal/repository"
)

const (
	datasetsTableName = "datasets"
	rowsTableName     = "dataset_rows"
)

// RowStore is the write side of the Postgres store, used by ingestion.
type RowStore interface {
	repository.DatasetWriter
	Close()
}

type pgRowStore struct {
	pool *pgxpool.Pool
}

// ProvidePostgresPool connects to Postgres, verifies the connection, ensures
// the tables exist and hooks pool shutdown into the fx lifecycle.
func ProvidePostgresPool(lc fx.Lifecycle, cfg *config.Config) (RowStore, *pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.RowStore.DSN)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse Postgres DSN")
		return nil, nil, fmt.Errorf("invalid Postgres DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Error().Err(err).Msg("Unable to create connection pool to Postgres")
		return nil, nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		log.Error().Err(err).Msg("Failed to ping Postgres")
		return nil, nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}
	log.Info().Msg("Postgres connection pool created and verified.")

	store := &pgRowStore{pool: pool}

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelSetup()
	if err := store.ensureTables(setupCtx); err != nil {
		pool.Close()
		log.Error().Err(err).Msg("Failed to ensure Postgres tables exist")
		return nil, nil, fmt.Errorf("failed ensuring tables: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Closing Postgres connection pool...")
			store.Close()
			return nil
		},
	})

	return store, pool, nil
}

func (s *pgRowStore) ensureTables(ctx context.Context) error {
	createDatasets := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			dataset_id TEXT PRIMARY KEY,
			upload_date DATE NOT NULL,
			filename TEXT NOT NULL,
			entity_tag TEXT,
			column_names JSONB NOT NULL,
			row_count BIGINT NOT NULL DEFAULT 0,
			min_row_date DATE,
			max_row_date DATE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, datasetsTableName)
	if _, err := s.pool.Exec(ctx, createDatasets); err != nil {
		return fmt.Errorf("failed to create table %s: %w", datasetsTableName, err)
	}

	createRows := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			dataset_id TEXT NOT NULL REFERENCES %s(dataset_id),
			upload_date DATE NOT NULL,
			entity_tag TEXT,
			row_date DATE,
			fields JSONB NOT NULL
		);`, rowsTableName, datasetsTableName)
	if _, err := s.pool.Exec(ctx, createRows); err != nil {
		return fmt.Errorf("failed to create table %s: %w", rowsTableName, err)
	}

	indexSQL := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_dataset_date ON %s (dataset_id, row_date);
		CREATE INDEX IF NOT EXISTS idx_%s_upload ON %s (upload_date);
		CREATE INDEX IF NOT EXISTS idx_%s_fields ON %s USING GIN (fields);
	`, rowsTableName, rowsTableName, rowsTableName, rowsTableName, rowsTableName, rowsTableName)
	if _, err := s.pool.Exec(ctx, indexSQL); err != nil {
		log.Warn().Err(err).Msg("Failed to create indexes on row table (continuing)")
	}

	log.Info().Msg("Ensured Postgres tables exist.")
	return nil
}

func (s *pgRowStore) CreateDataset(ctx context.Context, schema model.SchemaSnapshot) error {
	cols, err := json.Marshal(schema.ColumnNames)
	if err != nil {
		return fmt.Errorf("failed to marshal column names: %w", err)
	}
	sql := fmt.Sprintf(`
		INSERT INTO %s (dataset_id, upload_date, filename, entity_tag, column_names, row_count, min_row_date, max_row_date)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, '')::date, NULLIF($8, '')::date)
		ON CONFLICT (dataset_id) DO UPDATE SET
			row_count = EXCLUDED.row_count,
			min_row_date = EXCLUDED.min_row_date,
			max_row_date = EXCLUDED.max_row_date;`, datasetsTableName)
	_, err = s.pool.Exec(ctx, sql,
		schema.DatasetID, schema.UploadDate, schema.Filename, schema.EntityTag,
		cols, schema.RowCount, schema.MinRowDate, schema.MaxRowDate)
	if err != nil {
		log.Error().Err(err).Str("dataset", schema.DatasetID).Msg("Failed to insert dataset record")
		return fmt.Errorf("dataset insert failed: %w", err)
	}
	log.Info().Str("dataset", schema.DatasetID).Int64("rows", schema.RowCount).Msg("Dataset record stored")
	return nil
}

// InsertRows bulk-inserts row documents with CopyFrom.
func (s *pgRowStore) InsertRows(ctx context.Context, rows []model.RowDocument) error {
	if len(rows) == 0 {
		return nil
	}

	columns := []string{"dataset_id", "upload_date", "entity_tag", "row_date", "fields"}
	source := pgx.CopyFromSlice(len(rows), func(i int) ([]interface{}, error) {
		r := rows[i]
		fieldsJSON, err := json.Marshal(r.Fields)
		if err != nil {
			log.Error().Err(err).Str("dataset", r.DatasetID).Msg("Failed to marshal row fields to JSON, inserting empty object")
			fieldsJSON = []byte("{}")
		}
		var entity, rowDate interface{}
		if r.EntityTag != "" {
			entity = r.EntityTag
		}
		if r.RowDate != "" {
			rowDate = r.RowDate
		}
		return []interface{}{r.DatasetID, r.UploadDate, entity, rowDate, fieldsJSON}, nil
	})

	copyCount, err := s.pool.CopyFrom(ctx, pgx.Identifier{rowsTableName}, columns, source)
	if err != nil {
		log.Error().Err(err).Msg("Failed to bulk insert rows into Postgres")
		return fmt.Errorf("postgres copyfrom failed: %w", err)
	}
	if int(copyCount) != len(rows) {
		log.Warn().Int64("inserted", copyCount).Int("expected", len(rows)).Msg("Postgres CopyFrom row count mismatch")
	} else {
		log.Debug().Int64("count", copyCount).Msg("Successfully inserted rows into Postgres")
	}
	return nil
}

func (s *pgRowStore) Close() {
	s.pool.Close()
}
