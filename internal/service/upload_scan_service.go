package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"sheetchat-backend/config"
	"sheetchat-backend/internal/filestate"
	"sheetchat-backend/internal/ingest"
	"sheetchat-backend/internal/kafka"
	"sheetchat-backend/internal/postgres"
)

// UploadScanService scans the upload directory for new CSV files, records
// their dataset metadata and publishes their rows to Kafka for the consumer
// side to persist.
type UploadScanService interface {
	ProcessUploads(ctx context.Context) error
}

type uploadScanService struct {
	cfg         *config.IngestConfig
	stateMgr    filestate.Manager
	parser      ingest.CSVParser
	producer    kafka.RowProducer
	rowStore    postgres.RowStore
	processLock sync.Mutex
}

func NewUploadScanService(
	cfg *config.Config,
	stateMgr filestate.Manager,
	parser ingest.CSVParser,
	producer kafka.RowProducer,
	rowStore postgres.RowStore,
) UploadScanService {
	return &uploadScanService{
		cfg:      &cfg.Ingest,
		stateMgr: stateMgr,
		parser:   parser,
		producer: producer,
		rowStore: rowStore,
	}
}

func (s *uploadScanService) ProcessUploads(ctx context.Context) error {
	if !s.processLock.TryLock() {
		log.Warn().Msg("Upload processing already in progress, skipping run.")
		return nil
	}
	defer s.processLock.Unlock()

	log.Info().Msg("Starting upload processing cycle...")
	startTime := time.Now()

	currentState, err := s.stateMgr.LoadState()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load ingest state")
		return fmt.Errorf("failed to load ingest state: %w", err)
	}

	newState := make(filestate.IngestState, len(currentState))
	for k, v := range currentState {
		newState[k] = v
	}

	files, err := s.findUploads()
	if err != nil {
		log.Error().Err(err).Msg("Failed to scan upload directory")
		return fmt.Errorf("failed to scan upload directory: %w", err)
	}
	log.Debug().Int("file_count", len(files)).Msg("Found upload files")

	var filesIngested, rowsPublished int
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Failed to stat upload file")
			continue
		}
		if size, done := currentState[path]; done && size == info.Size() {
			continue
		}

		snapshot, rows, err := s.parser.ParseFile(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to parse upload")
			continue
		}

		if err := s.rowStore.CreateDataset(ctx, *snapshot); err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to store dataset record, will retry next cycle")
			continue
		}

		// Publish in batches; the consumer side persists the rows.
		batchSize := s.cfg.BatchSize
		if batchSize <= 0 {
			batchSize = 200
		}
		published := true
		for start := 0; start < len(rows); start += batchSize {
			end := start + batchSize
			if end > len(rows) {
				end = len(rows)
			}
			if err := s.producer.Produce(ctx, rows[start:end]); err != nil {
				log.Error().Err(err).Str("file", path).Msg("Failed to publish row batch to Kafka")
				published = false
				break
			}
		}
		if !published {
			continue
		}

		newState[path] = info.Size()
		filesIngested++
		rowsPublished += len(rows)
	}

	if err := s.stateMgr.SaveState(newState); err != nil {
		log.Error().Err(err).Msg("Failed to save ingest state")
		return fmt.Errorf("failed to save ingest state: %w", err)
	}

	log.Info().
		Int("files_ingested", filesIngested).
		Int("rows_published", rowsPublished).
		Dur("duration", time.Since(startTime)).
		Msg("Finished upload processing cycle.")
	return nil
}

func (s *uploadScanService) findUploads() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.UploadDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			files = append(files, filepath.Join(s.cfg.UploadDirectory, e.Name()))
		}
	}
	return files, nil
}
