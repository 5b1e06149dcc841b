package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	kafkaGo "github.com/segmentio/kafka-go"

	"sheetchat-backend/config"
	"sheetchat-backend/internal/elasticsearch"
	"sheetchat-backend/internal/kafka"
	"sheetchat-backend/internal/model"
	"sheetchat-backend/internal/postgres"
)

// RowConsumerService drains the row topic in batches and persists each batch
// to Postgres and Elasticsearch before committing offsets.
type RowConsumerService interface {
	Run(ctx context.Context, wg *sync.WaitGroup)
}

type rowConsumerService struct {
	consumer    kafka.RowConsumer
	rowStore    postgres.RowStore
	searchStore elasticsearch.RowStore
	batchSize   int
	maxWaitTime time.Duration
}

func NewRowConsumerService(
	consumer kafka.RowConsumer,
	rowStore postgres.RowStore,
	searchStore elasticsearch.RowStore,
	cfg *config.Config,
) RowConsumerService {
	return &rowConsumerService{
		consumer:    consumer,
		rowStore:    rowStore,
		searchStore: searchStore,
		batchSize:   cfg.Ingest.BatchSize,
		maxWaitTime: cfg.Ingest.MaxBatchWait,
	}
}

func (s *rowConsumerService) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	log.Info().Msg("Starting Row Consumer Service loop...")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Row Consumer Service loop stopping due to context cancellation.")
			return
		default:
		}

		if err := s.processBatch(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info().Msg("Context cancelled during batch processing.")
				return
			}
			log.Error().Err(err).Msg("Error processing consumer batch")
			time.Sleep(1 * time.Second)
		}
	}
}

func (s *rowConsumerService) processBatch(ctx context.Context) error {
	rows := make([]model.RowDocument, 0, s.batchSize)
	originalMessages := make([]kafkaGo.Message, 0, s.batchSize)
	batchStartTime := time.Now()

	for len(rows) < s.batchSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		remaining := s.maxWaitTime - time.Since(batchStartTime)
		if remaining <= 0 {
			break
		}
		fetchCtx, cancel := context.WithTimeout(ctx, remaining)
		row, originalMsg, err := s.consumer.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				log.Debug().Int("batch_size", len(rows)).Msg("Max wait time reached for batch, processing partial batch.")
				break
			}
			// An unmarshal failure still returns the message; track it so
			// the offset gets committed and the poison message skipped.
			if originalMsg.Topic != "" {
				originalMessages = append(originalMessages, originalMsg)
				log.Warn().Int64("offset", originalMsg.Offset).Msg("Tracking message with unmarshal error for commit.")
				continue
			}
			return fmt.Errorf("failed to fetch kafka message: %w", err)
		}

		rows = append(rows, *row)
		originalMessages = append(originalMessages, originalMsg)
	}

	if len(originalMessages) == 0 {
		return nil
	}

	if len(rows) > 0 {
		if err := s.rowStore.InsertRows(ctx, rows); err != nil {
			log.Error().Err(err).Msg("Failed to store rows in Postgres, not committing")
			return fmt.Errorf("failed storing rows: %w", err)
		}
		if err := s.searchStore.StoreRows(ctx, rows); err != nil {
			// Postgres already has the rows; losing search mirroring is
			// tolerable, the explanation channel just sees fewer snippets.
			log.Warn().Err(err).Msg("Failed to mirror rows into Elasticsearch")
		}
	}

	if err := s.consumer.CommitMessages(ctx, originalMessages...); err != nil {
		log.Error().Err(err).Msg("Failed to commit Kafka messages after successful storage")
		return fmt.Errorf("failed committing kafka messages: %w", err)
	}
	log.Info().Int("batch_size", len(rows)).Msg("Successfully processed and committed batch.")
	return nil
}
