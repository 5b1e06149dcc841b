package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"

	"sheetchat-backend/config"
	"sheetchat-backend/internal/model"
)

type RowProducer interface {
	Produce(ctx context.Context, rows []model.RowDocument) error
	Close() error
}

type kafkaRowProducer struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaRowProducer(lc fx.Lifecycle, cfg *config.Config) (RowProducer, error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.RowTopic == "" {
		log.Error().Msg("Kafka brokers or row topic is not configured.")
		return nil, errors.New("kafka configuration missing")
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.RowTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    cfg.Ingest.BatchSize,
		BatchTimeout: cfg.Ingest.MaxBatchWait,
		Async:        true,
	})
	p := &kafkaRowProducer{
		writer: writer,
		topic:  cfg.Kafka.RowTopic,
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Closing Kafka producer")
			return p.Close()
		},
	})
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.RowTopic).Msg("Kafka producer initialized")
	return p, nil
}

func (p *kafkaRowProducer) Produce(ctx context.Context, rows []model.RowDocument) error {
	if len(rows) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(rows))
	for _, row := range rows {
		value, err := json.Marshal(row)
		if err != nil {
			log.Error().Err(err).Str("dataset", row.DatasetID).Msg("Failed to marshal row document for Kafka")
			continue
		}
		// Keyed by dataset so one upload's rows stay in partition order.
		messages = append(messages, kafka.Message{
			Key:   []byte(row.DatasetID),
			Value: value,
		})
	}
	if len(messages) == 0 {
		log.Warn().Msg("No valid messages to produce.")
		return nil
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		log.Error().Err(err).Int("message_count", len(messages)).Msg("Failed to write messages to Kafka")
		return err
	}

	log.Debug().Int("message_count", len(messages)).Str("topic", p.topic).Msg("Successfully produced messages to Kafka")
	return nil
}

func (p *kafkaRowProducer) Close() error {
	return p.writer.Close()
}
