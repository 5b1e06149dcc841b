package service

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"sheetchat-backend/internal/dto"
	"sheetchat-backend/internal/model"
)

// HistoryService records every answered query for later review. Failures
// are logged and swallowed; history must never break an answer.
type HistoryService interface {
	Record(ctx context.Context, question string, result *dto.QueryResult, entityTag string) error
	Recent(ctx context.Context, limit int) ([]model.ChatRecord, error)
}

type historyService struct {
	db *gorm.DB
}

func NewHistoryService(db *gorm.DB) HistoryService {
	return &historyService{db: db}
}

func (s *historyService) Record(ctx context.Context, question string, result *dto.QueryResult, entityTag string) error {
	record := model.ChatRecord{
		Question:        question,
		NormalizedQuery: result.Audit.NormalizedQuery,
		Answer:          result.Answer,
		QueryType:       result.QueryType,
		IsClarification: result.IsClarification,
		EntityTag:       entityTag,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		log.Error().Err(err).Msg("Failed to record chat history")
		return err
	}
	return nil
}

func (s *historyService) Recent(ctx context.Context, limit int) ([]model.ChatRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []model.ChatRecord
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		log.Error().Err(err).Msg("Failed to load chat history")
		return nil, err
	}
	return records, nil
}
