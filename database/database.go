package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"sheetchat-backend/config"
	"sheetchat-backend/internal/model"
)

// NewDB opens the MySQL connection used for chat history and runs the
// migrations.
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to MySQL")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&model.ChatRecord{}); err != nil {
		log.Error().Err(err).Msg("Failed to run database migrations")
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info().Msg("Database connection established and migrations applied")
	return db, nil
}
