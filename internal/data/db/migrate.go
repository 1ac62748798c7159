package db

import (
	"fmt"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// EnsureRatingIndexes adds Postgres-only partial indexes used by the rating pool query.
func EnsureRatingIndexes(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_rating_match_open
		ON rating_match (tenant_id, created_at)
		WHERE is_complete = false;
	`).Error; err != nil {
		return fmt.Errorf("create idx_rating_match_open: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_prompt_instance_runnable
		ON prompt_instance (configuration_id, created_at)
		WHERE status IN ('PENDING', 'GENERATING');
	`).Error; err != nil {
		return fmt.Errorf("create idx_prompt_instance_runnable: %w", err)
	}
	return nil
}
