package generation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Completion is one generated candidate for a PromptInstance. Rows are never updated.
type Completion struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	PromptInstanceID uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_completion_instance_index,priority:1" json:"prompt_instance_id"`
	GenerationRunID  uuid.UUID     `gorm:"type:uuid;not null;index" json:"generation_run_id"`
	Index            int           `gorm:"column:generation_index;not null;uniqueIndex:idx_completion_instance_index,priority:2" json:"index"`
	Output           string        `gorm:"column:output;type:text;not null" json:"output"`
	ModelProvider    ModelProvider `gorm:"column:model_provider;not null" json:"model_provider"`
	ModelName        string        `gorm:"column:model_name;not null" json:"model_name"`
	Temperature      float64       `gorm:"column:temperature" json:"temperature"`
	TopP             float64       `gorm:"column:top_p" json:"top_p"`
	TokensUsed       *int          `gorm:"column:tokens_used" json:"tokens_used,omitempty"`
	CreatedAt        time.Time     `gorm:"not null" json:"created_at"`
}

func (Completion) TableName() string { return "completion" }

func (c *Completion) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
