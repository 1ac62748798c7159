package rating

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FinalWinner records the completion that won an instance's bracket. One per instance.
type FinalWinner struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PromptInstanceID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"prompt_instance_id"`
	ConfigurationID  uuid.UUID `gorm:"type:uuid;not null;index" json:"configuration_id"`
	CompletionID     uuid.UUID `gorm:"type:uuid;not null" json:"completion_id"`
	CompletionIndex  int       `gorm:"column:completion_index;not null" json:"completion_index"`
	DeterminedAt     time.Time `gorm:"column:determined_at;not null" json:"determined_at"`
}

func (FinalWinner) TableName() string { return "final_winner" }

func (w *FinalWinner) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
