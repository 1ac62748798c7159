package generation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GenerationRun is one execution of a Configuration, polled and advanced by the worker.
type GenerationRun struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ConfigurationID uuid.UUID     `gorm:"type:uuid;not null;index" json:"configuration_id"`
	TenantID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ModelProvider   ModelProvider `gorm:"column:model_provider;not null" json:"model_provider"`
	ModelName       string        `gorm:"column:model_name;not null" json:"model_name"`
	TotalInstances  int           `gorm:"column:total_instances;not null;default:0" json:"total_instances"`
	ProcessedCount  int           `gorm:"column:processed_count;not null;default:0" json:"processed_count"`
	ErrorCount      int           `gorm:"column:error_count;not null;default:0" json:"error_count"`
	Status          RunStatus     `gorm:"column:status;not null;index" json:"status"`
	LastError       string        `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	StartedAt       *time.Time    `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time    `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time     `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`
}

func (GenerationRun) TableName() string { return "generation_run" }

func (r *GenerationRun) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *GenerationRun) Active() bool {
	return r != nil && (r.Status == RunQueued || r.Status == RunRunning)
}
