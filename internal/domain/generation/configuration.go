package generation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Configuration is a tenant-scoped description of what to generate and how.
type Configuration struct {
	ID                     uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID               uuid.UUID           `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Name                   string              `gorm:"column:name;not null" json:"name"`
	PromptTemplate         string              `gorm:"column:prompt_template;type:text;not null" json:"prompt_template"`
	ModelProvider          ModelProvider       `gorm:"column:model_provider;not null" json:"model_provider"`
	ModelName              string              `gorm:"column:model_name;not null" json:"model_name"`
	APIKey                 string              `gorm:"column:api_key" json:"-"`
	GenerationsPerInstance int                 `gorm:"column:generations_per_instance;not null;default:2" json:"generations_per_instance"`
	Rubric                 string              `gorm:"column:rubric;type:text" json:"rubric"`
	Status                 ConfigurationStatus `gorm:"column:status;not null;index" json:"status"`
	CreatedByUserID        *uuid.UUID          `gorm:"type:uuid;column:created_by_user_id" json:"created_by_user_id,omitempty"`

	Variables        []ConfigurationVariable `gorm:"foreignKey:ConfigurationID" json:"variables"`
	RejectionReasons []RejectionReason       `gorm:"foreignKey:ConfigurationID" json:"rejection_reasons"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Configuration) TableName() string { return "configuration" }

func (c *Configuration) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// HasCredential reports whether the configuration overrides the process-wide API key.
func (c *Configuration) HasCredential() bool { return c != nil && c.APIKey != "" }

// RequiredKeys returns the keys of required variables in position order.
func (c *Configuration) RequiredKeys() []string {
	var out []string
	for _, v := range c.Variables {
		if v.Required {
			out = append(out, v.Key)
		}
	}
	return out
}

type ConfigurationVariable struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConfigurationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_config_variable_key,priority:1" json:"configuration_id"`
	Key             string    `gorm:"column:key;not null;uniqueIndex:idx_config_variable_key,priority:2" json:"key"`
	Label           string    `gorm:"column:label" json:"label"`
	Required        bool      `gorm:"column:required;not null;default:false" json:"required"`
	Position        int       `gorm:"column:position;not null;default:0" json:"position"`
}

func (ConfigurationVariable) TableName() string { return "configuration_variable" }

func (v *ConfigurationVariable) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

type RejectionReason struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConfigurationID uuid.UUID `gorm:"type:uuid;not null;index" json:"configuration_id"`
	Label           string    `gorm:"column:label;not null" json:"label"`
	Position        int       `gorm:"column:position;not null;default:0" json:"position"`
}

func (RejectionReason) TableName() string { return "rejection_reason" }

func (r *RejectionReason) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
