package generation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PromptInstance is one row of variable data for a Configuration.
type PromptInstance struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConfigurationID uuid.UUID      `gorm:"type:uuid;not null;index:idx_prompt_instance_config_status,priority:1" json:"configuration_id"`
	Data            datatypes.JSON `gorm:"column:data" json:"data"`
	Status          InstanceStatus `gorm:"column:status;not null;index:idx_prompt_instance_config_status,priority:2" json:"status"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (PromptInstance) TableName() string { return "prompt_instance" }

func (p *PromptInstance) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Values decodes Data into a key/value map. Non-string JSON values are
// rendered with their JSON text.
func (p *PromptInstance) Values() (map[string]string, error) {
	out := map[string]string{}
	if p == nil || len(p.Data) == 0 {
		return out, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(p.Data, &raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out, nil
}

// EncodeValues is the inverse of Values for plain string maps.
func EncodeValues(values map[string]string) datatypes.JSON {
	if values == nil {
		values = map[string]string{}
	}
	b, _ := json.Marshal(values)
	return datatypes.JSON(b)
}
