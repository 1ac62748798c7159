package rating

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RatingResponse is one rater's submitted judgment; unique per (match, user).
type RatingResponse struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RatingMatchID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_rating_response_match_user,priority:1" json:"rating_match_id"`
	UserID             uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_rating_response_match_user,priority:2;index" json:"user_id"`
	Outcome            Outcome        `gorm:"column:outcome;not null" json:"outcome"`
	RejectionReasonIDs datatypes.JSON `gorm:"column:rejection_reason_ids" json:"rejection_reason_ids"`
	Notes              string         `gorm:"column:notes;type:text" json:"notes,omitempty"`
	CreatedAt          time.Time      `gorm:"not null" json:"created_at"`
}

func (RatingResponse) TableName() string { return "rating_response" }

func (r *RatingResponse) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func EncodeReasonIDs(ids []uuid.UUID) datatypes.JSON {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	b, _ := json.Marshal(ids)
	return datatypes.JSON(b)
}

func (r *RatingResponse) ReasonIDs() []uuid.UUID {
	var out []uuid.UUID
	if r == nil || len(r.RejectionReasonIDs) == 0 {
		return out
	}
	_ = json.Unmarshal(r.RejectionReasonIDs, &out)
	return out
}
