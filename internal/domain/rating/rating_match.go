package rating

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RatingMatch is one pairwise comparison between two completions of the same instance.
// LockedBy/LockedAt form a time-boxed optimistic lock; expiry is the only release a
// vanished rater ever performs.
type RatingMatch struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID           uuid.UUID  `gorm:"type:uuid;not null;index:idx_rating_match_pool,priority:1" json:"tenant_id"`
	ConfigurationID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"configuration_id"`
	PromptInstanceID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_rating_match_slot,priority:1" json:"prompt_instance_id"`
	Round              int        `gorm:"column:round;not null;uniqueIndex:idx_rating_match_slot,priority:2" json:"round"`
	Slot               int        `gorm:"column:slot;not null;default:0;uniqueIndex:idx_rating_match_slot,priority:3" json:"slot"`
	OptionAID          uuid.UUID  `gorm:"type:uuid;column:option_a_id;not null" json:"option_a_id"`
	OptionBID          uuid.UUID  `gorm:"type:uuid;column:option_b_id;not null" json:"option_b_id"`
	IsComplete         bool       `gorm:"column:is_complete;not null;default:false;index:idx_rating_match_pool,priority:2" json:"is_complete"`
	Outcome            *Outcome   `gorm:"column:outcome" json:"outcome,omitempty"`
	WinnerCompletionID *uuid.UUID `gorm:"type:uuid;column:winner_completion_id" json:"winner_completion_id,omitempty"`
	LockedBy           *uuid.UUID `gorm:"type:uuid;column:locked_by;index" json:"locked_by,omitempty"`
	LockedAt           *time.Time `gorm:"column:locked_at" json:"locked_at,omitempty"`
	CompletedAt        *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt          time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"not null" json:"updated_at"`
}

func (RatingMatch) TableName() string { return "rating_match" }

func (m *RatingMatch) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// LockState classifies a match's lock relative to a caller.
type LockState int

const (
	LockFree LockState = iota
	LockExpired
	LockOwned
	LockHeldByOther
)

// LockStateFor classifies the lock as seen by userID at now, with locks older than
// timeout treated as expired.
func (m *RatingMatch) LockStateFor(userID uuid.UUID, now time.Time, timeout time.Duration) LockState {
	if m.LockedBy == nil {
		return LockFree
	}
	if m.LockedAt == nil || !m.LockedAt.After(now.Add(-timeout)) {
		return LockExpired
	}
	if *m.LockedBy == userID {
		return LockOwned
	}
	return LockHeldByOther
}

// LockExpiresAt returns the absolute expiry of the current lock, or the zero time if unlocked.
func (m *RatingMatch) LockExpiresAt(timeout time.Duration) time.Time {
	if m == nil || m.LockedAt == nil {
		return time.Time{}
	}
	return m.LockedAt.Add(timeout)
}

// WinnerFor resolves the winning completion for an outcome; ties have none.
func (m *RatingMatch) WinnerFor(o Outcome) *uuid.UUID {
	switch o {
	case OutcomeABetter:
		id := m.OptionAID
		return &id
	case OutcomeBBetter:
		id := m.OptionBID
		return &id
	}
	return nil
}
