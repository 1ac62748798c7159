package rating

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/dbctx"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

// Lock predicates. cutoff is now minus the lock timeout; a lock at or before it is expired.
const (
	lockFreeOrExpired      = "(locked_by IS NULL OR locked_at IS NULL OR locked_at <= ?)"
	lockFreeOwnedOrExpired = "(locked_by IS NULL OR locked_by = ? OR locked_at IS NULL OR locked_at <= ?)"
	notRatedBy             = "NOT EXISTS (SELECT 1 FROM rating_response rr WHERE rr.rating_match_id = rating_match.id AND rr.user_id = ?)"
)

type RatingMatchRepo interface {
	CreateIgnoreConflicts(dbc dbctx.Context, matches []*types.RatingMatch) (int64, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RatingMatch, error)
	ExistsForInstance(dbc dbctx.Context, instanceID uuid.UUID) (bool, error)
	ListByInstance(dbc dbctx.Context, instanceID uuid.UUID) ([]*types.RatingMatch, error)

	FindHeldBy(dbc dbctx.Context, tenantID, userID uuid.UUID, cutoff time.Time) (*types.RatingMatch, error)
	RefreshLock(dbc dbctx.Context, id, userID uuid.UUID, now, cutoff time.Time) (bool, error)
	ClearExpiredLocks(dbc dbctx.Context, userID uuid.UUID, cutoff time.Time) (int64, error)
	SampleAvailable(dbc dbctx.Context, tenantID, userID uuid.UUID, cutoff time.Time, limit int) ([]*types.RatingMatch, error)
	TryLock(dbc dbctx.Context, id, userID uuid.UUID, now, cutoff time.Time) (bool, error)
	TryRelock(dbc dbctx.Context, id, userID uuid.UUID, now, cutoff time.Time) (bool, error)
	ReleaseLock(dbc dbctx.Context, id, userID uuid.UUID) (bool, error)
	Complete(dbc dbctx.Context, id uuid.UUID, outcome types.Outcome, winner *uuid.UUID, now time.Time) (bool, error)

	CountByConfiguration(dbc dbctx.Context, configID uuid.UUID) (total int64, complete int64, err error)
}

type ratingMatchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRatingMatchRepo(db *gorm.DB, baseLog *logger.Logger) RatingMatchRepo {
	return &ratingMatchRepo{
		db:  db,
		log: baseLog.With("repo", "RatingMatchRepo"),
	}
}

// CreateIgnoreConflicts inserts matches, skipping any (instance, round, slot) that
// already exists. It returns the number of rows written.
func (r *ratingMatchRepo) CreateIgnoreConflicts(dbc dbctx.Context, matches []*types.RatingMatch) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(matches) == 0 {
		return 0, nil
	}
	var written int64
	for _, m := range matches {
		res := transaction.WithContext(dbc.Ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(m)
		if res.Error != nil {
			return written, res.Error
		}
		written += res.RowsAffected
	}
	return written, nil
}

func (r *ratingMatchRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RatingMatch, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var m types.RatingMatch
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *ratingMatchRepo) ExistsForInstance(dbc dbctx.Context, instanceID uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.RatingMatch{}).
		Where("prompt_instance_id = ?", instanceID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ratingMatchRepo) ListByInstance(dbc dbctx.Context, instanceID uuid.UUID) ([]*types.RatingMatch, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.RatingMatch
	if err := transaction.WithContext(dbc.Ctx).
		Where("prompt_instance_id = ?", instanceID).
		Order("round ASC, slot ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// FindHeldBy returns an incomplete match in the tenant that userID holds a live lock on
// and has not yet rated.
func (r *ratingMatchRepo) FindHeldBy(dbc dbctx.Context, tenantID, userID uuid.UUID, cutoff time.Time) (*types.RatingMatch, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var m types.RatingMatch
	err := transaction.WithContext(dbc.Ctx).
		Where("tenant_id = ? AND is_complete = ? AND locked_by = ? AND locked_at > ?", tenantID, false, userID, cutoff).
		Where(notRatedBy, userID).
		Order("locked_at DESC").
		Limit(1).
		Find(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return &m, nil
}

func (r *ratingMatchRepo) RefreshLock(dbc dbctx.Context, id, userID uuid.UUID, now, cutoff time.Time) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.RatingMatch{}).
		Where("id = ? AND is_complete = ? AND locked_by = ? AND locked_at > ?", id, false, userID, cutoff).
		Updates(map[string]interface{}{"locked_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ratingMatchRepo) ClearExpiredLocks(dbc dbctx.Context, userID uuid.UUID, cutoff time.Time) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.RatingMatch{}).
		Where("locked_by = ? AND (locked_at IS NULL OR locked_at <= ?)", userID, cutoff).
		Updates(map[string]interface{}{"locked_by": nil, "locked_at": nil})
	return res.RowsAffected, res.Error
}

// SampleAvailable returns up to limit open matches in the tenant that userID may lock.
func (r *ratingMatchRepo) SampleAvailable(dbc dbctx.Context, tenantID, userID uuid.UUID, cutoff time.Time, limit int) ([]*types.RatingMatch, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.RatingMatch
	if limit <= 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("tenant_id = ? AND is_complete = ?", tenantID, false).
		Where(notRatedBy, userID).
		Where(lockFreeOrExpired, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// TryLock claims the match for userID if it is still open and unlocked or expired.
func (r *ratingMatchRepo) TryLock(dbc dbctx.Context, id, userID uuid.UUID, now, cutoff time.Time) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.RatingMatch{}).
		Where("id = ? AND is_complete = ?", id, false).
		Where(lockFreeOrExpired, cutoff).
		Updates(map[string]interface{}{"locked_by": userID, "locked_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// TryRelock is TryLock that also succeeds when userID already holds the lock.
func (r *ratingMatchRepo) TryRelock(dbc dbctx.Context, id, userID uuid.UUID, now, cutoff time.Time) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.RatingMatch{}).
		Where("id = ? AND is_complete = ?", id, false).
		Where(lockFreeOwnedOrExpired, userID, cutoff).
		Updates(map[string]interface{}{"locked_by": userID, "locked_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ratingMatchRepo) ReleaseLock(dbc dbctx.Context, id, userID uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.RatingMatch{}).
		Where("id = ? AND locked_by = ?", id, userID).
		Updates(map[string]interface{}{"locked_by": nil, "locked_at": nil})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Complete resolves an open match and clears its lock. It reports false if the match
// was already complete.
func (r *ratingMatchRepo) Complete(dbc dbctx.Context, id uuid.UUID, outcome types.Outcome, winner *uuid.UUID, now time.Time) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.RatingMatch{}).
		Where("id = ? AND is_complete = ?", id, false).
		Updates(map[string]interface{}{
			"is_complete":          true,
			"outcome":              outcome,
			"winner_completion_id": winner,
			"locked_by":            nil,
			"locked_at":            nil,
			"completed_at":         now,
			"updated_at":           now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ratingMatchRepo) CountByConfiguration(dbc dbctx.Context, configID uuid.UUID) (int64, int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var total, complete int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.RatingMatch{}).
		Where("configuration_id = ?", configID).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.RatingMatch{}).
		Where("configuration_id = ? AND is_complete = ?", configID, true).
		Count(&complete).Error; err != nil {
		return 0, 0, err
	}
	return total, complete, nil
}
