package generation

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/dbctx"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

type CompletionRepo interface {
	Insert(dbc dbctx.Context, c *types.Completion) (bool, error)
	ListByInstance(dbc dbctx.Context, instanceID uuid.UUID) ([]*types.Completion, error)
	ListByInstanceIDs(dbc dbctx.Context, instanceIDs []uuid.UUID) ([]*types.Completion, error)
	CountByInstance(dbc dbctx.Context, instanceID uuid.UUID) (int64, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Completion, error)
}

type completionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCompletionRepo(db *gorm.DB, baseLog *logger.Logger) CompletionRepo {
	return &completionRepo{
		db:  db,
		log: baseLog.With("repo", "CompletionRepo"),
	}
}

// Insert stores c unless (prompt_instance_id, index) is already taken. It reports
// whether a row was written.
func (r *completionRepo) Insert(dbc dbctx.Context, c *types.Completion) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if c == nil {
		return false, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *completionRepo) ListByInstance(dbc dbctx.Context, instanceID uuid.UUID) ([]*types.Completion, error) {
	return r.ListByInstanceIDs(dbc, []uuid.UUID{instanceID})
}

func (r *completionRepo) ListByInstanceIDs(dbc dbctx.Context, instanceIDs []uuid.UUID) ([]*types.Completion, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Completion
	if len(instanceIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("prompt_instance_id IN ?", instanceIDs).
		Order("prompt_instance_id ASC, generation_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *completionRepo) CountByInstance(dbc dbctx.Context, instanceID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Completion{}).
		Where("prompt_instance_id = ?", instanceID).
		Count(&count).Error
	return count, err
}

func (r *completionRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Completion, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Completion
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
