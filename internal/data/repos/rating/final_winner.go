package rating

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/dbctx"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

type FinalWinnerRepo interface {
	Upsert(dbc dbctx.Context, w *types.FinalWinner) error
	GetByInstance(dbc dbctx.Context, instanceID uuid.UUID) (*types.FinalWinner, error)
	ListByConfiguration(dbc dbctx.Context, configID uuid.UUID) ([]*types.FinalWinner, error)
}

type finalWinnerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFinalWinnerRepo(db *gorm.DB, baseLog *logger.Logger) FinalWinnerRepo {
	return &finalWinnerRepo{
		db:  db,
		log: baseLog.With("repo", "FinalWinnerRepo"),
	}
}

// Upsert writes the winner keyed by prompt_instance_id.
func (r *finalWinnerRepo) Upsert(dbc dbctx.Context, w *types.FinalWinner) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if w == nil || w.PromptInstanceID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "prompt_instance_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"completion_id", "completion_index", "determined_at"}),
		}).
		Create(w).Error
}

func (r *finalWinnerRepo) GetByInstance(dbc dbctx.Context, instanceID uuid.UUID) (*types.FinalWinner, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var w types.FinalWinner
	err := transaction.WithContext(dbc.Ctx).
		Where("prompt_instance_id = ?", instanceID).
		Limit(1).
		Find(&w).Error
	if err != nil {
		return nil, err
	}
	if w.ID == uuid.Nil {
		return nil, nil
	}
	return &w, nil
}

func (r *finalWinnerRepo) ListByConfiguration(dbc dbctx.Context, configID uuid.UUID) ([]*types.FinalWinner, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.FinalWinner
	if err := transaction.WithContext(dbc.Ctx).
		Where("configuration_id = ?", configID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
