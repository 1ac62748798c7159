package generation

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

type GenerationRunRepo interface {
	Create(dbc dbctx.Context, run *types.GenerationRun) (*types.GenerationRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationRun, error)
	ListByConfiguration(dbc dbctx.Context, configID uuid.UUID) ([]*types.GenerationRun, error)
	NextRunnable(dbc dbctx.Context) (*types.GenerationRun, error)
	ExistsActive(dbc dbctx.Context, configID uuid.UUID) (bool, error)
	TransitionStatus(dbc dbctx.Context, id uuid.UUID, from []types.RunStatus, updates map[string]interface{}) (bool, error)
	RecordProgress(dbc dbctx.Context, id uuid.UUID, processed, errored int) error
}

type generationRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenerationRunRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRunRepo {
	return &generationRunRepo{
		db:  db,
		log: baseLog.With("repo", "GenerationRunRepo"),
	}
}

func (r *generationRunRepo) Create(dbc dbctx.Context, run *types.GenerationRun) (*types.GenerationRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if run == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *generationRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.GenerationRun
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *generationRunRepo) ListByConfiguration(dbc dbctx.Context, configID uuid.UUID) ([]*types.GenerationRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.GenerationRun
	if err := transaction.WithContext(dbc.Ctx).
		Where("configuration_id = ?", configID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// NextRunnable returns the oldest RUNNING run, or failing that the oldest QUEUED one.
// Postgres skips rows another worker has locked.
func (r *generationRunRepo) NextRunnable(dbc dbctx.Context) (*types.GenerationRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	for _, status := range []types.RunStatus{types.RunRunning, types.RunQueued} {
		q := transaction.WithContext(dbc.Ctx)
		if q.Dialector.Name() == "postgres" && dbc.Tx != nil {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var run types.GenerationRun
		err := q.Where("status = ?", status).
			Order("created_at ASC").
			Limit(1).
			Find(&run).Error
		if err != nil {
			return nil, err
		}
		if run.ID != uuid.Nil {
			return &run, nil
		}
	}
	return nil, nil
}

func (r *generationRunRepo) ExistsActive(dbc dbctx.Context, configID uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.GenerationRun{}).
		Where("configuration_id = ? AND status IN ?", configID, []types.RunStatus{types.RunQueued, types.RunRunning}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// TransitionStatus applies updates only while the run is in one of the from statuses.
func (r *generationRunRepo) TransitionStatus(dbc dbctx.Context, id uuid.UUID, from []types.RunStatus, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := transaction.WithContext(dbc.Ctx).
		Model(&types.GenerationRun{}).
		Where("id = ?", id)
	if len(from) == 1 {
		q = q.Where("status = ?", from[0])
	} else if len(from) > 1 {
		q = q.Where("status IN ?", from)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RecordProgress increments counters in place; processed_count never decreases.
func (r *generationRunRepo) RecordProgress(dbc dbctx.Context, id uuid.UUID, processed, errored int) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || (processed <= 0 && errored <= 0) {
		return nil
	}
	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	if processed > 0 {
		updates["processed_count"] = gorm.Expr("processed_count + ?", processed)
	}
	if errored > 0 {
		updates["error_count"] = gorm.Expr("error_count + ?", errored)
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.GenerationRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}
