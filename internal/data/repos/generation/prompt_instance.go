package generation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/dbctx"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

var runnableInstanceStatuses = []types.InstanceStatus{types.InstancePending, types.InstanceGenerating}

type PromptInstanceRepo interface {
	Create(dbc dbctx.Context, instances []*types.PromptInstance) ([]*types.PromptInstance, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PromptInstance, error)
	ListByConfiguration(dbc dbctx.Context, configID uuid.UUID) ([]*types.PromptInstance, error)
	ListByConfigurationAndStatus(dbc dbctx.Context, configID uuid.UUID, statuses []types.InstanceStatus) ([]*types.PromptInstance, error)
	ListRunnable(dbc dbctx.Context, configID uuid.UUID, limit int) ([]*types.PromptInstance, error)
	CountRunnable(dbc dbctx.Context, configID uuid.UUID) (int64, error)
	CountByStatus(dbc dbctx.Context, configID uuid.UUID) (map[types.InstanceStatus]int64, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status types.InstanceStatus) error
	// TransitionStatus moves the instance to status only if it is currently in from.
	TransitionStatus(dbc dbctx.Context, id uuid.UUID, from, status types.InstanceStatus) (bool, error)
	ResetGenerating(dbc dbctx.Context, configID uuid.UUID) (int64, error)
}

type promptInstanceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPromptInstanceRepo(db *gorm.DB, baseLog *logger.Logger) PromptInstanceRepo {
	return &promptInstanceRepo{
		db:  db,
		log: baseLog.With("repo", "PromptInstanceRepo"),
	}
}

func (r *promptInstanceRepo) Create(dbc dbctx.Context, instances []*types.PromptInstance) ([]*types.PromptInstance, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(instances) == 0 {
		return []*types.PromptInstance{}, nil
	}
	// Stagger created_at so batch order follows upload order.
	base := time.Now().UTC()
	for i, p := range instances {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = base.Add(time.Duration(i) * time.Microsecond)
			p.UpdatedAt = p.CreatedAt
		}
	}
	if err := transaction.WithContext(dbc.Ctx).CreateInBatches(&instances, 200).Error; err != nil {
		return nil, err
	}
	return instances, nil
}

func (r *promptInstanceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PromptInstance, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var p types.PromptInstance
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *promptInstanceRepo) ListByConfiguration(dbc dbctx.Context, configID uuid.UUID) ([]*types.PromptInstance, error) {
	return r.ListByConfigurationAndStatus(dbc, configID, nil)
}

func (r *promptInstanceRepo) ListByConfigurationAndStatus(dbc dbctx.Context, configID uuid.UUID, statuses []types.InstanceStatus) ([]*types.PromptInstance, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.PromptInstance
	if configID == uuid.Nil {
		return out, nil
	}
	q := transaction.WithContext(dbc.Ctx).Where("configuration_id = ?", configID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListRunnable returns the oldest PENDING or GENERATING instances. GENERATING rows
// are included so an interrupted batch is picked up again.
func (r *promptInstanceRepo) ListRunnable(dbc dbctx.Context, configID uuid.UUID, limit int) ([]*types.PromptInstance, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.PromptInstance
	if configID == uuid.Nil || limit <= 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("configuration_id = ? AND status IN ?", configID, runnableInstanceStatuses).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *promptInstanceRepo) CountRunnable(dbc dbctx.Context, configID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.PromptInstance{}).
		Where("configuration_id = ? AND status IN ?", configID, runnableInstanceStatuses).
		Count(&count).Error
	return count, err
}

func (r *promptInstanceRepo) CountByStatus(dbc dbctx.Context, configID uuid.UUID) (map[types.InstanceStatus]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	type row struct {
		Status types.InstanceStatus
		N      int64
	}
	var rows []row
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.PromptInstance{}).
		Select("status, COUNT(*) AS n").
		Where("configuration_id = ?", configID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[types.InstanceStatus]int64, len(rows))
	for _, rw := range rows {
		out[rw.Status] = rw.N
	}
	return out, nil
}

func (r *promptInstanceRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status types.InstanceStatus) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.PromptInstance{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *promptInstanceRepo) TransitionStatus(dbc dbctx.Context, id uuid.UUID, from, status types.InstanceStatus) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.PromptInstance{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *promptInstanceRepo) ResetGenerating(dbc dbctx.Context, configID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.PromptInstance{}).
		Where("configuration_id = ? AND status = ?", configID, types.InstanceGenerating).
		Updates(map[string]interface{}{
			"status":     types.InstancePending,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
