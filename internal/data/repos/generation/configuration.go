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

type ConfigurationRepo interface {
	Create(dbc dbctx.Context, cfg *types.Configuration) (*types.Configuration, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Configuration, error)
	GetForTenant(dbc dbctx.Context, tenantID, id uuid.UUID) (*types.Configuration, error)
	ListByTenant(dbc dbctx.Context, tenantID uuid.UUID) ([]*types.Configuration, error)
	FindByTenantAndName(dbc dbctx.Context, tenantID uuid.UUID, name string) (*types.Configuration, error)
	Update(dbc dbctx.Context, cfg *types.Configuration) error
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status types.ConfigurationStatus) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type configurationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConfigurationRepo(db *gorm.DB, baseLog *logger.Logger) ConfigurationRepo {
	return &configurationRepo{
		db:  db,
		log: baseLog.With("repo", "ConfigurationRepo"),
	}
}

func preloadChildren(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Variables", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("RejectionReasons", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") })
}

func (r *configurationRepo) Create(dbc dbctx.Context, cfg *types.Configuration) (*types.Configuration, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if cfg == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(cfg).Error; err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *configurationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Configuration, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var cfg types.Configuration
	err := preloadChildren(transaction.WithContext(dbc.Ctx)).
		Where("id = ?", id).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *configurationRepo) GetForTenant(dbc dbctx.Context, tenantID, id uuid.UUID) (*types.Configuration, error) {
	cfg, err := r.GetByID(dbc, id)
	if err != nil || cfg == nil {
		return nil, err
	}
	if cfg.TenantID != tenantID {
		return nil, nil
	}
	return cfg, nil
}

func (r *configurationRepo) ListByTenant(dbc dbctx.Context, tenantID uuid.UUID) ([]*types.Configuration, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Configuration
	if tenantID == uuid.Nil {
		return out, nil
	}
	if err := preloadChildren(transaction.WithContext(dbc.Ctx)).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *configurationRepo) FindByTenantAndName(dbc dbctx.Context, tenantID uuid.UUID, name string) (*types.Configuration, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var cfg types.Configuration
	err := transaction.WithContext(dbc.Ctx).
		Where("tenant_id = ? AND name = ?", tenantID, name).
		Limit(1).
		Find(&cfg).Error
	if err != nil {
		return nil, err
	}
	if cfg.ID == uuid.Nil {
		return nil, nil
	}
	return &cfg, nil
}

// Update writes scalar fields and replaces variables and rejection reasons.
func (r *configurationRepo) Update(dbc dbctx.Context, cfg *types.Configuration) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if cfg == nil || cfg.ID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Model(&types.Configuration{}).
			Where("id = ?", cfg.ID).
			Updates(map[string]interface{}{
				"name":                     cfg.Name,
				"prompt_template":          cfg.PromptTemplate,
				"model_provider":           cfg.ModelProvider,
				"model_name":               cfg.ModelName,
				"api_key":                  cfg.APIKey,
				"generations_per_instance": cfg.GenerationsPerInstance,
				"rubric":                   cfg.Rubric,
				"updated_at":               time.Now().UTC(),
			}).Error; err != nil {
			return err
		}
		if err := txx.Where("configuration_id = ?", cfg.ID).Delete(&types.ConfigurationVariable{}).Error; err != nil {
			return err
		}
		if err := txx.Where("configuration_id = ?", cfg.ID).Delete(&types.RejectionReason{}).Error; err != nil {
			return err
		}
		for i := range cfg.Variables {
			cfg.Variables[i].ID = uuid.Nil
			cfg.Variables[i].ConfigurationID = cfg.ID
		}
		for i := range cfg.RejectionReasons {
			cfg.RejectionReasons[i].ID = uuid.Nil
			cfg.RejectionReasons[i].ConfigurationID = cfg.ID
		}
		if len(cfg.Variables) > 0 {
			if err := txx.Create(&cfg.Variables).Error; err != nil {
				return err
			}
		}
		if len(cfg.RejectionReasons) > 0 {
			if err := txx.Create(&cfg.RejectionReasons).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *configurationRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status types.ConfigurationStatus) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Configuration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

// Delete removes a configuration and everything generated or rated under it.
func (r *configurationRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		matchIDs := txx.Model(&types.RatingMatch{}).Select("id").Where("configuration_id = ?", id)
		instanceIDs := txx.Model(&types.PromptInstance{}).Select("id").Where("configuration_id = ?", id)
		steps := []func() error{
			func() error {
				return txx.Where("rating_match_id IN (?)", matchIDs).Delete(&types.RatingResponse{}).Error
			},
			func() error { return txx.Where("configuration_id = ?", id).Delete(&types.RatingMatch{}).Error },
			func() error { return txx.Where("configuration_id = ?", id).Delete(&types.FinalWinner{}).Error },
			func() error {
				return txx.Where("prompt_instance_id IN (?)", instanceIDs).Delete(&types.Completion{}).Error
			},
			func() error { return txx.Where("configuration_id = ?", id).Delete(&types.GenerationRun{}).Error },
			func() error { return txx.Where("configuration_id = ?", id).Delete(&types.PromptInstance{}).Error },
			func() error {
				return txx.Where("configuration_id = ?", id).Delete(&types.ConfigurationVariable{}).Error
			},
			func() error { return txx.Where("configuration_id = ?", id).Delete(&types.RejectionReason{}).Error },
			func() error { return txx.Where("id = ?", id).Delete(&types.Configuration{}).Error },
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}
		return nil
	})
}
