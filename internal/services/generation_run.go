package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/yungbote/ratebench-backend/internal/data/repos"
	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/modules/generation"
	"github.com/yungbote/ratebench-backend/internal/platform/apierr"
	"github.com/yungbote/ratebench-backend/internal/platform/dbctx"
	"github.com/yungbote/ratebench-backend/internal/platform/lease"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

const workerLeaseKey = "generation-worker"

// BatchProcessor runs one bounded worker batch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context) (*generation.BatchResult, error)
}

// BracketReconciler repairs and advances the brackets of a configuration.
type BracketReconciler interface {
	Reconcile(dbc dbctx.Context, cfg *types.Configuration) (int, error)
}

// RunView is a run with its progress fraction.
type RunView struct {
	*types.GenerationRun
	Progress float64 `json:"progress"`
}

func newRunView(run *types.GenerationRun) *RunView {
	if run == nil {
		return nil
	}
	v := &RunView{GenerationRun: run}
	if run.TotalInstances > 0 {
		v.Progress = float64(run.ProcessedCount) / float64(run.TotalInstances)
		if v.Progress > 1 {
			v.Progress = 1
		}
	}
	return v
}

type GenerationRunService interface {
	CreateRun(ctx context.Context, configID uuid.UUID) (*RunView, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*RunView, error)
	ListRuns(ctx context.Context, configID uuid.UUID) ([]*RunView, error)
	Cancel(ctx context.Context, runID uuid.UUID) (*RunView, error)
	Retry(ctx context.Context, runID uuid.UUID) (*RunView, error)
	// TriggerBatch is not tenant-scoped: the worker drains runs of every tenant.
	TriggerBatch(ctx context.Context) (*generation.BatchResult, error)
	RebuildBrackets(ctx context.Context, configID uuid.UUID) (int, error)
}

type GenerationRunConfig struct {
	LeaseTTL time.Duration
}

type generationRunService struct {
	db        *gorm.DB
	log       *logger.Logger
	configs   repos.ConfigurationRepo
	instances repos.PromptInstanceRepo
	runs      repos.GenerationRunRepo
	worker    BatchProcessor
	brackets  BracketReconciler
	lease     lease.Lease
	cfg       GenerationRunConfig

	flight singleflight.Group
}

func NewGenerationRunService(
	db *gorm.DB,
	log *logger.Logger,
	configs repos.ConfigurationRepo,
	instances repos.PromptInstanceRepo,
	runs repos.GenerationRunRepo,
	worker BatchProcessor,
	brackets BracketReconciler,
	l lease.Lease,
	cfg GenerationRunConfig,
) GenerationRunService {
	if l == nil {
		l = lease.Local{}
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Minute
	}
	return &generationRunService{
		db:        db,
		log:       log.With("service", "GenerationRunService"),
		configs:   configs,
		instances: instances,
		runs:      runs,
		worker:    worker,
		brackets:  brackets,
		lease:     l,
		cfg:       cfg,
	}
}

func runNotFound() error {
	return apierr.New(http.StatusNotFound, CodeRunNotFound, errors.New("run not found"))
}

func (s *generationRunService) CreateRun(ctx context.Context, configID uuid.UUID) (*RunView, error) {
	rd, err := adminCaller(ctx)
	if err != nil {
		return nil, err
	}
	var created *types.GenerationRun
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		cfg, err := s.configs.GetForTenant(dbc, rd.TenantID, configID)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if cfg == nil {
			return configurationNotFound()
		}
		active, err := s.runs.ExistsActive(dbc, cfg.ID)
		if err != nil {
			return fmt.Errorf("check active runs: %w", err)
		}
		if active {
			return apierr.New(http.StatusConflict, CodeRunActive, errors.New("configuration already has an active run"))
		}
		pending, err := s.instances.CountRunnable(dbc, cfg.ID)
		if err != nil {
			return fmt.Errorf("count instances: %w", err)
		}
		if pending == 0 {
			return apierr.New(http.StatusBadRequest, CodeNoInstances, errors.New("configuration has no pending instances"))
		}
		run := &types.GenerationRun{
			ID:              uuid.New(),
			ConfigurationID: cfg.ID,
			TenantID:        cfg.TenantID,
			ModelProvider:   cfg.ModelProvider,
			ModelName:       cfg.ModelName,
			TotalInstances:  int(pending),
			Status:          types.RunQueued,
		}
		if _, err := s.runs.Create(dbc, run); err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		if err := s.configs.UpdateStatus(dbc, cfg.ID, types.ConfigurationExecuting); err != nil {
			return fmt.Errorf("mark configuration executing: %w", err)
		}
		created = run
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("generation run queued", "run_id", created.ID, "configuration_id", created.ConfigurationID, "total_instances", created.TotalInstances)
	return newRunView(created), nil
}

func (s *generationRunService) loadRun(ctx context.Context, runID uuid.UUID) (*types.GenerationRun, error) {
	rd, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	run, err := s.runs.GetByID(dbctx.Context{Ctx: ctx}, runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if run == nil || run.TenantID != rd.TenantID {
		return nil, runNotFound()
	}
	return run, nil
}

func (s *generationRunService) GetRun(ctx context.Context, runID uuid.UUID) (*RunView, error) {
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return newRunView(run), nil
}

func (s *generationRunService) ListRuns(ctx context.Context, configID uuid.UUID) ([]*RunView, error) {
	rd, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	cfg, err := s.configs.GetForTenant(dbc, rd.TenantID, configID)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg == nil {
		return nil, configurationNotFound()
	}
	runs, err := s.runs.ListByConfiguration(dbc, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]*RunView, 0, len(runs))
	for _, r := range runs {
		out = append(out, newRunView(r))
	}
	return out, nil
}

// Cancel fails an active run and returns interrupted instances to PENDING. A batch
// already in flight is not interrupted; its writes may land after the reset.
func (s *generationRunService) Cancel(ctx context.Context, runID uuid.UUID) (*RunView, error) {
	if _, err := adminCaller(ctx); err != nil {
		return nil, err
	}
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	now := time.Now().UTC()
	ok, err := s.runs.TransitionStatus(dbc, run.ID, []types.RunStatus{types.RunQueued, types.RunRunning}, map[string]interface{}{
		"status":       types.RunFailed,
		"last_error":   "cancelled",
		"completed_at": now,
	})
	if err != nil {
		return nil, fmt.Errorf("cancel run: %w", err)
	}
	if !ok {
		return nil, apierr.New(http.StatusConflict, CodeRunNotActive, fmt.Errorf("run is %s", run.Status))
	}
	reset, err := s.instances.ResetGenerating(dbc, run.ConfigurationID)
	if err != nil {
		s.log.Warn("reset generating instances failed", "run_id", run.ID, "error", err)
	}
	if err := s.configs.UpdateStatus(dbc, run.ConfigurationID, types.ConfigurationDraft); err != nil {
		return nil, fmt.Errorf("reset configuration status: %w", err)
	}
	s.log.Info("generation run cancelled", "run_id", run.ID, "instances_reset", reset)
	return s.GetRun(ctx, run.ID)
}

func (s *generationRunService) Retry(ctx context.Context, runID uuid.UUID) (*RunView, error) {
	if _, err := adminCaller(ctx); err != nil {
		return nil, err
	}
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		active, err := s.runs.ExistsActive(dbc, run.ConfigurationID)
		if err != nil {
			return fmt.Errorf("check active runs: %w", err)
		}
		if active {
			return apierr.New(http.StatusConflict, CodeRunActive, errors.New("configuration already has an active run"))
		}
		ok, err := s.runs.TransitionStatus(dbc, run.ID, []types.RunStatus{types.RunFailed}, map[string]interface{}{
			"status":       types.RunQueued,
			"last_error":   "",
			"completed_at": nil,
		})
		if err != nil {
			return fmt.Errorf("retry run: %w", err)
		}
		if !ok {
			return apierr.New(http.StatusConflict, CodeRunNotFailed, fmt.Errorf("run is %s", run.Status))
		}
		return s.configs.UpdateStatus(dbc, run.ConfigurationID, types.ConfigurationExecuting)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("generation run requeued", "run_id", run.ID)
	return s.GetRun(ctx, run.ID)
}

// TriggerBatch runs one worker batch. Concurrent triggers in this process share a
// single batch; across processes the lease turns extra triggers into no-ops.
// The shared batch is detached from the caller's cancellation and bounded by the lease TTL.
func (s *generationRunService) TriggerBatch(ctx context.Context) (*generation.BatchResult, error) {
	v, err, _ := s.flight.Do(workerLeaseKey, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.LeaseTTL)
		defer cancel()
		release, ok, err := s.lease.Acquire(ctx, workerLeaseKey, s.cfg.LeaseTTL)
		if err != nil {
			s.log.Warn("worker lease unavailable; running without it", "error", err)
		} else if !ok {
			return &generation.BatchResult{Idle: true, Message: "Batch already in progress"}, nil
		} else {
			defer release()
		}
		return s.worker.ProcessBatch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*generation.BatchResult), nil
}

func (s *generationRunService) RebuildBrackets(ctx context.Context, configID uuid.UUID) (int, error) {
	rd, err := adminCaller(ctx)
	if err != nil {
		return 0, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	cfg, err := s.configs.GetForTenant(dbc, rd.TenantID, configID)
	if err != nil {
		return 0, fmt.Errorf("load configuration: %w", err)
	}
	if cfg == nil {
		return 0, configurationNotFound()
	}
	return s.brackets.Reconcile(dbc, cfg)
}
