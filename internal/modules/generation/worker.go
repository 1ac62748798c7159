package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/ratebench-backend/internal/data/repos"
	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/observability"
	"github.com/yungbote/ratebench-backend/internal/platform/dbctx"
	"github.com/yungbote/ratebench-backend/internal/platform/llm"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

const DefaultBatchSize = 10

var ErrConfigurationMissing = errors.New("configuration for run not found")

// ProviderSource resolves the adapter for a configured provider.
type ProviderSource interface {
	ForProvider(name types.ModelProvider) llm.Provider
}

// BracketBuilder creates round-1 matches once a run finishes.
type BracketBuilder interface {
	BuildForConfiguration(dbc dbctx.Context, cfg *types.Configuration) (int, error)
}

type WorkerDeps struct {
	Log       *logger.Logger
	Providers ProviderSource
	Brackets  BracketBuilder

	Configurations repos.ConfigurationRepo
	Instances      repos.PromptInstanceRepo
	Runs           repos.GenerationRunRepo
	Completions    repos.CompletionRepo

	BatchSize int
	Now       func() time.Time
}

// ErrorDetail describes one failed generation or instance.
type ErrorDetail struct {
	InstanceID uuid.UUID `json:"instanceId"`
	Index      *int      `json:"index,omitempty"`
	Error      string    `json:"error"`
}

type BatchResult struct {
	RunID        uuid.UUID     `json:"runId,omitempty"`
	Idle         bool          `json:"-"`
	Completed    bool          `json:"completed"`
	Message      string        `json:"message,omitempty"`
	Processed    int           `json:"processed"`
	Remaining    int64         `json:"remaining"`
	Errors       int           `json:"errors"`
	ErrorDetails []ErrorDetail `json:"errorDetails,omitempty"`
}

// Worker advances generation runs one bounded batch at a time. It holds no state
// between calls; overlapping calls coordinate only through the database.
type Worker struct {
	deps WorkerDeps
	log  *logger.Logger
}

func NewWorker(deps WorkerDeps) *Worker {
	if deps.BatchSize <= 0 {
		deps.BatchSize = DefaultBatchSize
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Worker{deps: deps, log: deps.Log.With("module", "GenerationWorker")}
}

// ProcessBatch selects the active run and processes up to BatchSize instances for it.
// Only failures to select or load the run are returned as errors; per-instance
// problems are reported in the result.
func (w *Worker) ProcessBatch(ctx context.Context) (*BatchResult, error) {
	start := time.Now()
	ctx, span := observability.Tracer("generation").Start(ctx, "generation.batch")
	defer span.End()

	res, err := w.processBatch(ctx)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.Current().ObserveWorkerBatch("error", time.Since(start))
	case res.Idle:
		observability.Current().ObserveWorkerBatch("idle", time.Since(start))
	case res.Completed:
		observability.Current().ObserveWorkerBatch("completed", time.Since(start))
	default:
		observability.Current().ObserveWorkerBatch("progress", time.Since(start))
	}
	if res != nil {
		span.SetAttributes(
			attribute.String("run_id", res.RunID.String()),
			attribute.Int("processed", res.Processed),
			attribute.Int("errors", res.Errors),
		)
	}
	return res, err
}

func (w *Worker) processBatch(ctx context.Context) (*BatchResult, error) {
	dbc := dbctx.Context{Ctx: ctx}

	run, err := w.deps.Runs.NextRunnable(dbc)
	if err != nil {
		return nil, fmt.Errorf("select run: %w", err)
	}
	if run == nil {
		return &BatchResult{Idle: true, Message: "No runs queued"}, nil
	}
	cfg, err := w.deps.Configurations.GetByID(dbc, run.ConfigurationID)
	if err != nil {
		return nil, fmt.Errorf("load configuration %s: %w", run.ConfigurationID, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, ErrConfigurationMissing)
	}

	if run.Status == types.RunQueued {
		now := w.deps.Now()
		ok, err := w.deps.Runs.TransitionStatus(dbc, run.ID, []types.RunStatus{types.RunQueued}, map[string]interface{}{
			"status":     types.RunRunning,
			"started_at": now,
		})
		if err != nil {
			return nil, fmt.Errorf("start run %s: %w", run.ID, err)
		}
		if !ok {
			// Another invocation started or cancelled it first.
			current, err := w.deps.Runs.GetByID(dbc, run.ID)
			if err != nil {
				return nil, fmt.Errorf("reload run %s: %w", run.ID, err)
			}
			if current == nil || current.Status != types.RunRunning {
				return &BatchResult{RunID: run.ID, Idle: true, Message: "Run no longer active"}, nil
			}
		}
		w.log.Info("generation run started", "run_id", run.ID, "configuration_id", cfg.ID)
	}

	result := &BatchResult{RunID: run.ID}

	instances, err := w.deps.Instances.ListRunnable(dbc, cfg.ID, w.deps.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	if len(instances) == 0 {
		details, err := w.finishRun(ctx, run, cfg)
		if err != nil {
			return nil, err
		}
		result.Completed = true
		result.Message = "Run completed"
		result.ErrorDetails = details
		result.Errors = len(details)
		return result, nil
	}

	provider := w.deps.Providers.ForProvider(run.ModelProvider)
	for _, inst := range instances {
		details, ready, err := w.processInstance(ctx, run, cfg, provider, inst)
		result.ErrorDetails = append(result.ErrorDetails, details...)
		result.Errors += len(details)
		if err != nil {
			result.Errors++
			result.ErrorDetails = append(result.ErrorDetails, ErrorDetail{InstanceID: inst.ID, Error: err.Error()})
			w.log.Error("instance processing failed; reverting to PENDING", "run_id", run.ID, "instance_id", inst.ID, "error", err)
			if _, rErr := w.deps.Instances.TransitionStatus(dbc, inst.ID, types.InstanceGenerating, types.InstancePending); rErr != nil {
				w.log.Error("revert instance failed", "instance_id", inst.ID, "error", rErr)
			}
			observability.Current().IncWorkerInstance("reverted")
			continue
		}
		if !ready {
			// Another invocation finished this instance and already counted it.
			w.log.Debug("instance finished concurrently", "run_id", run.ID, "instance_id", inst.ID)
			observability.Current().IncWorkerInstance("concurrent")
			continue
		}
		result.Processed++
		observability.Current().IncWorkerInstance("ready")
	}

	remaining, err := w.deps.Instances.CountRunnable(dbc, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("count remaining: %w", err)
	}
	result.Remaining = remaining
	if remaining == 0 {
		details, err := w.finishRun(ctx, run, cfg)
		if err != nil {
			return nil, err
		}
		result.Completed = true
		result.ErrorDetails = append(result.ErrorDetails, details...)
		result.Errors += len(details)
	}

	w.log.Info("generation batch processed",
		"run_id", run.ID,
		"processed", result.Processed,
		"remaining", result.Remaining,
		"errors", result.Errors,
	)
	return result, nil
}

// processInstance generates the missing completions for one instance. Provider
// failures are returned as details; a non-nil error means the instance must be retried.
// ready is false when an overlapping invocation moved the instance on first.
func (w *Worker) processInstance(ctx context.Context, run *types.GenerationRun, cfg *types.Configuration, provider llm.Provider, inst *types.PromptInstance) (details []ErrorDetail, ready bool, err error) {
	ctx, span := observability.Tracer("generation").Start(ctx, "generation.instance")
	defer span.End()
	span.SetAttributes(attribute.String("instance_id", inst.ID.String()))

	dbc := dbctx.Context{Ctx: ctx}
	if err := w.deps.Instances.UpdateStatus(dbc, inst.ID, types.InstanceGenerating); err != nil {
		return nil, false, fmt.Errorf("mark generating: %w", err)
	}
	values, err := inst.Values()
	if err != nil {
		return nil, false, fmt.Errorf("decode instance data: %w", err)
	}
	prompt := Interpolate(cfg.PromptTemplate, values)

	persisted, err := w.deps.Completions.CountByInstance(dbc, inst.ID)
	if err != nil {
		return nil, false, fmt.Errorf("count completions: %w", err)
	}
	next := int(persisted)

	if provider == nil {
		details = append(details, ErrorDetail{InstanceID: inst.ID, Error: fmt.Sprintf("no adapter for provider %q", run.ModelProvider)})
	}
	for attempt := next; provider != nil && attempt < cfg.GenerationsPerInstance && next < cfg.GenerationsPerInstance; attempt++ {
		if ctx.Err() != nil {
			return details, false, ctx.Err()
		}
		sampling := Variation(attempt)
		temp, topP := sampling.Temperature, sampling.TopP
		out := provider.GenerateCompletion(ctx, llm.Request{
			Prompt:     prompt,
			Model:      run.ModelName,
			Credential: cfg.APIKey,
			Options:    &llm.Options{Temperature: &temp, TopP: &topP},
		})
		if out.Failed() {
			idx := attempt
			details = append(details, ErrorDetail{InstanceID: inst.ID, Index: &idx, Error: out.Error})
			w.log.Warn("generation failed", "run_id", run.ID, "instance_id", inst.ID, "attempt", attempt, "error", out.Error)
			continue
		}
		c := &types.Completion{
			PromptInstanceID: inst.ID,
			GenerationRunID:  run.ID,
			Index:            next,
			Output:           out.Output,
			ModelProvider:    run.ModelProvider,
			ModelName:        run.ModelName,
			Temperature:      temp,
			TopP:             topP,
			TokensUsed:       out.TokensUsed,
		}
		inserted, err := w.deps.Completions.Insert(dbc, c)
		if err != nil {
			return details, false, fmt.Errorf("persist completion: %w", err)
		}
		if inserted {
			next++
			continue
		}
		// A concurrent invocation took this index; continue after its rows.
		n, err := w.deps.Completions.CountByInstance(dbc, inst.ID)
		if err != nil {
			return details, false, fmt.Errorf("recount completions: %w", err)
		}
		next = int(n)
	}

	ready, err = w.deps.Instances.TransitionStatus(dbc, inst.ID, types.InstanceGenerating, types.InstanceReadyForRating)
	if err != nil {
		return details, false, fmt.Errorf("mark ready: %w", err)
	}
	if !ready {
		return details, false, nil
	}
	if err := w.deps.Runs.RecordProgress(dbc, run.ID, 1, len(details)); err != nil {
		return details, true, fmt.Errorf("record progress: %w", err)
	}
	return details, true, nil
}

// finishRun completes a RUNNING run and builds brackets. A run cancelled in the
// meantime is left alone. Bracket failures are reported, not returned, since the
// run itself is already complete and the build can be repeated.
func (w *Worker) finishRun(ctx context.Context, run *types.GenerationRun, cfg *types.Configuration) ([]ErrorDetail, error) {
	dbc := dbctx.Context{Ctx: ctx}
	ok, err := w.deps.Runs.TransitionStatus(dbc, run.ID, []types.RunStatus{types.RunRunning}, map[string]interface{}{
		"status":       types.RunCompleted,
		"completed_at": w.deps.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("complete run %s: %w", run.ID, err)
	}
	if !ok {
		w.log.Warn("run not RUNNING at finish; skipping", "run_id", run.ID)
		return nil, nil
	}
	if err := w.deps.Configurations.UpdateStatus(dbc, cfg.ID, types.ConfigurationCompleted); err != nil {
		return nil, fmt.Errorf("complete configuration %s: %w", cfg.ID, err)
	}
	created, err := w.deps.Brackets.BuildForConfiguration(dbc, cfg)
	if err != nil {
		w.log.Error("bracket build failed", "run_id", run.ID, "configuration_id", cfg.ID, "error", err)
		return []ErrorDetail{{Error: "bracket build: " + err.Error()}}, nil
	}
	w.log.Info("generation run completed", "run_id", run.ID, "configuration_id", cfg.ID, "matches_created", created)
	return nil, nil
}
