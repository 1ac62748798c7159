package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/ratebench-backend/internal/data/repos"
	"github.com/yungbote/ratebench-backend/internal/data/repos/testutil"
	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/dbctx"
	"github.com/yungbote/ratebench-backend/internal/platform/llm"
)

type scriptedProvider struct {
	mu      sync.Mutex
	calls   []llm.Request
	failOn  map[int]bool // 1-based call numbers
	outputs int
}

func (p *scriptedProvider) Name() types.ModelProvider { return types.ProviderOpenAI }

func (p *scriptedProvider) GenerateCompletion(_ context.Context, req llm.Request) llm.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.failOn[len(p.calls)] {
		return llm.Result{Error: "upstream unavailable"}
	}
	p.outputs++
	tokens := 12
	return llm.Result{Output: "answer to " + req.Prompt, TokensUsed: &tokens}
}

// reentrantProvider runs onFirst during its first call, outside its lock, to
// simulate a second worker invocation racing the first.
type reentrantProvider struct {
	mu      sync.Mutex
	calls   int
	onFirst func()
}

func (p *reentrantProvider) Name() types.ModelProvider { return types.ProviderOpenAI }

func (p *reentrantProvider) GenerateCompletion(_ context.Context, req llm.Request) llm.Result {
	p.mu.Lock()
	p.calls++
	first := p.calls == 1
	p.mu.Unlock()
	if first && p.onFirst != nil {
		p.onFirst()
	}
	return llm.Result{Output: "answer to " + req.Prompt}
}

type recordingBrackets struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (b *recordingBrackets) BuildForConfiguration(_ dbctx.Context, cfg *types.Configuration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, cfg.ID)
	return 0, b.err
}

type failingCompletions struct {
	repos.CompletionRepo
}

func (failingCompletions) Insert(dbctx.Context, *types.Completion) (bool, error) {
	return false, errors.New("disk full")
}

type workerFixture struct {
	db       *gorm.DB
	ctx      context.Context
	dbc      dbctx.Context
	provider *scriptedProvider
	brackets *recordingBrackets
	deps     WorkerDeps
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	f := &workerFixture{
		db:       db,
		ctx:      ctx,
		dbc:      dbctx.Context{Ctx: ctx},
		provider: &scriptedProvider{failOn: map[int]bool{}},
		brackets: &recordingBrackets{},
	}
	f.deps = WorkerDeps{
		Log:            log,
		Providers:      llm.NewRegistryWith(f.provider),
		Brackets:       f.brackets,
		Configurations: repos.NewConfigurationRepo(db, log),
		Instances:      repos.NewPromptInstanceRepo(db, log),
		Runs:           repos.NewGenerationRunRepo(db, log),
		Completions:    repos.NewCompletionRepo(db, log),
	}
	return f
}

func (f *workerFixture) seed(t *testing.T, generations, instances int, runStatus types.RunStatus) (*types.Configuration, []*types.PromptInstance, *types.GenerationRun) {
	t.Helper()
	cfg := testutil.SeedConfiguration(t, f.ctx, f.db, uuid.New(), generations)
	cfg.Status = types.ConfigurationExecuting
	require.NoError(t, f.db.Model(cfg).Update("status", types.ConfigurationExecuting).Error)
	var out []*types.PromptInstance
	for i := 0; i < instances; i++ {
		out = append(out, testutil.SeedInstance(t, f.ctx, f.db, cfg.ID, types.InstancePending, map[string]string{"topic": "cats"}))
	}
	run := testutil.SeedRun(t, f.ctx, f.db, cfg, runStatus, time.Now().UTC())
	return cfg, out, run
}

func TestProcessBatchIdleWithoutRuns(t *testing.T) {
	f := newWorkerFixture(t)
	res, err := NewWorker(f.deps).ProcessBatch(f.ctx)
	require.NoError(t, err)
	assert.True(t, res.Idle)
	assert.Equal(t, "No runs queued", res.Message)
	assert.Empty(t, f.provider.calls)
}

func TestProcessBatchPartialProviderFailure(t *testing.T) {
	f := newWorkerFixture(t)
	cfg, instances, run := f.seed(t, 3, 1, types.RunQueued)
	f.provider.failOn[2] = true

	res, err := NewWorker(f.deps).ProcessBatch(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, res.ErrorDetails, 1)
	require.NotNil(t, res.ErrorDetails[0].Index)
	assert.Equal(t, 1, *res.ErrorDetails[0].Index)
	assert.True(t, res.Completed)

	comps, err := f.deps.Completions.ListByInstance(f.dbc, instances[0].ID)
	require.NoError(t, err)
	require.Len(t, comps, 2)
	assert.Equal(t, 0, comps[0].Index)
	assert.Equal(t, 1, comps[1].Index, "indices stay contiguous after a failed call")
	assert.Equal(t, "answer to Write about cats", comps[0].Output)
	assert.Equal(t, Variation(0).Temperature, comps[0].Temperature)
	assert.Equal(t, Variation(2).Temperature, comps[1].Temperature)
	require.NotNil(t, comps[0].TokensUsed)
	assert.Equal(t, 12, *comps[0].TokensUsed)

	inst, err := f.deps.Instances.GetByID(f.dbc, instances[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.InstanceReadyForRating, inst.Status)

	reloaded, err := f.deps.Runs.GetByID(f.dbc, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, reloaded.Status)
	assert.Equal(t, 1, reloaded.ProcessedCount)
	assert.Equal(t, 1, reloaded.ErrorCount)
	assert.NotNil(t, reloaded.StartedAt)
	assert.NotNil(t, reloaded.CompletedAt)

	gotCfg, err := f.deps.Configurations.GetByID(f.dbc, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ConfigurationCompleted, gotCfg.Status)
	assert.Equal(t, []uuid.UUID{cfg.ID}, f.brackets.calls)

	for _, req := range f.provider.calls {
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, "Write about cats", req.Prompt)
	}
}

func TestProcessBatchRespectsBatchSize(t *testing.T) {
	f := newWorkerFixture(t)
	f.deps.BatchSize = 2
	_, _, run := f.seed(t, 2, 3, types.RunQueued)
	w := NewWorker(f.deps)

	first, err := w.ProcessBatch(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)
	assert.EqualValues(t, 1, first.Remaining)
	assert.False(t, first.Completed)
	assert.Empty(t, f.brackets.calls)

	second, err := w.ProcessBatch(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Processed)
	assert.True(t, second.Completed)
	assert.Len(t, f.brackets.calls, 1)

	reloaded, err := f.deps.Runs.GetByID(f.dbc, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.ProcessedCount)
	assert.Equal(t, types.RunCompleted, reloaded.Status)

	third, err := w.ProcessBatch(f.ctx)
	require.NoError(t, err)
	assert.True(t, third.Idle)
	assert.Len(t, f.provider.calls, 6)
}

func TestProcessBatchResumesInterruptedInstance(t *testing.T) {
	f := newWorkerFixture(t)
	_, instances, run := f.seed(t, 3, 1, types.RunRunning)
	require.NoError(t, f.deps.Instances.UpdateStatus(f.dbc, instances[0].ID, types.InstanceGenerating))
	testutil.SeedCompletions(t, f.ctx, f.db, instances[0].ID, run.ID, 1)

	res, err := NewWorker(f.deps).ProcessBatch(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Len(t, f.provider.calls, 2, "only the missing generations are requested")

	comps, err := f.deps.Completions.ListByInstance(f.dbc, instances[0].ID)
	require.NoError(t, err)
	require.Len(t, comps, 3)
	for i, c := range comps {
		assert.Equal(t, i, c.Index)
	}
	assert.Equal(t, Variation(1).Temperature, comps[1].Temperature)
	assert.Equal(t, Variation(2).TopP, comps[2].TopP)
}

func TestProcessBatchRevertsInstanceOnPersistenceFailure(t *testing.T) {
	f := newWorkerFixture(t)
	f.deps.Completions = failingCompletions{CompletionRepo: f.deps.Completions}
	_, instances, run := f.seed(t, 2, 1, types.RunRunning)

	res, err := NewWorker(f.deps).ProcessBatch(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 1, res.Errors)
	assert.False(t, res.Completed)
	assert.EqualValues(t, 1, res.Remaining)

	inst, err := f.deps.Instances.GetByID(f.dbc, instances[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.InstancePending, inst.Status)

	reloaded, err := f.deps.Runs.GetByID(f.dbc, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunRunning, reloaded.Status)
	assert.Equal(t, 0, reloaded.ProcessedCount)
}

func TestProcessBatchSkipsCancelledRuns(t *testing.T) {
	f := newWorkerFixture(t)
	f.seed(t, 2, 2, types.RunFailed)

	res, err := NewWorker(f.deps).ProcessBatch(f.ctx)
	require.NoError(t, err)
	assert.True(t, res.Idle)
	assert.Empty(t, f.provider.calls)
}

func TestProcessBatchReportsBracketFailure(t *testing.T) {
	f := newWorkerFixture(t)
	f.brackets.err = errors.New("boom")
	_, _, run := f.seed(t, 2, 1, types.RunRunning)

	res, err := NewWorker(f.deps).ProcessBatch(f.ctx)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	require.NotEmpty(t, res.ErrorDetails)
	assert.Contains(t, res.ErrorDetails[len(res.ErrorDetails)-1].Error, "bracket build")

	reloaded, err := f.deps.Runs.GetByID(f.dbc, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, reloaded.Status)
}

func TestProcessBatchOverlappingInvocationsStayWithinGenerationCount(t *testing.T) {
	f := newWorkerFixture(t)
	_, instances, run := f.seed(t, 2, 1, types.RunRunning)

	provider := &reentrantProvider{}
	f.deps.Providers = llm.NewRegistryWith(provider)
	var nested *BatchResult
	var nestedErr error
	provider.onFirst = func() {
		nested, nestedErr = NewWorker(f.deps).ProcessBatch(f.ctx)
	}

	outer, err := NewWorker(f.deps).ProcessBatch(f.ctx)
	require.NoError(t, err)
	require.NoError(t, nestedErr)
	require.NotNil(t, nested)

	assert.Equal(t, 1, nested.Processed)
	assert.Equal(t, 0, outer.Processed, "the instance is counted once")
	assert.Equal(t, 3, provider.calls)

	comps, err := f.deps.Completions.ListByInstance(f.dbc, instances[0].ID)
	require.NoError(t, err)
	require.Len(t, comps, 2)
	assert.Equal(t, 0, comps[0].Index)
	assert.Equal(t, 1, comps[1].Index)

	inst, err := f.deps.Instances.GetByID(f.dbc, instances[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.InstanceReadyForRating, inst.Status)

	reloaded, err := f.deps.Runs.GetByID(f.dbc, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, reloaded.Status)
	assert.Equal(t, 1, reloaded.ProcessedCount)
	assert.Len(t, f.brackets.calls, 1)
}
