package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/ratebench-backend/internal/data/repos"
	"github.com/yungbote/ratebench-backend/internal/data/repos/testutil"
	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/modules/generation"
	"github.com/yungbote/ratebench-backend/internal/modules/tournament"
	"github.com/yungbote/ratebench-backend/internal/platform/ctxutil"
	"github.com/yungbote/ratebench-backend/internal/platform/lease"
	"github.com/yungbote/ratebench-backend/internal/platform/llm"
)

type stubProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *stubProvider) Name() types.ModelProvider { return types.ProviderOpenAI }

func (p *stubProvider) GenerateCompletion(_ context.Context, req llm.Request) llm.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return llm.Result{Output: fmt.Sprintf("%s #%d", req.Prompt, p.calls)}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db       *gorm.DB
	tenantID uuid.UUID
	adminID  uuid.UUID
	clock    *fakeClock
	provider *stubProvider

	configsRepo     repos.ConfigurationRepo
	instancesRepo   repos.PromptInstanceRepo
	runsRepo        repos.GenerationRunRepo
	completionsRepo repos.CompletionRepo
	matchesRepo     repos.RatingMatchRepo
	responsesRepo   repos.RatingResponseRepo
	winnersRepo     repos.FinalWinnerRepo

	bracket *tournament.Bracket
	worker  *generation.Worker

	configs ConfigurationService
	runs    GenerationRunService
	lease   lease.Lease
	rating  RatingConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	e := &testEnv{
		db:       db,
		tenantID: uuid.New(),
		adminID:  uuid.New(),
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		provider: &stubProvider{},

		configsRepo:     repos.NewConfigurationRepo(db, log),
		instancesRepo:   repos.NewPromptInstanceRepo(db, log),
		runsRepo:        repos.NewGenerationRunRepo(db, log),
		completionsRepo: repos.NewCompletionRepo(db, log),
		matchesRepo:     repos.NewRatingMatchRepo(db, log),
		responsesRepo:   repos.NewRatingResponseRepo(db, log),
		winnersRepo:     repos.NewFinalWinnerRepo(db, log),
		lease:           lease.Local{},
	}
	e.bracket = tournament.New(tournament.Deps{
		Log:         log,
		Instances:   e.instancesRepo,
		Completions: e.completionsRepo,
		Matches:     e.matchesRepo,
		Winners:     e.winnersRepo,
	})
	e.worker = generation.NewWorker(generation.WorkerDeps{
		Log:            log,
		Providers:      llm.NewRegistryWith(e.provider),
		Brackets:       e.bracket,
		Configurations: e.configsRepo,
		Instances:      e.instancesRepo,
		Runs:           e.runsRepo,
		Completions:    e.completionsRepo,
	})
	e.configs = NewConfigurationService(log, e.configsRepo, e.instancesRepo, e.winnersRepo)
	e.runs = e.newRunService(t)
	e.rating = RatingConfig{
		Now:  e.clock.Now,
		Pick: func(int) int { return 0 },
	}
	return e
}

func (e *testEnv) newRunService(t *testing.T) GenerationRunService {
	return NewGenerationRunService(e.db, testutil.Logger(t), e.configsRepo, e.instancesRepo, e.runsRepo, e.worker, e.bracket, e.lease, GenerationRunConfig{})
}

func (e *testEnv) ratingService(t *testing.T, matches repos.RatingMatchRepo) RatingService {
	if matches == nil {
		matches = e.matchesRepo
	}
	return NewRatingService(e.db, testutil.Logger(t), e.configsRepo, e.instancesRepo, e.completionsRepo, matches, e.responsesRepo, e.winnersRepo, e.bracket, e.rating)
}

func (e *testEnv) as(userID uuid.UUID, role string) context.Context {
	return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: userID, TenantID: e.tenantID, Role: role})
}

func (e *testEnv) admin() context.Context { return e.as(e.adminID, RoleAdmin) }

func (e *testEnv) rater(id uuid.UUID) context.Context { return e.as(id, "RATER") }

func sampleInput(generations int) ConfigurationInput {
	return ConfigurationInput{
		Name:                   "essays",
		PromptTemplate:         "Write about {{ topic }}",
		ModelProvider:          types.ProviderOpenAI,
		ModelName:              "gpt-4o-mini",
		GenerationsPerInstance: generations,
		Rubric:                 "Pick the clearer essay.",
		Variables:              []VariableInput{{Key: "topic", Label: "Topic", Required: true}},
		RejectionReasons:       []string{"Off topic", "Too short"},
	}
}

// generated creates a configuration with one instance per topic, runs the worker until
// the run completes and returns the configuration.
func (e *testEnv) generated(t *testing.T, generations int, topics ...string) *types.Configuration {
	t.Helper()
	ctx := e.admin()
	cfg, err := e.configs.Create(ctx, sampleInput(generations))
	require.NoError(t, err)
	rows := make([]map[string]interface{}, 0, len(topics))
	for _, topic := range topics {
		rows = append(rows, map[string]interface{}{"topic": topic})
	}
	up, err := e.configs.UploadInstances(ctx, cfg.ID, rows)
	require.NoError(t, err)
	require.Equal(t, len(topics), up.Created)
	_, err = e.runs.CreateRun(ctx, cfg.ID)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		res, err := e.runs.TriggerBatch(context.Background())
		require.NoError(t, err)
		if res.Completed {
			return cfg
		}
	}
	t.Fatal("run did not complete")
	return nil
}

func withTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	rd := *ctxutil.GetRequestData(ctx)
	rd.TenantID = tenantID
	return ctxutil.WithRequestData(ctx, &rd)
}
