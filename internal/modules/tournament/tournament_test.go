package tournament

import (
	"context"
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
)

type bracketFixture struct {
	db      *gorm.DB
	ctx     context.Context
	dbc     dbctx.Context
	deps    Deps
	bracket *Bracket
	cfg     *types.Configuration
	run     *types.GenerationRun
}

func newBracketFixture(t *testing.T) *bracketFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	deps := Deps{
		Log:         log,
		Instances:   repos.NewPromptInstanceRepo(db, log),
		Completions: repos.NewCompletionRepo(db, log),
		Matches:     repos.NewRatingMatchRepo(db, log),
		Winners:     repos.NewFinalWinnerRepo(db, log),
	}
	cfg := testutil.SeedConfiguration(t, ctx, db, uuid.New(), 4)
	return &bracketFixture{
		db:      db,
		ctx:     ctx,
		dbc:     dbctx.Context{Ctx: ctx},
		deps:    deps,
		bracket: New(deps),
		cfg:     cfg,
		run:     testutil.SeedRun(t, ctx, db, cfg, types.RunCompleted, time.Now().UTC()),
	}
}

func (f *bracketFixture) readyInstance(t *testing.T, completions int) (*types.PromptInstance, []*types.Completion) {
	t.Helper()
	inst := testutil.SeedInstance(t, f.ctx, f.db, f.cfg.ID, types.InstanceReadyForRating, map[string]string{"topic": "x"})
	comps := testutil.SeedCompletions(t, f.ctx, f.db, inst.ID, f.run.ID, completions)
	return inst, comps
}

func (f *bracketFixture) rate(t *testing.T, m *types.RatingMatch, o types.Outcome) *Advancement {
	t.Helper()
	ok, err := f.deps.Matches.Complete(f.dbc, m.ID, o, m.WinnerFor(o), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
	adv, err := f.bracket.Advance(f.dbc, m)
	require.NoError(t, err)
	return adv
}

func (f *bracketFixture) matches(t *testing.T, instanceID uuid.UUID) []*types.RatingMatch {
	t.Helper()
	ms, err := f.deps.Matches.ListByInstance(f.dbc, instanceID)
	require.NoError(t, err)
	return ms
}

func (f *bracketFixture) status(t *testing.T, instanceID uuid.UUID) types.InstanceStatus {
	t.Helper()
	inst, err := f.deps.Instances.GetByID(f.dbc, instanceID)
	require.NoError(t, err)
	return inst.Status
}

func TestSeedRoundOne(t *testing.T) {
	comps := func(n int) []*types.Completion {
		out := make([]*types.Completion, n)
		for i := range out {
			out[i] = &types.Completion{ID: uuid.New(), Index: i}
		}
		return out
	}

	assert.Empty(t, SeedRoundOne(comps(1)))

	two := comps(2)
	assert.Equal(t, []Pairing{{A: two[0], B: two[1]}}, SeedRoundOne(two))
	assert.Empty(t, Byes(two))

	three := comps(3)
	assert.Equal(t, []Pairing{{A: three[0], B: three[1]}}, SeedRoundOne(three))
	assert.Equal(t, []*types.Completion{three[2]}, Byes(three))

	five := comps(5)
	assert.Equal(t, []Pairing{{A: five[0], B: five[1]}, {A: five[2], B: five[3]}}, SeedRoundOne(five))
	assert.Empty(t, Byes(five))
}

func TestBuildForConfigurationIsIdempotent(t *testing.T) {
	f := newBracketFixture(t)
	two, twoComps := f.readyInstance(t, 2)
	four, fourComps := f.readyInstance(t, 4)
	lonely, _ := f.readyInstance(t, 1)
	pending := testutil.SeedInstance(t, f.ctx, f.db, f.cfg.ID, types.InstancePending, map[string]string{"topic": "y"})
	testutil.SeedCompletions(t, f.ctx, f.db, pending.ID, f.run.ID, 2)

	created, err := f.bracket.BuildForConfiguration(f.dbc, f.cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	created, err = f.bracket.BuildForConfiguration(f.dbc, f.cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	ms := f.matches(t, two.ID)
	require.Len(t, ms, 1)
	assert.Equal(t, twoComps[0].ID, ms[0].OptionAID)
	assert.Equal(t, twoComps[1].ID, ms[0].OptionBID)
	assert.Equal(t, f.cfg.TenantID, ms[0].TenantID)

	ms = f.matches(t, four.ID)
	require.Len(t, ms, 2)
	assert.Equal(t, fourComps[0].ID, ms[0].OptionAID)
	assert.Equal(t, fourComps[1].ID, ms[0].OptionBID)
	assert.Equal(t, fourComps[2].ID, ms[1].OptionAID)
	assert.Equal(t, fourComps[3].ID, ms[1].OptionBID)

	assert.Empty(t, f.matches(t, lonely.ID))
	assert.Empty(t, f.matches(t, pending.ID))
}

func TestAdvanceTwoCompletions(t *testing.T) {
	f := newBracketFixture(t)
	inst, comps := f.readyInstance(t, 2)
	_, err := f.bracket.BuildForInstance(f.dbc, f.cfg, inst)
	require.NoError(t, err)

	adv := f.rate(t, f.matches(t, inst.ID)[0], types.OutcomeABetter)
	assert.True(t, adv.Finalized)
	require.NotNil(t, adv.WinnerCompletionID)
	assert.Equal(t, comps[0].ID, *adv.WinnerCompletionID)
	assert.Equal(t, types.InstanceRated, f.status(t, inst.ID))

	w, err := f.deps.Winners.GetByInstance(f.dbc, inst.ID)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, comps[0].ID, w.CompletionID)
	assert.Equal(t, 0, w.CompletionIndex)

	again, err := f.bracket.AdvanceInstance(f.dbc, inst.ID)
	require.NoError(t, err)
	assert.True(t, again.Finalized)
	assert.Equal(t, comps[0].ID, *again.WinnerCompletionID)
}

func TestAdvanceThreeCompletionsUsesBye(t *testing.T) {
	f := newBracketFixture(t)
	inst, comps := f.readyInstance(t, 3)
	_, err := f.bracket.BuildForInstance(f.dbc, f.cfg, inst)
	require.NoError(t, err)

	adv := f.rate(t, f.matches(t, inst.ID)[0], types.OutcomeBBetter)
	require.NotNil(t, adv.NextMatchID)
	assert.False(t, adv.Finalized)

	ms := f.matches(t, inst.ID)
	require.Len(t, ms, 2)
	final := ms[1]
	assert.Equal(t, 2, final.Round)
	assert.Equal(t, comps[1].ID, final.OptionAID)
	assert.Equal(t, comps[2].ID, final.OptionBID)

	adv = f.rate(t, final, types.OutcomeBBetter)
	assert.True(t, adv.Finalized)
	assert.Equal(t, comps[2].ID, *adv.WinnerCompletionID)

	w, err := f.deps.Winners.GetByInstance(f.dbc, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, w.CompletionIndex)
}

func TestAdvanceThreeCompletionsTieAdvancesBye(t *testing.T) {
	f := newBracketFixture(t)
	inst, comps := f.readyInstance(t, 3)
	_, err := f.bracket.BuildForInstance(f.dbc, f.cfg, inst)
	require.NoError(t, err)

	adv := f.rate(t, f.matches(t, inst.ID)[0], types.OutcomeNeitherGood)
	assert.True(t, adv.Finalized)
	assert.Equal(t, comps[2].ID, *adv.WinnerCompletionID)
	assert.Len(t, f.matches(t, inst.ID), 1)
}

func TestAdvanceFourCompletions(t *testing.T) {
	f := newBracketFixture(t)
	inst, comps := f.readyInstance(t, 4)
	_, err := f.bracket.BuildForInstance(f.dbc, f.cfg, inst)
	require.NoError(t, err)
	roundOne := f.matches(t, inst.ID)
	require.Len(t, roundOne, 2)

	adv := f.rate(t, roundOne[0], types.OutcomeABetter)
	assert.True(t, adv.Waiting)
	assert.Equal(t, types.InstanceReadyForRating, f.status(t, inst.ID))

	adv = f.rate(t, roundOne[1], types.OutcomeBBetter)
	require.NotNil(t, adv.NextMatchID)

	// A repeated advance finds the existing final instead of creating another.
	again, err := f.bracket.AdvanceInstance(f.dbc, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, *adv.NextMatchID, *again.NextMatchID)

	ms := f.matches(t, inst.ID)
	require.Len(t, ms, 3)
	final := ms[2]
	assert.Equal(t, *adv.NextMatchID, final.ID)
	assert.Equal(t, comps[0].ID, final.OptionAID)
	assert.Equal(t, comps[3].ID, final.OptionBID)

	adv = f.rate(t, final, types.OutcomeBothGood)
	assert.True(t, adv.Finalized)
	assert.Nil(t, adv.WinnerCompletionID)
	assert.Equal(t, types.InstanceRated, f.status(t, inst.ID))

	w, err := f.deps.Winners.GetByInstance(f.dbc, inst.ID)
	require.NoError(t, err)
	assert.Nil(t, w, "a tied final leaves no winner")
}

func TestAdvanceFourCompletionsAllTies(t *testing.T) {
	f := newBracketFixture(t)
	inst, _ := f.readyInstance(t, 4)
	_, err := f.bracket.BuildForInstance(f.dbc, f.cfg, inst)
	require.NoError(t, err)
	roundOne := f.matches(t, inst.ID)

	f.rate(t, roundOne[0], types.OutcomeBothGood)
	adv := f.rate(t, roundOne[1], types.OutcomeNeitherGood)
	assert.True(t, adv.Finalized)
	assert.Nil(t, adv.WinnerCompletionID)
	assert.Len(t, f.matches(t, inst.ID), 2)
	assert.Equal(t, types.InstanceRated, f.status(t, inst.ID))
}

func TestAdvanceFourCompletionsSingleSurvivor(t *testing.T) {
	f := newBracketFixture(t)
	inst, comps := f.readyInstance(t, 4)
	_, err := f.bracket.BuildForInstance(f.dbc, f.cfg, inst)
	require.NoError(t, err)
	roundOne := f.matches(t, inst.ID)

	f.rate(t, roundOne[0], types.OutcomeNeitherGood)
	adv := f.rate(t, roundOne[1], types.OutcomeABetter)
	assert.True(t, adv.Finalized)
	assert.Equal(t, comps[2].ID, *adv.WinnerCompletionID)
}

func TestReconcileFinishesStalledBrackets(t *testing.T) {
	f := newBracketFixture(t)
	inst, comps := f.readyInstance(t, 2)
	_, err := f.bracket.BuildForInstance(f.dbc, f.cfg, inst)
	require.NoError(t, err)
	m := f.matches(t, inst.ID)[0]
	ok, err := f.deps.Matches.Complete(f.dbc, m.ID, types.OutcomeBBetter, m.WinnerFor(types.OutcomeBBetter), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
	fresh, _ := f.readyInstance(t, 2)

	finalized, err := f.bracket.Reconcile(f.dbc, f.cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, finalized)
	assert.Equal(t, types.InstanceRated, f.status(t, inst.ID))
	assert.Len(t, f.matches(t, fresh.ID), 1)

	w, err := f.deps.Winners.GetByInstance(f.dbc, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, comps[1].ID, w.CompletionID)
}
