package tournament

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/ratebench-backend/internal/data/repos"
	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/dbctx"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

// MaxEntrants is the number of completions that take part in a bracket. Extra
// completions are stored but never rated.
const MaxEntrants = 4

type Deps struct {
	Log         *logger.Logger
	Instances   repos.PromptInstanceRepo
	Completions repos.CompletionRepo
	Matches     repos.RatingMatchRepo
	Winners     repos.FinalWinnerRepo
	Now         func() time.Time
}

// Bracket builds round-1 matches and advances instances through later rounds.
type Bracket struct {
	deps Deps
	log  *logger.Logger
}

func New(deps Deps) *Bracket {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Bracket{deps: deps, log: deps.Log.With("module", "Bracket")}
}

// Pairing is one round-1 match by completion.
type Pairing struct {
	A *types.Completion
	B *types.Completion
}

// SeedRoundOne pairs completions, ordered by index, for round 1: 0v1 and, with four
// or more, 2v3.
func SeedRoundOne(comps []*types.Completion) []Pairing {
	switch {
	case len(comps) < 2:
		return nil
	case len(comps) < 4:
		return []Pairing{{A: comps[0], B: comps[1]}}
	default:
		return []Pairing{{A: comps[0], B: comps[1]}, {A: comps[2], B: comps[3]}}
	}
}

// Byes returns the completions that skip round 1 and meet the round-1 winners in round 2.
func Byes(comps []*types.Completion) []*types.Completion {
	if len(comps) == 3 {
		return []*types.Completion{comps[2]}
	}
	return nil
}

// BuildForConfiguration creates round-1 matches for every READY_FOR_RATING instance
// of cfg. Instances that fail are skipped and reported together.
func (b *Bracket) BuildForConfiguration(dbc dbctx.Context, cfg *types.Configuration) (int, error) {
	if cfg == nil {
		return 0, nil
	}
	instances, err := b.deps.Instances.ListByConfigurationAndStatus(dbc, cfg.ID, []types.InstanceStatus{types.InstanceReadyForRating})
	if err != nil {
		return 0, fmt.Errorf("list ready instances: %w", err)
	}
	created := 0
	var errs []error
	for _, inst := range instances {
		n, err := b.BuildForInstance(dbc, cfg, inst)
		if err != nil {
			b.log.Error("bracket build failed for instance", "instance_id", inst.ID, "error", err)
			errs = append(errs, fmt.Errorf("instance %s: %w", inst.ID, err))
			continue
		}
		created += n
	}
	b.log.Info("brackets built", "configuration_id", cfg.ID, "instances", len(instances), "matches_created", created)
	return created, errors.Join(errs...)
}

// BuildForInstance creates the round-1 matches for one instance. It is a no-op when
// the instance already has matches or fewer than two completions.
func (b *Bracket) BuildForInstance(dbc dbctx.Context, cfg *types.Configuration, inst *types.PromptInstance) (int, error) {
	exists, err := b.deps.Matches.ExistsForInstance(dbc, inst.ID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}
	comps, err := b.deps.Completions.ListByInstance(dbc, inst.ID)
	if err != nil {
		return 0, err
	}
	pairs := SeedRoundOne(comps)
	if len(pairs) == 0 {
		b.log.Warn("instance has too few completions to rate", "instance_id", inst.ID, "completions", len(comps))
		return 0, nil
	}
	matches := make([]*types.RatingMatch, 0, len(pairs))
	for slot, p := range pairs {
		matches = append(matches, &types.RatingMatch{
			ID:               uuid.New(),
			TenantID:         cfg.TenantID,
			ConfigurationID:  cfg.ID,
			PromptInstanceID: inst.ID,
			Round:            1,
			Slot:             slot,
			OptionAID:        p.A.ID,
			OptionBID:        p.B.ID,
		})
	}
	n, err := b.deps.Matches.CreateIgnoreConflicts(dbc, matches)
	return int(n), err
}
