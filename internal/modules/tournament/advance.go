package tournament

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/observability"
	"github.com/yungbote/ratebench-backend/internal/platform/dbctx"
)

// Advancement describes what a completed match did to its bracket.
type Advancement struct {
	Waiting            bool       `json:"waiting"`
	NextMatchID        *uuid.UUID `json:"nextMatchId,omitempty"`
	Finalized          bool       `json:"finalized"`
	WinnerCompletionID *uuid.UUID `json:"winnerCompletionId,omitempty"`
}

// Advance moves the bracket of the match's instance forward. It must run after the
// match completion is committed so concurrent sibling completions observe each other.
func (b *Bracket) Advance(dbc dbctx.Context, match *types.RatingMatch) (*Advancement, error) {
	if match == nil {
		return &Advancement{Waiting: true}, nil
	}
	return b.AdvanceInstance(dbc, match.PromptInstanceID)
}

// AdvanceInstance derives the next step purely from stored match state, so calling
// it repeatedly is safe.
func (b *Bracket) AdvanceInstance(dbc dbctx.Context, instanceID uuid.UUID) (*Advancement, error) {
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := observability.Tracer("tournament").Start(ctx, "tournament.advance")
	defer span.End()
	span.SetAttributes(attribute.String("instance_id", instanceID.String()))
	dbc.Ctx = ctx

	inst, err := b.deps.Instances.GetByID(dbc, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if inst == nil {
		return nil, fmt.Errorf("instance %s not found", instanceID)
	}
	if inst.Status == types.InstanceRated {
		adv := &Advancement{Finalized: true}
		if w, err := b.deps.Winners.GetByInstance(dbc, instanceID); err == nil && w != nil {
			id := w.CompletionID
			adv.WinnerCompletionID = &id
		}
		return adv, nil
	}

	comps, err := b.deps.Completions.ListByInstance(dbc, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	byID := make(map[uuid.UUID]*types.Completion, len(comps))
	for _, c := range comps {
		byID[c.ID] = c
	}
	matches, err := b.deps.Matches.ListByInstance(dbc, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}

	var roundOne []*types.RatingMatch
	var final *types.RatingMatch
	for _, m := range matches {
		switch m.Round {
		case 1:
			roundOne = append(roundOne, m)
		case 2:
			if final == nil {
				final = m
			}
		}
	}
	if len(roundOne) == 0 {
		return &Advancement{Waiting: true}, nil
	}

	if final != nil {
		if !final.IsComplete {
			return &Advancement{Waiting: true}, nil
		}
		return b.finalize(dbc, inst, byID, final.WinnerCompletionID)
	}

	for _, m := range roundOne {
		if !m.IsComplete {
			return &Advancement{Waiting: true}, nil
		}
	}

	var survivors []uuid.UUID
	for _, m := range roundOne {
		if m.WinnerCompletionID != nil {
			survivors = append(survivors, *m.WinnerCompletionID)
		}
	}
	for _, c := range Byes(comps) {
		survivors = append(survivors, c.ID)
	}

	switch len(survivors) {
	case 0:
		return b.finalize(dbc, inst, byID, nil)
	case 1:
		return b.finalize(dbc, inst, byID, &survivors[0])
	}

	next := &types.RatingMatch{
		ID:               uuid.New(),
		TenantID:         roundOne[0].TenantID,
		ConfigurationID:  roundOne[0].ConfigurationID,
		PromptInstanceID: instanceID,
		Round:            2,
		Slot:             0,
		OptionAID:        survivors[0],
		OptionBID:        survivors[1],
	}
	created, err := b.deps.Matches.CreateIgnoreConflicts(dbc, []*types.RatingMatch{next})
	if err != nil {
		return nil, fmt.Errorf("create final match: %w", err)
	}
	nextID := next.ID
	if created == 0 {
		// A concurrent advance created it first.
		matches, err := b.deps.Matches.ListByInstance(dbc, instanceID)
		if err != nil {
			return nil, fmt.Errorf("reload matches: %w", err)
		}
		for _, m := range matches {
			if m.Round == 2 {
				nextID = m.ID
				break
			}
		}
	} else {
		b.log.Info("final match created", "instance_id", instanceID, "match_id", nextID)
	}
	return &Advancement{NextMatchID: &nextID}, nil
}

// finalize records the winner, if any, and marks the instance RATED. A tie in the
// deciding match leaves the instance RATED without a FinalWinner.
func (b *Bracket) finalize(dbc dbctx.Context, inst *types.PromptInstance, byID map[uuid.UUID]*types.Completion, winnerID *uuid.UUID) (*Advancement, error) {
	if winnerID != nil {
		comp, ok := byID[*winnerID]
		if !ok {
			return nil, fmt.Errorf("winning completion %s does not belong to instance %s", *winnerID, inst.ID)
		}
		if err := b.deps.Winners.Upsert(dbc, &types.FinalWinner{
			PromptInstanceID: inst.ID,
			ConfigurationID:  inst.ConfigurationID,
			CompletionID:     comp.ID,
			CompletionIndex:  comp.Index,
			DeterminedAt:     b.deps.Now(),
		}); err != nil {
			return nil, fmt.Errorf("record final winner: %w", err)
		}
	}
	if err := b.deps.Instances.UpdateStatus(dbc, inst.ID, types.InstanceRated); err != nil {
		return nil, fmt.Errorf("mark instance rated: %w", err)
	}
	observability.Current().IncBracketFinalized(winnerID != nil)
	b.log.Info("instance finalized", "instance_id", inst.ID, "has_winner", winnerID != nil)
	return &Advancement{Finalized: true, WinnerCompletionID: winnerID}, nil
}

// Reconcile builds missing round-1 matches and advances every instance still awaiting
// rating in cfg. It repairs brackets left behind by an advance that never ran.
func (b *Bracket) Reconcile(dbc dbctx.Context, cfg *types.Configuration) (int, error) {
	if _, err := b.BuildForConfiguration(dbc, cfg); err != nil {
		return 0, err
	}
	instances, err := b.deps.Instances.ListByConfigurationAndStatus(dbc, cfg.ID, []types.InstanceStatus{types.InstanceReadyForRating})
	if err != nil {
		return 0, fmt.Errorf("list ready instances: %w", err)
	}
	finalized := 0
	for _, inst := range instances {
		adv, err := b.AdvanceInstance(dbc, inst.ID)
		if err != nil {
			return finalized, err
		}
		if adv.Finalized {
			finalized++
		}
	}
	return finalized, nil
}
