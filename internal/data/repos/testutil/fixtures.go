package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/domain/generation"
)

func SeedConfiguration(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, generations int) *types.Configuration {
	tb.Helper()
	c := &types.Configuration{
		ID:                     uuid.New(),
		TenantID:               tenantID,
		Name:                   "config",
		PromptTemplate:         "Write about {{topic}}",
		ModelProvider:          types.ProviderOpenAI,
		ModelName:              "gpt-4o-mini",
		GenerationsPerInstance: generations,
		Rubric:                 "Prefer the clearer answer.",
		Status:                 types.ConfigurationDraft,
		Variables: []types.ConfigurationVariable{
			{Key: "topic", Label: "Topic", Required: true, Position: 0},
		},
		RejectionReasons: []types.RejectionReason{
			{Label: "Off topic", Position: 0},
			{Label: "Too long", Position: 1},
		},
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed configuration: %v", err)
	}
	return c
}

func SeedInstance(tb testing.TB, ctx context.Context, tx *gorm.DB, configID uuid.UUID, status types.InstanceStatus, values map[string]string) *types.PromptInstance {
	tb.Helper()
	p := &types.PromptInstance{
		ID:              uuid.New(),
		ConfigurationID: configID,
		Data:            generation.EncodeValues(values),
		Status:          status,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed instance: %v", err)
	}
	return p
}

func SeedRun(tb testing.TB, ctx context.Context, tx *gorm.DB, cfg *types.Configuration, status types.RunStatus, createdAt time.Time) *types.GenerationRun {
	tb.Helper()
	r := &types.GenerationRun{
		ID:              uuid.New(),
		ConfigurationID: cfg.ID,
		TenantID:        cfg.TenantID,
		ModelProvider:   cfg.ModelProvider,
		ModelName:       cfg.ModelName,
		Status:          status,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed run: %v", err)
	}
	return r
}

// SeedCompletions creates n completions with indices 0..n-1.
func SeedCompletions(tb testing.TB, ctx context.Context, tx *gorm.DB, instanceID, runID uuid.UUID, n int) []*types.Completion {
	tb.Helper()
	out := make([]*types.Completion, 0, n)
	for i := 0; i < n; i++ {
		c := &types.Completion{
			ID:               uuid.New(),
			PromptInstanceID: instanceID,
			GenerationRunID:  runID,
			Index:            i,
			Output:           "output",
			ModelProvider:    types.ProviderOpenAI,
			ModelName:        "gpt-4o-mini",
		}
		if err := tx.WithContext(ctx).Create(c).Error; err != nil {
			tb.Fatalf("seed completion: %v", err)
		}
		out = append(out, c)
	}
	return out
}

func SeedMatch(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID, configID, instanceID uuid.UUID, a, b *types.Completion, round, slot int) *types.RatingMatch {
	tb.Helper()
	m := &types.RatingMatch{
		ID:               uuid.New(),
		TenantID:         tenantID,
		ConfigurationID:  configID,
		PromptInstanceID: instanceID,
		OptionAID:        a.ID,
		OptionBID:        b.ID,
		Round:            round,
		Slot:             slot,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed match: %v", err)
	}
	return m
}
