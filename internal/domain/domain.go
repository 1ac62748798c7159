package domain

import (
	"github.com/yungbote/ratebench-backend/internal/domain/generation"
	"github.com/yungbote/ratebench-backend/internal/domain/rating"
)

const (
	ConfigurationDraft     = generation.ConfigurationDraft
	ConfigurationExecuting = generation.ConfigurationExecuting
	ConfigurationCompleted = generation.ConfigurationCompleted

	InstancePending        = generation.InstancePending
	InstanceGenerating     = generation.InstanceGenerating
	InstanceReadyForRating = generation.InstanceReadyForRating
	InstanceRated          = generation.InstanceRated

	RunQueued    = generation.RunQueued
	RunRunning   = generation.RunRunning
	RunCompleted = generation.RunCompleted
	RunFailed    = generation.RunFailed

	ProviderOpenAI    = generation.ProviderOpenAI
	ProviderGemini    = generation.ProviderGemini
	ProviderAnthropic = generation.ProviderAnthropic

	OutcomeABetter     = rating.OutcomeABetter
	OutcomeBBetter     = rating.OutcomeBBetter
	OutcomeBothGood    = rating.OutcomeBothGood
	OutcomeNeitherGood = rating.OutcomeNeitherGood

	LockFree        = rating.LockFree
	LockExpired     = rating.LockExpired
	LockHeldByOther = rating.LockHeldByOther
)

var SupportedProviders = generation.SupportedProviders

var (
	EncodeValues    = generation.EncodeValues
	EncodeReasonIDs = rating.EncodeReasonIDs
)

type ConfigurationStatus = generation.ConfigurationStatus
type InstanceStatus = generation.InstanceStatus
type RunStatus = generation.RunStatus
type ModelProvider = generation.ModelProvider

type Configuration = generation.Configuration
type ConfigurationVariable = generation.ConfigurationVariable
type RejectionReason = generation.RejectionReason
type PromptInstance = generation.PromptInstance
type GenerationRun = generation.GenerationRun
type Completion = generation.Completion

type Outcome = rating.Outcome
type RatingMatch = rating.RatingMatch
type RatingResponse = rating.RatingResponse
type FinalWinner = rating.FinalWinner
type LockState = rating.LockState

// Models lists every persisted entity in migration order.
func Models() []interface{} {
	return []interface{}{
		&Configuration{},
		&ConfigurationVariable{},
		&RejectionReason{},
		&PromptInstance{},
		&GenerationRun{},
		&Completion{},
		&RatingMatch{},
		&RatingResponse{},
		&FinalWinner{},
	}
}
