package generation

type ConfigurationStatus string

const (
	ConfigurationDraft     ConfigurationStatus = "DRAFT"
	ConfigurationExecuting ConfigurationStatus = "EXECUTING"
	ConfigurationCompleted ConfigurationStatus = "COMPLETED"
)

type InstanceStatus string

const (
	InstancePending        InstanceStatus = "PENDING"
	InstanceGenerating     InstanceStatus = "GENERATING"
	InstanceReadyForRating InstanceStatus = "READY_FOR_RATING"
	InstanceRated          InstanceStatus = "RATED"
)

type RunStatus string

const (
	RunQueued    RunStatus = "QUEUED"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// ModelProvider names an upstream LLM vendor.
type ModelProvider string

const (
	ProviderOpenAI    ModelProvider = "OPENAI"
	ProviderGemini    ModelProvider = "GEMINI"
	ProviderAnthropic ModelProvider = "ANTHROPIC"
)

// SupportedProviders lists providers in preference order; the first is the fallback.
var SupportedProviders = []ModelProvider{ProviderOpenAI, ProviderGemini, ProviderAnthropic}

func (p ModelProvider) Valid() bool {
	for _, s := range SupportedProviders {
		if p == s {
			return true
		}
	}
	return false
}
