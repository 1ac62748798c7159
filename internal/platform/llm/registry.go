package llm

import (
	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

// Registry maps provider enums to adapters.
type Registry struct {
	providers map[types.ModelProvider]Provider
}

func NewRegistry(cfg Config, log *logger.Logger) *Registry {
	return NewRegistryWith(
		NewOpenAIProvider(cfg, log),
		NewGeminiProvider(cfg, log),
		NewAnthropicProvider(cfg, log),
	)
}

func NewRegistryWith(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[types.ModelProvider]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// ForProvider returns the adapter for name, falling back to the first supported
// provider for unknown names.
func (r *Registry) ForProvider(name types.ModelProvider) Provider {
	if p, ok := r.providers[name]; ok {
		return p
	}
	for _, fallback := range types.SupportedProviders {
		if p, ok := r.providers[fallback]; ok {
			return p
		}
	}
	return nil
}
