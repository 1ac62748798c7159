package llm

import (
	"context"
	"time"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

type openAIProvider struct {
	apiKey    string
	baseURL   string
	maxTokens int
	tr        *transport
}

func NewOpenAIProvider(cfg Config, log *logger.Logger) Provider {
	return &openAIProvider{
		apiKey:    cfg.OpenAIKey,
		baseURL:   defaultString(cfg.OpenAIBaseURL, "https://api.openai.com"),
		maxTokens: cfg.MaxOutputTokens,
		tr:        newTransport("openai", cfg, log),
	}
}

func (p *openAIProvider) Name() types.ModelProvider { return types.ProviderOpenAI }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model               string          `json:"model"`
	Messages            []openAIMessage `json:"messages"`
	Temperature         *float64        `json:"temperature,omitempty"`
	TopP                *float64        `json:"top_p,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *openAIProvider) GenerateCompletion(ctx context.Context, req Request) Result {
	key := resolveCredential(req.Credential, p.apiKey)
	if key == "" {
		return failure("openai: no API key configured (set OPENAI_API_KEY or a configuration credential)")
	}
	body := openAIChatRequest{
		Model:               req.Model,
		Messages:            []openAIMessage{{Role: "user", Content: req.Prompt}},
		MaxCompletionTokens: maxTokens(req.Options, p.maxTokens),
	}
	if req.Options != nil {
		body.Temperature = req.Options.Temperature
		body.TopP = req.Options.TopP
	}

	start := time.Now()
	var out openAIChatResponse
	headers := map[string]string{"Authorization": "Bearer " + key}
	if err := p.tr.post(ctx, req.Model, p.baseURL+"/v1/chat/completions", headers, body, &out); err != nil {
		return failure(err.Error())
	}
	if len(out.Choices) == 0 {
		return failure("openai: response contained no choices")
	}
	res := Result{Output: out.Choices[0].Message.Content}
	if out.Usage != nil {
		res.TokensUsed = intPtr(out.Usage.TotalTokens)
	}
	p.tr.observeOK(req.Model, start, res.TokensUsed)
	return res
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
