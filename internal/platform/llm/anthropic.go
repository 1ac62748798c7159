package llm

import (
	"context"
	"strings"
	"time"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

const anthropicVersion = "2023-06-01"

type anthropicProvider struct {
	apiKey    string
	baseURL   string
	maxTokens int
	tr        *transport
}

func NewAnthropicProvider(cfg Config, log *logger.Logger) Provider {
	return &anthropicProvider{
		apiKey:    cfg.AnthropicKey,
		baseURL:   defaultString(cfg.AnthropicBaseURL, "https://api.anthropic.com"),
		maxTokens: cfg.MaxOutputTokens,
		tr:        newTransport("anthropic", cfg, log),
	}
}

func (p *anthropicProvider) Name() types.ModelProvider { return types.ProviderAnthropic }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *anthropicProvider) GenerateCompletion(ctx context.Context, req Request) Result {
	key := resolveCredential(req.Credential, p.apiKey)
	if key == "" {
		return failure("anthropic: no API key configured (set ANTHROPIC_API_KEY or a configuration credential)")
	}
	limit := maxTokens(req.Options, p.maxTokens)
	if limit <= 0 {
		limit = 2048
	}
	body := anthropicRequest{
		Model:     req.Model,
		MaxTokens: limit,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Prompt}},
	}
	// Newer models reject temperature and top_p together; temperature wins and is
	// clamped to the 0..1 range the API accepts.
	if req.Options != nil {
		if req.Options.Temperature != nil {
			t := *req.Options.Temperature
			if t > 1 {
				t = 1
			}
			body.Temperature = &t
		} else {
			body.TopP = req.Options.TopP
		}
	}

	start := time.Now()
	headers := map[string]string{
		"x-api-key":         key,
		"anthropic-version": anthropicVersion,
	}
	var out anthropicResponse
	if err := p.tr.post(ctx, req.Model, p.baseURL+"/v1/messages", headers, body, &out); err != nil {
		return failure(err.Error())
	}
	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 && len(out.Content) == 0 {
		return failure("anthropic: response contained no content")
	}
	res := Result{Output: sb.String()}
	if out.Usage != nil {
		res.TokensUsed = intPtr(out.Usage.InputTokens + out.Usage.OutputTokens)
	}
	p.tr.observeOK(req.Model, start, res.TokensUsed)
	return res
}
