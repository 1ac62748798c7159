package llm

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

type geminiProvider struct {
	apiKey    string
	baseURL   string
	maxTokens int
	tr        *transport
}

func NewGeminiProvider(cfg Config, log *logger.Logger) Provider {
	return &geminiProvider{
		apiKey:    cfg.GeminiKey,
		baseURL:   defaultString(cfg.GeminiBaseURL, "https://generativelanguage.googleapis.com"),
		maxTokens: cfg.MaxOutputTokens,
		tr:        newTransport("gemini", cfg, log),
	}
}

func (p *geminiProvider) Name() types.ModelProvider { return types.ProviderGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (p *geminiProvider) GenerateCompletion(ctx context.Context, req Request) Result {
	key := resolveCredential(req.Credential, p.apiKey)
	if key == "" {
		return failure("gemini: no API key configured (set GEMINI_API_KEY or a configuration credential)")
	}
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: maxTokens(req.Options, p.maxTokens),
		},
	}
	if req.Options != nil {
		body.GenerationConfig.Temperature = req.Options.Temperature
		body.GenerationConfig.TopP = req.Options.TopP
	}

	start := time.Now()
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(req.Model))
	var out geminiResponse
	if err := p.tr.post(ctx, req.Model, endpoint, map[string]string{"x-goog-api-key": key}, body, &out); err != nil {
		return failure(err.Error())
	}
	if len(out.Candidates) == 0 {
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			return failure("gemini: prompt blocked: " + out.PromptFeedback.BlockReason)
		}
		return failure("gemini: response contained no candidates")
	}
	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	res := Result{Output: sb.String()}
	if out.UsageMetadata != nil {
		res.TokensUsed = intPtr(out.UsageMetadata.TotalTokenCount)
	}
	p.tr.observeOK(req.Model, start, res.TokensUsed)
	return res
}
