package llm

import (
	"context"
	"strings"
	"time"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/envutil"
)

// Options are per-call sampling parameters. Nil fields use the provider default.
type Options struct {
	Temperature     *float64
	TopP            *float64
	MaxOutputTokens int
}

type Request struct {
	Prompt string
	Model  string
	// Credential overrides the process-wide API key when non-empty.
	Credential string
	Options    *Options
}

// Result is the outcome of one call. Failures are reported in Error, never as a Go
// error, so a batch can keep going.
type Result struct {
	Output     string
	TokensUsed *int
	Error      string
}

func (r Result) Failed() bool { return r.Error != "" }

type Provider interface {
	Name() types.ModelProvider
	GenerateCompletion(ctx context.Context, req Request) Result
}

type Config struct {
	OpenAIKey        string
	OpenAIBaseURL    string
	GeminiKey        string
	GeminiBaseURL    string
	AnthropicKey     string
	AnthropicBaseURL string

	Timeout         time.Duration
	MaxRetries      int
	MaxOutputTokens int
}

func ConfigFromEnv() Config {
	return Config{
		OpenAIKey:        envutil.String("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    trimBase(envutil.String("OPENAI_BASE_URL", "https://api.openai.com")),
		GeminiKey:        envutil.String("GEMINI_API_KEY", ""),
		GeminiBaseURL:    trimBase(envutil.String("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		AnthropicKey:     envutil.String("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: trimBase(envutil.String("ANTHROPIC_BASE_URL", "https://api.anthropic.com")),
		Timeout:          envutil.Seconds("LLM_TIMEOUT_SECONDS", 120*time.Second),
		MaxRetries:       envutil.Int("LLM_MAX_RETRIES", 2),
		MaxOutputTokens:  envutil.Int("LLM_MAX_OUTPUT_TOKENS", 2048),
	}
}

func trimBase(s string) string { return strings.TrimRight(strings.TrimSpace(s), "/") }

func resolveCredential(override, fallback string) string {
	if k := strings.TrimSpace(override); k != "" {
		return k
	}
	return strings.TrimSpace(fallback)
}

func maxTokens(opts *Options, def int) int {
	if opts != nil && opts.MaxOutputTokens > 0 {
		return opts.MaxOutputTokens
	}
	return def
}

func failure(msg string) Result { return Result{Error: msg} }

func intPtr(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
